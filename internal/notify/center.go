// Package notify owns user-facing alerts: in-app alerts, system alerts for
// incoming messages and the unread counter.
package notify

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wpparchive/internal/bus"
	"github.com/matheus3301/wpparchive/internal/model"
)

// DefaultAlertDuration is how long a transient in-app alert stays visible.
const DefaultAlertDuration = 4 * time.Second

// KindAlertShown is published for every new in-app alert.
const KindAlertShown = "alert.shown"

// Center holds in-app alerts. Transient alerts expire on their own;
// persistent alerts are keyed and stay until cleared.
type Center struct {
	mu       sync.Mutex
	alerts   []model.Alert
	bus      *bus.Bus
	duration time.Duration
	now      func() time.Time
}

// NewCenter creates an alert center. A zero duration uses DefaultAlertDuration.
func NewCenter(b *bus.Bus, duration time.Duration) *Center {
	if duration <= 0 {
		duration = DefaultAlertDuration
	}
	return &Center{bus: b, duration: duration, now: time.Now}
}

func (c *Center) Info(text string)    { c.Show(model.AlertInfo, text) }
func (c *Center) Success(text string) { c.Show(model.AlertSuccess, text) }
func (c *Center) Warning(text string) { c.Show(model.AlertWarning, text) }
func (c *Center) Error(text string)   { c.Show(model.AlertError, text) }

// Show adds a transient alert.
func (c *Center) Show(level model.AlertLevel, text string) model.Alert {
	now := c.now()
	a := model.Alert{
		ID:        uuid.NewString(),
		Level:     level,
		Text:      text,
		CreatedAt: now,
		ExpiresAt: now.Add(c.duration),
	}
	c.add(a)
	return a
}

// SetPersistent shows an alert under key, replacing any alert with the same key.
func (c *Center) SetPersistent(key string, level model.AlertLevel, text string) model.Alert {
	a := model.Alert{
		ID:         uuid.NewString(),
		Level:      level,
		Text:       text,
		Key:        key,
		Persistent: true,
		CreatedAt:  c.now(),
	}
	c.mu.Lock()
	c.alerts = slices.DeleteFunc(c.alerts, func(x model.Alert) bool { return x.Key == key })
	c.mu.Unlock()
	c.add(a)
	return a
}

// Clear removes the persistent alert under key.
func (c *Center) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = slices.DeleteFunc(c.alerts, func(x model.Alert) bool { return x.Key == key })
}

// Active returns the alerts visible at now, oldest first, and forgets
// expired ones.
func (c *Center) Active(now time.Time) []model.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = slices.DeleteFunc(c.alerts, func(x model.Alert) bool { return !x.Live(now) })
	return slices.Clone(c.alerts)
}

func (c *Center) add(a model.Alert) {
	c.mu.Lock()
	c.alerts = append(c.alerts, a)
	c.mu.Unlock()
	if c.bus != nil {
		c.bus.Publish(bus.Event{Kind: KindAlertShown, Timestamp: a.CreatedAt, Payload: a})
	}
}
