package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/wpparchive/internal/model"
	"github.com/matheus3301/wpparchive/internal/state"
	"go.uber.org/zap"
)

// DefaultSystemAlertDuration is how long a system alert stays up.
const DefaultSystemAlertDuration = 5 * time.Second

const (
	baseTitle   = "WhatsApp Archive"
	defaultIcon = "whatsapp-icon.png"
	enabledText = "Notifications enabled! You'll now receive real-time message alerts."
)

// Prefs persists the notification decision.
type Prefs interface {
	Permission() state.Permission
	SetPermission(p state.Permission) error
}

// Stopper cancels a scheduled callback.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once wrapped.
type AfterFunc func(d time.Duration, f func()) Stopper

// Requester asks the user for notification permission and returns the answer.
type Requester func() state.Permission

// Options configures a Dispatcher.
type Options struct {
	Center   *Center
	Desktop  Desktop
	Prefs    Prefs
	Request  Requester
	Duration time.Duration
	After    AfterFunc
	Logger   *zap.Logger
}

type liveAlert struct {
	seq   uint64
	timer Stopper
}

// Dispatcher turns message notifications into system and in-app alerts,
// coalescing system alerts by tag and tracking the unread counter.
type Dispatcher struct {
	center   *Center
	desktop  Desktop
	prefs    Prefs
	request  Requester
	duration time.Duration
	after    AfterFunc
	logger   *zap.Logger

	mu        sync.Mutex
	live      map[string]liveAlert
	seq       uint64
	unread    int
	dismissed bool
	requested bool
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Duration <= 0 {
		opts.Duration = DefaultSystemAlertDuration
	}
	if opts.After == nil {
		opts.After = func(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }
	}
	if opts.Request == nil {
		opts.Request = func() state.Permission { return state.PermissionGranted }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dispatcher{
		center:   opts.Center,
		desktop:  opts.Desktop,
		prefs:    opts.Prefs,
		request:  opts.Request,
		duration: opts.Duration,
		after:    opts.After,
		logger:   opts.Logger.Named("notify"),
		live:     make(map[string]liveAlert),
	}
}

// Notify handles one message notification.
func (d *Dispatcher) Notify(n model.Notification) {
	subject := n.Subject()

	if d.permission() == state.PermissionGranted && d.desktop != nil {
		icon := n.SenderAvatar
		if icon == "" {
			icon = defaultIcon
		}
		d.showSystem(SystemAlert{
			Tag:     n.Tag(),
			Title:   subject,
			Body:    n.Preview,
			Icon:    icon,
			ShownAt: time.Now(),
		})
	}

	if d.center != nil {
		d.center.Success(fmt.Sprintf("💬 %s: %s", subject, n.Preview))
	}

	d.mu.Lock()
	d.unread++
	d.mu.Unlock()
}

func (d *Dispatcher) showSystem(a SystemAlert) {
	d.mu.Lock()
	if prev, ok := d.live[a.Tag]; ok {
		prev.timer.Stop()
	}
	d.seq++
	seq := d.seq
	tag := a.Tag
	d.live[tag] = liveAlert{
		seq:   seq,
		timer: d.after(d.duration, func() { d.expire(tag, seq) }),
	}
	d.mu.Unlock()

	d.desktop.Show(a)
}

// expire closes the alert for tag unless it was replaced since.
func (d *Dispatcher) expire(tag string, seq uint64) {
	d.mu.Lock()
	cur, ok := d.live[tag]
	if !ok || cur.seq != seq {
		d.mu.Unlock()
		return
	}
	delete(d.live, tag)
	d.mu.Unlock()

	d.desktop.Close(tag)
}

// LiveTags returns the tags of system alerts currently shown.
func (d *Dispatcher) LiveTags() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	tags := make([]string, 0, len(d.live))
	for tag := range d.live {
		tags = append(tags, tag)
	}
	return tags
}

// Unread returns the number of notifications since the last focus.
func (d *Dispatcher) Unread() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unread
}

// Title is the window title carrying the unread counter.
func (d *Dispatcher) Title() string {
	if n := d.Unread(); n > 0 {
		return fmt.Sprintf("(%d) %s", n, baseTitle)
	}
	return baseTitle
}

// Focus resets the unread counter.
func (d *Dispatcher) Focus() {
	d.mu.Lock()
	d.unread = 0
	d.mu.Unlock()
}

// Visible resets the unread counter when the client becomes visible.
func (d *Dispatcher) Visible(visible bool) {
	if visible {
		d.Focus()
	}
}

// ShowBanner reports whether the opt-in prompt should be offered.
func (d *Dispatcher) ShowBanner() bool {
	d.mu.Lock()
	dismissed := d.dismissed
	d.mu.Unlock()
	return !dismissed && d.permission() == state.PermissionDefault
}

// Enable requests permission once. A decision already on record is
// returned unchanged without prompting again.
func (d *Dispatcher) Enable() (state.Permission, error) {
	if p := d.permission(); p != state.PermissionDefault {
		return p, nil
	}
	d.mu.Lock()
	if d.requested {
		d.mu.Unlock()
		return d.permission(), nil
	}
	d.requested = true
	d.mu.Unlock()

	p := d.request()
	if p == state.PermissionDefault {
		return p, nil
	}
	if err := d.setPermission(p); err != nil {
		return p, err
	}
	if p == state.PermissionGranted {
		if d.desktop != nil {
			d.showSystem(SystemAlert{
				Tag:     "whatsapp-archive-enabled",
				Title:   baseTitle,
				Body:    enabledText,
				Icon:    defaultIcon,
				ShownAt: time.Now(),
			})
		}
		if d.center != nil {
			d.center.Success(enabledText)
		}
	}
	d.logger.Info("notification permission decided", zap.String("permission", string(p)))
	return p, nil
}

// Decline records a refusal.
func (d *Dispatcher) Decline() error {
	return d.setPermission(state.PermissionDenied)
}

// DismissBanner hides the prompt for this run only.
func (d *Dispatcher) DismissBanner() {
	d.mu.Lock()
	d.dismissed = true
	d.mu.Unlock()
}

// Permission returns the recorded decision.
func (d *Dispatcher) Permission() state.Permission {
	return d.permission()
}

func (d *Dispatcher) permission() state.Permission {
	if d.prefs == nil {
		return state.PermissionDefault
	}
	return d.prefs.Permission()
}

func (d *Dispatcher) setPermission(p state.Permission) error {
	if d.prefs == nil {
		return nil
	}
	if err := d.prefs.SetPermission(p); err != nil {
		return fmt.Errorf("saving notification permission: %w", err)
	}
	return nil
}
