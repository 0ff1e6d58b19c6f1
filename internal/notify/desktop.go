package notify

import (
	"time"

	"github.com/matheus3301/wpparchive/internal/bus"
)

const (
	KindSystemAlert       = "alert.system"
	KindSystemAlertClosed = "alert.system_closed"
)

// SystemAlert is an OS-level notification for an incoming message.
type SystemAlert struct {
	Tag     string    `json:"tag"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Icon    string    `json:"icon,omitempty"`
	ShownAt time.Time `json:"shown_at"`
}

// Desktop displays system alerts. Show with a tag that is already visible
// replaces that alert in place.
type Desktop interface {
	Show(a SystemAlert)
	Close(tag string)
}

// BusDesktop forwards system alerts to the bus so control clients can
// render them.
type BusDesktop struct {
	Bus *bus.Bus
}

func (d BusDesktop) Show(a SystemAlert) {
	d.Bus.Publish(bus.Event{Kind: KindSystemAlert, Timestamp: a.ShownAt, Payload: a})
}

func (d BusDesktop) Close(tag string) {
	d.Bus.Publish(bus.Event{Kind: KindSystemAlertClosed, Payload: tag})
}
