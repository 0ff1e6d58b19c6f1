package bus

import (
	"strings"
	"time"
)

// Event is one item on the bus. Kind is dotted, "<namespace>.<name>".
type Event struct {
	Kind      string
	Timestamp time.Time
	// Seq is assigned on publish and grows by one per published event, so
	// subscribers can tell receipt order and gaps from dropped deliveries.
	Seq     uint64
	Payload any
}

// Matches reports whether prefix selects this event. The empty prefix
// matches everything.
func (e Event) Matches(prefix string) bool {
	return strings.HasPrefix(e.Kind, prefix)
}
