package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/wpparchive/internal/bus"
	"github.com/matheus3301/wpparchive/internal/model"
	"go.uber.org/zap"
)

// State represents a pairing handshake state.
type State string

const (
	Unlinked State = "UNLINKED"
	Pairing  State = "PAIRING"
	Linked   State = "LINKED"
)

// validTransitions defines allowed handshake transitions. Pairing -> Pairing
// is a superseding QR code.
var validTransitions = map[State][]State{
	Unlinked: {Pairing, Linked},
	Pairing:  {Pairing, Linked, Unlinked},
	Linked:   {Unlinked},
}

// Alerter receives user-facing alerts.
type Alerter interface {
	Info(text string)
	Success(text string)
	Error(text string)
}

// Snapshot is a consistent copy of the tracker state.
type Snapshot struct {
	State    State
	Link     model.LinkStatus
	Artifact *model.PairingArtifact
}

// Tracker follows the link handshake driven by channel events and owns
// LinkStatus and the pairing artifact.
type Tracker struct {
	mu       sync.RWMutex
	current  State
	link     Link
	artifact *model.PairingArtifact

	bus    *bus.Bus
	alerts Alerter
	logger *zap.Logger
}

// NewTracker creates a tracker in the Unlinked state.
func NewTracker(b *bus.Bus, alerts Alerter, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if alerts == nil {
		alerts = nopAlerter{}
	}
	return &Tracker{
		current: Unlinked,
		bus:     b,
		alerts:  alerts,
		logger:  logger,
	}
}

// Current returns the current handshake state.
func (t *Tracker) Current() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Snapshot returns the state, link status and artifact as one consistent value.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Snapshot{State: t.current, Link: t.link.Status}
	if t.artifact != nil {
		a := *t.artifact
		s.Artifact = &a
	}
	return s
}

// HandleQR installs a new pairing artifact, superseding any previous one.
func (t *Tracker) HandleQR(a model.PairingArtifact) {
	t.mu.Lock()
	if t.current == Linked || t.link.Status.Connected {
		t.mu.Unlock()
		t.logger.Warn("ignoring pairing code while linked")
		return
	}
	if err := t.transitionLocked(Pairing); err != nil {
		t.mu.Unlock()
		t.logger.Warn("qr rejected", zap.Error(err))
		return
	}
	t.artifact = &a
	t.mu.Unlock()

	t.alerts.Success("QR code generated! Please scan with your phone.")
}

// HandleReady moves to Linked on a pushed ready. Link status and artifact are
// replaced under the same lock so no snapshot shows both at once.
func (t *Tracker) HandleReady(evt model.ReadyEvent) {
	t.mu.Lock()
	if err := t.transitionLocked(Linked); err != nil && t.current != Linked {
		t.mu.Unlock()
		t.logger.Warn("ready rejected", zap.Error(err))
		return
	}
	t.link, _ = Merge(t.link, Update{
		Status: model.LinkStatus{Connected: true, AccountID: evt.AccountID, LastUsed: evt.At},
		Source: SourcePush,
		At:     evt.At,
	})
	t.artifact = nil
	t.mu.Unlock()

	t.alerts.Success(fmt.Sprintf("WhatsApp connected! (%s)", evt.AccountID))
}

// HandleAuthenticated is informational only.
func (t *Tracker) HandleAuthenticated() {
	t.alerts.Success("WhatsApp authenticated successfully!")
}

// HandleAuthFailure discards the artifact and returns to Unlinked.
func (t *Tracker) HandleAuthFailure(reason string) {
	t.mu.Lock()
	t.artifact = nil
	if t.current == Pairing {
		_ = t.transitionLocked(Unlinked)
	}
	t.mu.Unlock()

	t.logger.Warn("pairing failed", zap.String("reason", reason))
	t.alerts.Error("WhatsApp authentication failed. Please try again.")
}

// HandleDisconnected clears the link status and artifact.
func (t *Tracker) HandleDisconnected(reason string, at time.Time) {
	t.mu.Lock()
	t.link, _ = Merge(t.link, Update{Source: SourcePush, At: at})
	t.artifact = nil
	if t.current != Unlinked {
		_ = t.transitionLocked(Unlinked)
	}
	t.mu.Unlock()

	t.logger.Info("link disconnected", zap.String("reason", reason))
	t.alerts.Error("WhatsApp disconnected.")
}

// DismissArtifact drops the artifact without changing the link.
func (t *Tracker) DismissArtifact() {
	t.mu.Lock()
	t.artifact = nil
	t.mu.Unlock()
}

// MergeProbe mirrors a REST probe issued at issuedAt into the link status.
// Returns false when a newer push already decided the link.
func (t *Tracker) MergeProbe(p model.SessionProbe, issuedAt time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	status := model.LinkStatus{Connected: p.Usable(), AccountID: p.AccountID}
	if status.Connected {
		status.LastUsed = issuedAt
	}
	next, applied := Merge(t.link, Update{Status: status, Source: SourcePoll, At: issuedAt})
	if !applied {
		t.logger.Debug("stale probe result discarded", zap.Time("issued_at", issuedAt))
		return false
	}
	t.link = next
	switch {
	case next.Status.Connected:
		t.artifact = nil
		if t.current != Linked {
			_ = t.transitionLocked(Linked)
		}
	case t.current == Linked:
		_ = t.transitionLocked(Unlinked)
	}
	return true
}

// transitionLocked moves to a new state. Caller holds t.mu.
func (t *Tracker) transitionLocked(to State) error {
	allowed := validTransitions[t.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", t.current, to)
	}
	from := t.current
	t.current = to
	if t.bus != nil {
		t.bus.Publish(bus.Event{
			Kind:      "pairing.state_changed",
			Timestamp: time.Now(),
			Payload:   StatusChange{From: from, To: to},
		})
	}
	return nil
}

type nopAlerter struct{}

func (nopAlerter) Info(string)    {}
func (nopAlerter) Success(string) {}
func (nopAlerter) Error(string)   {}

// StatusChange is the payload for pairing state change events.
type StatusChange struct {
	From State
	To   State
}
