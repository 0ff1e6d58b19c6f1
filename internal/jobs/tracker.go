// Package jobs tracks the bulk message fetch, which may finish synchronously
// or later through a channel event.
package jobs

import (
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/wpparchive/internal/model"
)

// ErrActive is returned by Begin while a job is outstanding.
var ErrActive = errors.New("jobs: already running")

// Tracker follows at most one bulk fetch at a time.
type Tracker struct {
	mu     sync.Mutex
	handle model.JobHandle
	now    func() time.Time
}

// NewTracker creates an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{handle: model.JobHandle{Status: model.JobIdle}, now: time.Now}
}

// Begin marks a fetch as requested.
func (t *Tracker) Begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.busyLocked() {
		return ErrActive
	}
	t.handle = model.JobHandle{Status: model.JobQueued, StartedAt: t.now()}
	return nil
}

// Accept records the synchronous response. It returns true when the fetch
// already completed and the caller should reload and call Finish.
func (t *Tracker) Accept(r model.FetchResult) (immediate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handle.Status != model.JobQueued {
		return false
	}
	t.handle.Detail = r.Message
	if r.Processing() {
		t.handle.Status = model.JobProcessing
		return false
	}
	return true
}

// Finish closes a fetch that completed synchronously.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handle.Status == model.JobQueued {
		t.finishLocked(model.JobDone, t.handle.Detail)
	}
}

// Abort closes a fetch whose start request failed.
func (t *Tracker) Abort(detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handle.Status == model.JobQueued {
		t.finishLocked(model.JobFailed, detail)
	}
}

// Complete applies the asynchronous completion event. Returns false when no
// job is processing, in which case the event must be ignored.
func (t *Tracker) Complete(s model.FetchSummary) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handle.Status != model.JobProcessing {
		return false
	}
	t.finishLocked(model.JobDone, s.Message)
	return true
}

// Fail applies the asynchronous failure event. Same rule as Complete.
func (t *Tracker) Fail(f model.FetchFailure) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handle.Status != model.JobProcessing {
		return false
	}
	t.finishLocked(model.JobFailed, f.Error+": "+f.Details)
	return true
}

// Busy reports whether a fetch is queued or processing.
func (t *Tracker) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busyLocked()
}

// Handle returns a copy of the current job.
func (t *Tracker) Handle() model.JobHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle
}

func (t *Tracker) busyLocked() bool {
	return t.handle.Status == model.JobQueued || t.handle.Status == model.JobProcessing
}

func (t *Tracker) finishLocked(status model.JobStatus, detail string) {
	t.handle.Status = status
	t.handle.Detail = detail
	t.handle.FinishedAt = t.now()
}
