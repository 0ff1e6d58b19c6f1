// Package bus is the in-process event bus connecting the channel client,
// the view loop and the local mirror.
package bus

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Bus fans events out to prefix subscriptions. Buffered subscriptions never
// block a publisher: when full they miss the event and the drop is counted.
// Reliable subscriptions block the publisher until the event is taken.
type Bus struct {
	mu      sync.Mutex
	seq     uint64
	subs    []*subscription
	dropped atomic.Uint64

	// deliverMu serializes blocking deliveries. It is only taken outside mu
	// so a publisher waiting on a slow reliable subscriber never stalls
	// publishers whose events match buffered subscriptions only.
	deliverMu sync.Mutex
}

type subscription struct {
	prefixes []string
	ch       chan Event
	reliable bool
	done     chan struct{}
}

func (s *subscription) matches(evt Event) bool {
	for _, p := range s.prefixes {
		if evt.Matches(p) {
			return true
		}
	}
	return false
}

func New() *Bus {
	return &Bus{}
}

// Publish stamps and delivers evt. Concurrent publishers are serialized so
// every buffered subscriber sees the same order. Reliable subscribers see
// each publisher's events in the order that publisher sent them.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	var reliable []*subscription

	b.mu.Lock()
	b.seq++
	evt.Seq = b.seq
	for _, sub := range b.subs {
		if !sub.matches(evt) {
			continue
		}
		if sub.reliable {
			reliable = append(reliable, sub)
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
	b.mu.Unlock()

	if len(reliable) == 0 {
		return
	}
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()
	for _, sub := range reliable {
		select {
		case sub.ch <- evt:
		case <-sub.done:
		}
	}
}

// Subscribe registers a buffered subscription for kinds starting with
// prefix. The returned func unsubscribes and may be called more than once.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	return b.add(&subscription{prefixes: []string{prefix}, ch: make(chan Event, bufSize)})
}

// SubscribeReliable registers a lossless subscription for kinds starting
// with any of prefixes. Once the buffer is full, Publish waits for the
// subscriber. The subscriber must keep draining until it unsubscribes and
// must not publish kinds it subscribed to from the goroutine that drains.
func (b *Bus) SubscribeReliable(bufSize int, prefixes ...string) (<-chan Event, func()) {
	return b.add(&subscription{
		prefixes: slices.Clone(prefixes),
		ch:       make(chan Event, bufSize),
		reliable: true,
	})
}

func (b *Bus) add(sub *subscription) (<-chan Event, func()) {
	sub.done = make(chan struct{})
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			b.subs = slices.DeleteFunc(b.subs, func(s *subscription) bool { return s == sub })
			b.mu.Unlock()
			close(sub.done)
		})
	}
}

// Dropped counts deliveries skipped because a buffered subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
