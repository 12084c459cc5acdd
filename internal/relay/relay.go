// Package relay carries output and status updates from background workers to
// a single consumer goroutine.
package relay

import (
	"context"
	"sync"
)

type Kind int

const (
	// KindOutput carries the full document to render, replacing the previous one.
	KindOutput Kind = iota
	// KindStatus carries a short progress line.
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindOutput:
		return "output"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind Kind
	Text string
}

// Relay is an unbounded FIFO. Publish never blocks; events are handed to the
// consumer in publish order, each exactly once.
type Relay struct {
	mu       sync.Mutex
	queue    []Event
	closed   bool
	coalesce bool
	wake     chan struct{}
}

type Option func(*Relay)

// WithCoalesce collapses consecutive pending output events into the last of
// them when the consumer drains. Status events are never dropped.
func WithCoalesce() Option {
	return func(r *Relay) { r.coalesce = true }
}

func New(opts ...Option) *Relay {
	r := &Relay{wake: make(chan struct{}, 1)}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Publish enqueues ev. Events published after Close are dropped.
func (r *Relay) Publish(ev Event) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, ev)
	r.mu.Unlock()
	r.notify()
}

func (r *Relay) Output(text string) { r.Publish(Event{Kind: KindOutput, Text: text}) }

func (r *Relay) Status(text string) { r.Publish(Event{Kind: KindStatus, Text: text}) }

// Close stops Run once everything already queued has been delivered.
func (r *Relay) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.notify()
}

func (r *Relay) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// take removes and returns everything queued.
func (r *Relay) take() ([]Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := r.queue
	r.queue = nil
	return pending, r.closed
}

// Drain delivers every queued event to fn on the caller's goroutine and
// returns how many were delivered.
func (r *Relay) Drain(fn func(Event)) int {
	pending, _ := r.take()
	return r.deliver(pending, fn)
}

func (r *Relay) deliver(pending []Event, fn func(Event)) int {
	if r.coalesce {
		pending = coalesce(pending)
	}
	for _, ev := range pending {
		fn(ev)
	}
	return len(pending)
}

// Run delivers events to fn on the calling goroutine until ctx is done or the
// relay is closed and empty.
func (r *Relay) Run(ctx context.Context, fn func(Event)) error {
	for {
		pending, closed := r.take()
		r.deliver(pending, fn)
		if closed && len(pending) == 0 {
			return nil
		}
		if len(pending) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.wake:
		}
	}
}

func coalesce(events []Event) []Event {
	out := events[:0:0]
	for i, ev := range events {
		if ev.Kind == KindOutput && i+1 < len(events) && events[i+1].Kind == KindOutput {
			continue
		}
		out = append(out, ev)
	}
	return out
}
