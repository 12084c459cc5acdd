package web

import (
	"sync"

	"github.com/vbonduro/screensolve/internal/relay"
)

// subscriberBuffer is how many events a slow SSE client may fall behind
// before it is marked lagged and resynced from the snapshot.
const subscriberBuffer = 64

// Snapshot is the overlay's current content: the last output document and
// the last status line.
type Snapshot struct {
	Output string `json:"output"`
	Status string `json:"status"`
}

// Hub fans relay events out to every connected overlay and remembers the
// latest output and status so that a newly opened page starts in sync.
type Hub struct {
	mu   sync.Mutex
	last Snapshot
	subs map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription is one listener's view of the hub. When its queue overflows
// it is signalled on Lagged and must call Resync to catch up.
type Subscription struct {
	hub    *Hub
	events chan relay.Event
	lagged chan struct{}
}

func (s *Subscription) Events() <-chan relay.Event { return s.events }

func (s *Subscription) Lagged() <-chan struct{} { return s.lagged }

// Resync discards queued events and returns the current snapshot as events.
// Events published afterwards arrive on Events as usual.
func (s *Subscription) Resync() []relay.Event {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	for len(s.events) > 0 {
		<-s.events
	}
	select {
	case <-s.lagged:
	default:
	}
	return s.hub.last.events()
}

// Close unsubscribes.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
}

func (snap Snapshot) events() []relay.Event {
	var evs []relay.Event
	if snap.Output != "" {
		evs = append(evs, relay.Event{Kind: relay.KindOutput, Text: snap.Output})
	}
	if snap.Status != "" {
		evs = append(evs, relay.Event{Kind: relay.KindStatus, Text: snap.Status})
	}
	return evs
}

// Handle is the relay consumer. It must only be called from one goroutine.
func (h *Hub) Handle(ev relay.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch ev.Kind {
	case relay.KindOutput:
		h.last.Output = ev.Text
	case relay.KindStatus:
		h.last.Status = ev.Text
	}

	for sub := range h.subs {
		select {
		case sub.events <- ev:
		default:
			select {
			case sub.lagged <- struct{}{}:
			default:
			}
		}
	}
}

func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Subscribe registers a new listener whose queue starts with the current
// snapshot.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		hub:    h,
		events: make(chan relay.Event, subscriberBuffer),
		lagged: make(chan struct{}, 1),
	}

	h.mu.Lock()
	for _, ev := range h.last.events() {
		sub.events <- ev
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

func (h *Hub) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
