package surface

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// defaultBuffer is the per-subscriber channel capacity.
const defaultBuffer = 64

// Subscription is a cancellable stream of events. Events are delivered in
// publish order. When the consumer falls behind by more than the buffer, the
// oldest pending event is dropped so the publisher never blocks.
type Subscription[T any] struct {
	ID uuid.UUID

	ch  chan T
	hub *hub[T]
}

// C returns the receive side of the subscription. It is closed after Cancel.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Cancel unsubscribes and closes the channel. It is safe to call more than once.
func (s *Subscription[T]) Cancel() { s.hub.remove(s.ID) }

type hub[T any] struct {
	mu      sync.Mutex
	subs    map[uuid.UUID]*Subscription[T]
	size    int
	dropped atomic.Int64
}

func newHub[T any](size int) *hub[T] {
	if size <= 0 {
		size = defaultBuffer
	}
	return &hub[T]{subs: make(map[uuid.UUID]*Subscription[T]), size: size}
}

func (h *hub[T]) subscribe() *Subscription[T] {
	s := &Subscription[T]{ID: uuid.New(), ch: make(chan T, h.size), hub: h}
	h.mu.Lock()
	h.subs[s.ID] = s
	h.mu.Unlock()
	return s
}

func (h *hub[T]) remove(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

func (h *hub[T]) publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		select {
		case s.ch <- v:
			continue
		default:
		}
		select {
		case <-s.ch:
			h.dropped.Add(1)
		default:
		}
		select {
		case s.ch <- v:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *hub[T]) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		delete(h.subs, id)
		close(s.ch)
	}
}

func (h *hub[T]) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
