package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rzbill/ordernotify/internal/metrics"
)

// DefaultBuffer is the per-subscription channel capacity.
const DefaultBuffer = 64

type hubSub struct {
	ch     chan []byte
	gap    atomic.Bool
	closed bool
}

// Hub is an in-process Source. Sends never block: a subscriber whose buffer
// is full misses the message and has its gap flag set.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*hubSub]struct{}
	buffer int
	closed bool
}

// NewHub returns a Hub with the given per-subscription buffer (DefaultBuffer
// when <= 0).
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[string]map[*hubSub]struct{}), buffer: buffer}
}

func (h *Hub) Publish(_ context.Context, tenantID string, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for s := range h.subs[tenantID] {
		select {
		case s.ch <- payload:
		default:
			s.gap.Store(true)
			metrics.BroadcastDroppedTotal.Inc()
		}
	}
	return nil
}

// MarkGaps flags every live subscription as having missed messages and wakes
// it with an empty payload when its buffer has room.
func (h *Hub) MarkGaps() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subs {
		for s := range set {
			s.gap.Store(true)
			select {
			case s.ch <- nil:
			default:
			}
		}
	}
}

func (h *Hub) Subscribe(_ context.Context, tenantID string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	s := &hubSub{ch: make(chan []byte, h.buffer)}
	set := h.subs[tenantID]
	if set == nil {
		set = make(map[*hubSub]struct{})
		h.subs[tenantID] = set
	}
	set[s] = struct{}{}
	return newSubscription(s.ch, &s.gap, func() { h.remove(tenantID, s) }), nil
}

func (h *Hub) remove(tenantID string, s *hubSub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.subs[tenantID]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, tenantID)
		}
	}
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Subscribers returns the number of live subscriptions for tenantID.
func (h *Hub) Subscribers(tenantID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[tenantID])
}

// Close closes every subscription channel.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for _, set := range h.subs {
		for s := range set {
			if !s.closed {
				s.closed = true
				close(s.ch)
			}
		}
	}
	h.subs = nil
	return nil
}
