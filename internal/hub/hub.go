// Package hub distributes the most recent overlay frame to any number of
// consumers. Publishing never blocks: each subscriber has a single slot and
// an unread frame is overwritten (and counted as a drop) by the next one.
package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/posewatch/internal/overlay"
)

// SubscriberStats is a snapshot of one subscriber's slot.
type SubscriberStats struct {
	ID               string    `json:"id"`
	LastConsumedAt   time.Time `json:"last_consumed_at"`
	LastConsumedSeq  uint64    `json:"last_consumed_seq"`
	ConsecutiveDrops uint64    `json:"consecutive_drops"`
	TotalDrops       uint64    `json:"total_drops"`
}

// Stats is a snapshot of hub activity.
type Stats struct {
	Published   uint64            `json:"published"`
	Subscribers []SubscriberStats `json:"subscribers"`
}

type slot struct {
	mu    sync.Mutex
	cond  *sync.Cond
	frame *overlay.Frame // nil once consumed

	lastConsumedAt   time.Time
	lastConsumedSeq  uint64
	consecutiveDrops uint64
	totalDrops       uint64

	closed bool
}

// Hub is a latest-only mailbox for overlay frames.
type Hub struct {
	mu        sync.RWMutex
	latest    *overlay.Frame
	slots     map[string]*slot
	published atomic.Uint64
	closed    bool
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{slots: make(map[string]*slot)}
}

// Publish replaces the latest frame and hands it to every subscriber.
func (h *Hub) Publish(f *overlay.Frame) {
	if f == nil {
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.latest = f
	slots := make([]*slot, 0, len(h.slots))
	for _, s := range h.slots {
		slots = append(slots, s)
	}
	h.mu.Unlock()

	h.published.Add(1)

	for _, s := range slots {
		s.mu.Lock()
		if !s.closed {
			if s.frame != nil {
				s.consecutiveDrops++
				s.totalDrops++
			}
			s.frame = f
			s.cond.Signal()
		}
		s.mu.Unlock()
	}
}

// Latest returns the most recent frame without blocking, or nil.
func (h *Hub) Latest() *overlay.Frame {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// Subscribe registers id and returns a read function. Each call blocks
// until a frame newer than the last one read is available, and returns nil
// once the subscription is closed. Subscribing an existing id replaces it.
func (h *Hub) Subscribe(id string) func() *overlay.Frame {
	s := &slot{lastConsumedAt: time.Now()}
	s.cond = sync.NewCond(&s.mu)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() *overlay.Frame { return nil }
	}
	if old, ok := h.slots[id]; ok {
		old.close()
	}
	h.slots[id] = s
	h.mu.Unlock()

	return func() *overlay.Frame {
		s.mu.Lock()
		defer s.mu.Unlock()

		for s.frame == nil && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil
		}

		f := s.frame
		s.frame = nil
		s.lastConsumedAt = time.Now()
		s.lastConsumedSeq = f.Seq
		s.consecutiveDrops = 0
		return f
	}
}

// Unsubscribe closes the subscription for id. It is idempotent.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	s, ok := h.slots[id]
	if ok {
		delete(h.slots, id)
	}
	h.mu.Unlock()

	if ok {
		s.close()
	}
}

// Close wakes and closes every subscriber. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	slots := h.slots
	h.slots = make(map[string]*slot)
	h.mu.Unlock()

	for _, s := range slots {
		s.close()
	}
}

// Stats returns a snapshot of publish and drop counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	subs := make([]SubscriberStats, 0, len(h.slots))
	for id, s := range h.slots {
		s.mu.Lock()
		subs = append(subs, SubscriberStats{
			ID:               id,
			LastConsumedAt:   s.lastConsumedAt,
			LastConsumedSeq:  s.lastConsumedSeq,
			ConsecutiveDrops: s.consecutiveDrops,
			TotalDrops:       s.totalDrops,
		})
		s.mu.Unlock()
	}
	h.mu.RUnlock()

	return Stats{Published: h.published.Load(), Subscribers: subs}
}

func (s *slot) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}
