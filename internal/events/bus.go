package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gitcollab/core/internal/classerr"
)

// Bus fans structured events out to in-process subscribers.
//
// Delivery is best-effort and never blocks the publishing goroutine: every
// subscription owns a bounded buffer, and a subscriber that falls behind
// loses events rather than stalling the git worker that emitted them.
// Observability must never slow a task down, so the tradeoff runs toward
// the publisher: drops are counted (Dropped) and logged at debug, not
// surfaced as errors.
//
// Ordering: events published from one goroutine reach each subscription's
// buffer in publish order; cross-publisher ordering is not defined.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  uint64
	closed  bool
	dropped atomic.Uint64
}

// subscription is one subscriber's delivery endpoint. offer performs the
// type filter and the non-blocking send; stop closes the outbound channel
// exactly once.
type subscription struct {
	offer func(evt any) bool
	stop  func()
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*subscription)}
}

// Subscribe registers a subscription for events assignable to T (a
// concrete event struct, or an interface to observe several). buffer is
// the subscription's queue depth; once full, further events for this
// subscriber are dropped until it catches up. The returned cancel func
// unsubscribes and closes the channel; buffered events remain readable
// after cancel.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	var stopOnce sync.Once
	sub := &subscription{
		stop: func() { stopOnce.Do(func() { close(ch) }) },
		offer: func(evt any) bool {
			v, ok := evt.(T)
			if !ok {
				return true
			}
			select {
			case ch <- v:
				return true
			default:
				return false
			}
		},
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.stop()
		return ch, func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			s.stop()
		}
	}
	return ch, cancel
}

// Publish offers evt to every matching subscription without blocking.
// The only error conditions are a nil event and a closed bus; a full
// subscriber buffer is a counted drop, not an error.
func (b *Bus) Publish(evt any) error {
	if evt == nil {
		return classerr.InternalError("event cannot be nil").Build()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return classerr.InternalError("event bus is closed").Build()
	}
	for _, sub := range b.subs {
		if !sub.offer(evt) {
			n := b.dropped.Add(1)
			if n == 1 || n%100 == 0 {
				slog.Debug("event bus dropped events for a slow subscriber", slog.Uint64("total_dropped", n))
			}
		}
	}
	return nil
}

// Dropped reports how many events were lost to full subscriber buffers
// since the bus was created.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close rejects further publishes and closes every subscription channel.
// Buffered events remain readable.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.stop()
	}
}
