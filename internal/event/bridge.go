package event

import (
	"sync"

	"github.com/bryanchriswhite/SharePicker/internal/logger"
)

// DefaultCapacity is the queue bound used when none is configured.
const DefaultCapacity = 100

// Bridge is a one-directional, order-preserving queue between the engine and
// a consumer. Emit never blocks. When the queue is full the oldest queued
// thumbnail is evicted; window metadata is never evicted, so the queue can
// exceed its bound by at most the number of metadata events.
type Bridge struct {
	mu      sync.Mutex
	queue   []Event
	limit   int
	closed  bool
	dropped int

	notify   chan struct{}
	out      chan Event
	detached chan struct{}
	detach   sync.Once
}

// NewBridge starts a bridge holding at most capacity queued events.
func NewBridge(capacity int) *Bridge {
	b := newBridge(capacity)
	go b.pump()
	return b
}

func newBridge(capacity int) *Bridge {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bridge{
		limit:  capacity,
		notify:   make(chan struct{}, 1),
		out:      make(chan Event),
		detached: make(chan struct{}),
	}
}

// Emit queues ev. Events emitted after Close are discarded.
func (b *Bridge) Emit(ev Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if len(b.queue) >= b.limit {
		b.evictThumbnailLocked()
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	b.wake()
}

func (b *Bridge) evictThumbnailLocked() {
	for i, queued := range b.queue {
		if _, ok := queued.(ThumbnailReady); !ok {
			continue
		}
		copy(b.queue[i:], b.queue[i+1:])
		b.queue[len(b.queue)-1] = nil
		b.queue = b.queue[:len(b.queue)-1]
		b.dropped++
		logger.WithComponent("event-bridge").Warn().
			Int("queued", len(b.queue)).
			Int("dropped", b.dropped).
			Msg("Consumer is behind, dropped oldest thumbnail")
		return
	}
}

func (b *Bridge) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Events returns the consumer side of the bridge. It is closed after Close
// once every queued event has been delivered.
func (b *Bridge) Events() <-chan Event {
	return b.out
}

// Close stops accepting events. Queued events are still delivered.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wake()
}

// Detach is called by a consumer that stops reading before the channel
// closes. Queued and later events are discarded and the pump exits.
func (b *Bridge) Detach() {
	b.detach.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.queue = nil
		b.mu.Unlock()
		close(b.detached)
	})
}

// Dropped reports how many thumbnails were evicted.
func (b *Bridge) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Len reports the number of queued events.
func (b *Bridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *Bridge) pump() {
	defer close(b.out)
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			closed := b.closed
			b.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-b.notify:
			case <-b.detached:
				return
			}
			continue
		}
		ev := b.queue[0]
		b.queue[0] = nil
		b.queue = b.queue[1:]
		b.mu.Unlock()

		select {
		case b.out <- ev:
		case <-b.detached:
			return
		}
	}
}
