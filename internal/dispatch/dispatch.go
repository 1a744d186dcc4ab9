// Package dispatch fans appended care events out to live subscribers
// (open web connections). Delivery is fire-and-forget per subscriber: a
// slow or disconnected subscriber drops messages instead of blocking
// the append path.
package dispatch

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sweeney/babylog/internal/care"
)

// DefaultQueueSize is the per-subscriber buffer. Small: a web client
// that falls this far behind re-syncs from the API anyway.
const DefaultQueueSize = 16

// Subscriber receives events on C until Close or until the dispatcher
// unregisters it.
type Subscriber struct {
	C <-chan care.Event

	ch      chan care.Event
	dropped int
}

// Dispatcher broadcasts events to all registered subscribers.
// Safe for concurrent use.
type Dispatcher struct {
	log       *zap.Logger
	queueSize int

	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

// New creates a Dispatcher. queueSize <= 0 falls back to
// DefaultQueueSize.
func New(log *zap.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		log:       log,
		queueSize: queueSize,
		subs:      make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new live subscriber.
func (d *Dispatcher) Subscribe() *Subscriber {
	ch := make(chan care.Event, d.queueSize)
	sub := &Subscriber{C: ch, ch: ch}

	d.mu.Lock()
	d.subs[sub] = struct{}{}
	n := len(d.subs)
	d.mu.Unlock()

	d.log.Debug("subscriber registered", zap.Int("total", n))
	return sub
}

// Unsubscribe removes the subscriber and closes its channel. Safe to
// call more than once.
func (d *Dispatcher) Unsubscribe(sub *Subscriber) {
	d.mu.Lock()
	_, ok := d.subs[sub]
	if ok {
		delete(d.subs, sub)
		close(sub.ch)
	}
	n := len(d.subs)
	d.mu.Unlock()

	if ok {
		d.log.Debug("subscriber removed", zap.Int("total", n))
	}
}

// Publish delivers ev to every subscriber without blocking. Full queues
// drop the event for that subscriber only.
func (d *Dispatcher) Publish(ev care.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for sub := range d.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
			if sub.dropped == 1 || sub.dropped%100 == 0 {
				d.log.Warn("slow subscriber, dropping event",
					zap.String("event_type", string(ev.Type)),
					zap.Int("dropped_total", sub.dropped))
			}
		}
	}
}

// Dropped returns how many events the subscriber has missed.
func (d *Dispatcher) Dropped(sub *Subscriber) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sub.dropped
}

// Close unregisters every subscriber.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for sub := range d.subs {
		delete(d.subs, sub)
		close(sub.ch)
	}
}
