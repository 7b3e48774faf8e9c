package wa

import (
	"sync"

	"github.com/rs/zerolog"
)

// Handler consumes one event payload.
type Handler func(payload any)

// eventQueueSize bounds the per-event-name queue; Emit drops the payload
// when a consumer falls this far behind rather than blocking the
// transport's read loop.
const eventQueueSize = 256

type subscriber struct {
	id int
	fn Handler
}

// Bus is a per-session event bus. Each event name gets its own
// single-consumer queue, so payloads for one name are handled strictly in
// emission order while different names interleave freely.
type Bus struct {
	log zerolog.Logger

	mu     sync.Mutex
	subs   map[EventName][]subscriber
	queues map[EventName]chan any
	nextID int
	closed bool
	quit   chan struct{}
	wg     sync.WaitGroup
}

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		log:    log,
		subs:   make(map[EventName][]subscriber),
		queues: make(map[EventName]chan any),
		quit:   make(chan struct{}),
	}
}

// Subscribe registers fn for evt and returns a token for Unsubscribe.
func (b *Bus) Subscribe(evt EventName, fn Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[evt] = append(b.subs[evt], subscriber{id: id, fn: fn})
	return id
}

// Unsubscribe removes a previously registered handler.
func (b *Bus) Unsubscribe(evt EventName, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[evt]
	for i, s := range subs {
		if s.id == id {
			b.subs[evt] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit enqueues payload on evt's queue. Events emitted after Close are
// dropped, as are events for a queue that has fallen eventQueueSize
// behind.
func (b *Bus) Emit(evt EventName, payload any) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	q, ok := b.queues[evt]
	if !ok {
		q = make(chan any, eventQueueSize)
		b.queues[evt] = q
		b.wg.Add(1)
		go b.consume(evt, q)
	}
	b.mu.Unlock()

	select {
	case q <- payload:
	default:
		b.log.Warn().Str("event", string(evt)).Msg("event queue full, dropping payload")
	}
}

func (b *Bus) consume(evt EventName, q chan any) {
	defer b.wg.Done()
	for {
		select {
		case <-b.quit:
			return
		case payload := <-q:
			b.dispatch(evt, payload)
		}
	}
}

func (b *Bus) dispatch(evt EventName, payload any) {
	b.mu.Lock()
	subs := make([]subscriber, len(b.subs[evt]))
	copy(subs, b.subs[evt])
	b.mu.Unlock()

	if len(subs) == 0 {
		b.log.Debug().Str("event", string(evt)).Msg("event without subscribers")
		return
	}
	for _, s := range subs {
		s.fn(payload)
	}
}

// Close stops accepting events, stops the consumers and waits for any
// in-flight handler to return. Pending queued events are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.quit)
	b.mu.Unlock()

	b.wg.Wait()
}
