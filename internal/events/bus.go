package events

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultQueueSize = 4096

// Bus is the central typed publish/subscribe hub.
//
// A single dispatch worker drains the queue and invokes matching handlers
// synchronously, in registration order, so per-event-type ordering across
// all subscribers is total. Publish never blocks: events are enqueued on a
// bounded FIFO and dropped (counted, logged) on overflow. Handler errors
// are logged and never stop dispatch; the bus cannot be brought down by a
// subscriber.
type Bus struct {
	log *zap.Logger

	mu   sync.Mutex
	subs map[Type][]Handler

	// allowed, when non-nil, restricts provider sources accepted by
	// Publish. Internal engine sources always pass. Guards against ghost
	// events queued by a provider that has since been stopped.
	allowedMu sync.RWMutex
	allowed   map[string]struct{}

	queue   chan Event
	stopCh  chan struct{}
	done    chan struct{}
	stopped atomic.Bool

	dropped atomic.Uint64
	faults  atomic.Uint64

	// faultHook, when set, observes handler errors (used by the monitor).
	faultHook func(t Type)
}

// NewBus creates a bus and starts its dispatch worker. queueSize <= 0
// selects the default capacity.
func NewBus(log *zap.Logger, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	b := &Bus{
		log:    log,
		subs:   make(map[Type][]Handler),
		queue:  make(chan Event, queueSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go b.dispatchLoop()
	return b
}

// Subscribe registers a handler for one or more event types. Handlers are
// identified by interface equality, so they must be comparable (pointers in
// practice). Registering the same handler twice for a type is a caller
// error: it is logged and the duplicate is ignored, so a handler appears at
// most once per type.
func (b *Bus) Subscribe(h Handler, types ...Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		if containsHandler(b.subs[t], h) {
			b.log.Warn("duplicate subscription ignored", zap.String("event_type", string(t)))
			continue
		}
		b.subs[t] = append(b.subs[t], h)
	}
}

// Unsubscribe removes a handler from the given event types. Unknown
// registrations are ignored.
func (b *Bus) Unsubscribe(h Handler, types ...Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.subs[t] = removeHandler(b.subs[t], h)
		if len(b.subs[t]) == 0 {
			delete(b.subs, t)
		}
	}
}

// UnsubscribeAll removes a handler from every event type it is registered
// for.
func (b *Bus) UnsubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for t, list := range b.subs {
		b.subs[t] = removeHandler(list, h)
		if len(b.subs[t]) == 0 {
			delete(b.subs, t)
		}
	}
}

// SubscriberCount returns the total number of (type, handler) registrations,
// wildcard included. Exposed for the lifecycle manager's leak audit.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, list := range b.subs {
		n += len(list)
	}
	return n
}

// SetAllowedSources installs the provider source allow-list. With no
// arguments the list is cleared and every source is accepted again.
func (b *Bus) SetAllowedSources(sources ...string) {
	b.allowedMu.Lock()
	defer b.allowedMu.Unlock()
	if len(sources) == 0 {
		b.allowed = nil
		return
	}
	allowed := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		allowed[s] = struct{}{}
	}
	b.allowed = allowed
}

// SetFaultHook registers an observer for handler errors. Must be called
// before the first Publish.
func (b *Bus) SetFaultHook(fn func(t Type)) {
	b.faultHook = fn
}

// Publish enqueues an event without blocking. Events published after Stop,
// events without a type, events from disallowed sources and events that do
// not fit the queue are dropped.
func (b *Bus) Publish(evt Event) {
	if b.stopped.Load() {
		b.log.Warn("publish after stop, event dropped", zap.String("event_type", string(evt.Type)))
		return
	}
	if evt.Type == "" {
		b.log.Error("discarding event without type", zap.String("source", evt.Source), zap.String("symbol", evt.Symbol))
		return
	}
	if !b.sourceAllowed(evt.Source) {
		b.log.Warn("event from inactive source dropped",
			zap.String("event_type", string(evt.Type)),
			zap.String("source", evt.Source))
		return
	}
	select {
	case b.queue <- evt:
	default:
		n := b.dropped.Add(1)
		b.log.Warn("event queue full, event dropped",
			zap.String("event_type", string(evt.Type)),
			zap.Uint64("dropped_total", n))
	}
}

// Stop signals shutdown, drains events already queued and joins the
// dispatch worker. When the worker does not finish within timeout the bus
// logs and abandons it rather than hang the caller.
func (b *Bus) Stop(timeout time.Duration) {
	if !b.stopped.CompareAndSwap(false, true) {
		return
	}
	close(b.stopCh)
	select {
	case <-b.done:
	case <-time.After(timeout):
		b.log.Warn("dispatch worker did not stop in time, abandoning", zap.Duration("timeout", timeout))
	}
}

// Dropped returns the number of events lost to queue overflow.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Faults returns the number of handler errors observed.
func (b *Bus) Faults() uint64 { return b.faults.Load() }

func (b *Bus) sourceAllowed(source string) bool {
	b.allowedMu.RLock()
	defer b.allowedMu.RUnlock()
	if b.allowed == nil {
		return true
	}
	if _, ok := b.allowed[source]; ok {
		return true
	}
	_, internal := internalSources[source]
	return internal
}

func (b *Bus) dispatchLoop() {
	defer close(b.done)
	for {
		select {
		case evt := <-b.queue:
			b.dispatch(evt)
		case <-b.stopCh:
			// Drain what was queued before the stop signal.
			for {
				select {
				case evt := <-b.queue:
					b.dispatch(evt)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(evt Event) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[evt.Type])+len(b.subs[Wildcard]))
	handlers = append(handlers, b.subs[evt.Type]...)
	handlers = append(handlers, b.subs[Wildcard]...)
	b.mu.Unlock()

	for _, h := range handlers {
		if err := h.OnEvent(evt); err != nil {
			b.faults.Add(1)
			b.log.Error("handler error",
				zap.String("event_type", string(evt.Type)),
				zap.String("symbol", evt.Symbol),
				zap.Error(err))
			if b.faultHook != nil {
				b.faultHook(evt.Type)
			}
		}
	}
}

func containsHandler(list []Handler, h Handler) bool {
	for _, cur := range list {
		if cur == h {
			return true
		}
	}
	return false
}

func removeHandler(list []Handler, h Handler) []Handler {
	for i, cur := range list {
		if cur == h {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
