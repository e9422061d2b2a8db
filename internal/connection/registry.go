package connection

import (
	"log/slog"
	"sync"
)

// entry is one registered handler.
type entry struct {
	id uint64
	fn Handler
}

// registry holds event handlers in registration order. Dispatch snapshots
// the handler list before invoking, so handlers added or removed during a
// dispatch take effect from the next event on.
type registry struct {
	logger *slog.Logger

	mu       sync.Mutex
	nextID   uint64
	handlers map[string][]entry
	panics   uint64
}

func newRegistry(logger *slog.Logger) *registry {
	return &registry{
		logger:   logger,
		handlers: make(map[string][]entry),
	}
}

// on registers a handler and returns its removal token. The same function
// can be registered multiple times; each registration gets its own token.
func (r *registry) on(event string, h Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.handlers[event] = append(r.handlers[event], entry{id: r.nextID, fn: h})

	return Subscription{event: event, id: r.nextID}
}

// off removes the handler identified by the subscription. It reports
// whether a handler was removed.
func (r *registry) off(s Subscription) bool {
	if s.id == 0 {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.handlers[s.event]
	for i, e := range entries {
		if e.id == s.id {
			r.handlers[s.event] = append(entries[:i:i], entries[i+1:]...)
			if len(r.handlers[s.event]) == 0 {
				delete(r.handlers, s.event)
			}
			return true
		}
	}
	return false
}

// emit invokes every handler registered for the event, in registration
// order, on the calling goroutine. It returns the number of handlers run.
func (r *registry) emit(event string, ev Event) int {
	r.mu.Lock()
	entries := r.handlers[event]
	snapshot := make([]entry, len(entries))
	copy(snapshot, entries)
	r.mu.Unlock()

	for _, e := range snapshot {
		r.invoke(event, e, ev)
	}
	return len(snapshot)
}

// invoke runs a single handler, recovering a panic so one bad handler
// cannot take down the read loop or starve later handlers.
func (r *registry) invoke(event string, e entry, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.mu.Lock()
			r.panics++
			r.mu.Unlock()
			r.logger.Error("event handler panicked",
				"event", event,
				"panic", rec,
			)
		}
	}()
	e.fn(ev)
}

// panicCount returns how many handler panics were recovered.
func (r *registry) panicCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.panics
}
