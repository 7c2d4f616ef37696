package client

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/dvangennip/web-remote-for-OBS/internal/metrics"
)

// Listener receives one pushed event. Listeners run on the session's single
// dispatch goroutine and must not block on round trips to OBS; spawn a
// goroutine for anything that calls back into the session.
type Listener func(Event)

type registration struct {
	id int
	fn Listener
}

// Router fans server-push events out to listeners registered by event name.
// It does no payload filtering: listeners check identity fields themselves.
type Router struct {
	mu        sync.RWMutex
	listeners map[string][]registration
	nextID    int
	log       zerolog.Logger
}

// NewRouter creates an empty router.
func NewRouter(log zerolog.Logger) *Router {
	return &Router{
		listeners: make(map[string][]registration),
		log:       log.With().Str("component", "event-router").Logger(),
	}
}

// On registers fn for events named name. The returned function removes it.
func (r *Router) On(name string, fn Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.listeners[name] = append(r.listeners[name], registration{id: id, fn: fn})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		regs := r.listeners[name]
		for i, reg := range regs {
			if reg.id == id {
				r.listeners[name] = append(regs[:i:i], regs[i+1:]...)
				return
			}
		}
	}
}

// Handle registers a typed listener for the event type E.
func Handle[E Event](r *Router, fn func(E)) func() {
	var zero E
	return r.On(zero.EventName(), func(ev Event) {
		if e, ok := ev.(E); ok {
			fn(e)
		}
	})
}

// Emit calls every listener registered for ev's name, in registration order.
// A panicking listener is logged and does not stop the others.
func (r *Router) Emit(ev Event) {
	name := ev.EventName()
	metrics.Events.WithLabelValues(name).Inc()

	r.mu.RLock()
	regs := append([]registration(nil), r.listeners[name]...)
	r.mu.RUnlock()

	for _, reg := range regs {
		r.call(name, reg.fn, ev)
	}
}

func (r *Router) call(name string, fn Listener, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			metrics.ListenerPanics.WithLabelValues(name).Inc()
			r.log.Error().Str("event", name).Interface("panic", p).Msg("event listener panicked")
		}
	}()
	fn(ev)
}

// Count returns the number of listeners registered for name.
func (r *Router) Count(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[name])
}
