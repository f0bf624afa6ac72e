// Package events provides a keyed listener registry with scoped teardown.
package events

import "sync"

// Registry dispatches events to handlers registered under a key.
// Handlers for a key run in subscription order. The zero value is ready to use.
type Registry[K comparable, E any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[K][]handler[E]
}

type handler[E any] struct {
	id uint64
	fn func(E)
}

// On registers fn under key and returns a function that removes it.
// The returned function is safe to call more than once.
func (r *Registry[K, E]) On(key K, fn func(E)) func() {
	r.mu.Lock()
	if r.handlers == nil {
		r.handlers = make(map[K][]handler[E])
	}
	id := r.nextID
	r.nextID++
	r.handlers[key] = append(r.handlers[key], handler[E]{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.off(key, id) })
	}
}

func (r *Registry[K, E]) off(key K, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hs := r.handlers[key]
	for i, h := range hs {
		if h.id == id {
			// copy so snapshots taken by Emit stay valid
			next := make([]handler[E], 0, len(hs)-1)
			next = append(next, hs[:i]...)
			next = append(next, hs[i+1:]...)
			if len(next) == 0 {
				delete(r.handlers, key)
			} else {
				r.handlers[key] = next
			}
			return
		}
	}
}

// Emit calls every handler registered under key with e.
// Handlers are invoked outside the lock and may register or remove handlers.
func (r *Registry[K, E]) Emit(key K, e E) {
	r.mu.RLock()
	hs := r.handlers[key]
	r.mu.RUnlock()

	for _, h := range hs {
		h.fn(e)
	}
}

// Len returns the number of handlers registered under key.
func (r *Registry[K, E]) Len(key K) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[key])
}

// Scope collects release functions and runs all of them once on Close.
type Scope struct {
	mu     sync.Mutex
	offs   []func()
	closed bool
}

// Add records off for release. If the scope is already closed, off runs immediately.
func (s *Scope) Add(off func()) {
	if off == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		off()
		return
	}
	s.offs = append(s.offs, off)
	s.mu.Unlock()
}

// Close releases every recorded registration in reverse order.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	offs := s.offs
	s.offs = nil
	s.mu.Unlock()

	for i := len(offs) - 1; i >= 0; i-- {
		offs[i]()
	}
}

// Bind registers fn on r under key and records the release in s.
func Bind[K comparable, E any](s *Scope, r interface {
	On(K, func(E)) func()
}, key K, fn func(E)) {
	s.Add(r.On(key, fn))
}
