// Package notify provides a listener registry for state-change notifications.
package notify

import "sync"

// Registry holds change listeners. Subscribing and unsubscribing are O(1),
// and listeners may unsubscribe (themselves or others) while being notified.
type Registry struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]func()
	order     []uint64
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is idempotent.
func (r *Registry) Subscribe(fn func()) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listeners == nil {
		r.listeners = make(map[uint64]func())
	}
	r.nextID++
	id := r.nextID
	r.listeners[id] = fn
	r.order = append(r.order, id)

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Notify calls every listener registered at the time of the call, in
// subscription order. Listeners removed during the pass are skipped.
func (r *Registry) Notify() {
	r.mu.Lock()
	ids := r.compact()
	r.mu.Unlock()

	for _, id := range ids {
		r.mu.Lock()
		fn, ok := r.listeners[id]
		r.mu.Unlock()
		if ok {
			fn()
		}
	}
}

// Len returns the number of active listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// compact drops ids of removed listeners and returns a snapshot of the
// remaining order. Caller must hold the lock.
func (r *Registry) compact() []uint64 {
	live := r.order[:0]
	for _, id := range r.order {
		if _, ok := r.listeners[id]; ok {
			live = append(live, id)
		}
	}
	r.order = live

	snapshot := make([]uint64, len(live))
	copy(snapshot, live)
	return snapshot
}
