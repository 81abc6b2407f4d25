package transport

import (
	"slices"
	"sync"
)

// Listeners is a concurrency-safe registry of notification funcs.
// The zero value is ready to use.
type Listeners[T any] struct {
	mu      sync.Mutex
	nextID  ListenerID
	entries []listenerEntry[T]
}

type listenerEntry[T any] struct {
	id ListenerID
	fn func(T)
}

// Add registers fn and returns its id. Ids start at 1 and are never reused.
func (l *Listeners[T]) Add(fn func(T)) ListenerID {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	l.entries = append(l.entries, listenerEntry[T]{id: l.nextID, fn: fn})
	return l.nextID
}

// Remove unregisters id. Unknown ids are ignored.
func (l *Listeners[T]) Remove(id ListenerID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = slices.DeleteFunc(l.entries, func(e listenerEntry[T]) bool {
		return e.id == id
	})
}

// Len returns the number of registered listeners.
func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Dispatch calls every registered listener with v, outside the lock.
// A listener removed by an earlier listener during the same dispatch is skipped.
func (l *Listeners[T]) Dispatch(v T) {
	l.mu.Lock()
	snapshot := slices.Clone(l.entries)
	l.mu.Unlock()

	for _, e := range snapshot {
		if !l.registered(e.id) {
			continue
		}
		e.fn(v)
	}
}

func (l *Listeners[T]) registered(id ListenerID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.ContainsFunc(l.entries, func(e listenerEntry[T]) bool {
		return e.id == id
	})
}
