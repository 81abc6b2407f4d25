package serialport

import (
	"slices"
	"sync"

	"github.com/allbin/go-serialport/transport"
)

// EventKind names one of the session's event channels.
type EventKind int

const (
	EventOpen EventKind = iota
	EventData
	EventClose
	EventError
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventData:
		return "data"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is what subscribers receive. Which fields are set depends on Kind:
// Info for open, Data for data, Err for error and disconnect, nothing for close.
type Event struct {
	Kind EventKind
	Info transport.ConnectionInfo
	Data []byte
	Err  error
}

// SubscriptionID identifies a subscriber for Unsubscribe.
type SubscriptionID uint64

type subscriber struct {
	id   SubscriptionID
	kind EventKind
	fn   func(Event)
}

// emitter is the session's subscriber registry.
type emitter struct {
	mu     sync.Mutex
	nextID SubscriptionID
	subs   []subscriber
}

func (e *emitter) subscribe(kind EventKind, fn func(Event)) SubscriptionID {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	e.subs = append(e.subs, subscriber{id: e.nextID, kind: kind, fn: fn})
	return e.nextID
}

func (e *emitter) unsubscribe(id SubscriptionID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.subs = slices.DeleteFunc(e.subs, func(s subscriber) bool { return s.id == id })
}

func (e *emitter) removeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = nil
}

func (e *emitter) count(kind EventKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, s := range e.subs {
		if s.kind == kind {
			n++
		}
	}
	return n
}

// emit calls matching subscribers outside the lock, in subscription order.
func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	var fns []func(Event)
	for _, s := range e.subs {
		if s.kind == ev.Kind {
			fns = append(fns, s.fn)
		}
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
