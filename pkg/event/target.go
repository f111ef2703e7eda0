// Package event provides the listener registry shared by every entity that
// raises events: peer connections, data channels and media stream tracks.
package event

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/logging"
)

// ErrUnknownType is returned when a listener is registered for an event
// name outside the entity's declared set.
var ErrUnknownType = errors.New("unknown event type")

// Type is an event name such as "open" or "connectionstatechange".
type Type string

// Event is anything that can be dispatched through a Target.
type Event interface {
	Type() Type
}

// Handler receives a dispatched event.
type Handler func(Event)

// ListenerID identifies a registered handler. Handlers are funcs and cannot
// be compared, so removal goes through the id returned at registration.
type ListenerID uint64

// Basic is an Event without a payload.
type Basic Type

// Type implements Event.
func (b Basic) Type() Type { return Type(b) }

type listener struct {
	id ListenerID
	fn Handler
}

// Target dispatches events to listeners registered for a closed set of
// event names. Handlers for a type run in registration order.
type Target struct {
	name    string
	allowed map[Type]struct{}
	log     logging.LeveledLogger

	mu        sync.Mutex
	nextID    ListenerID
	listeners map[Type][]listener
	slots     map[Type]ListenerID
}

// NewTarget creates a Target accepting only the given event types. name is
// used in log and error messages.
func NewTarget(name string, log logging.LeveledLogger, types ...Type) *Target {
	allowed := make(map[Type]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("event")
	}
	return &Target{
		name:      name,
		allowed:   allowed,
		log:       log,
		listeners: make(map[Type][]listener),
		slots:     make(map[Type]ListenerID),
	}
}

// Accepts reports whether typ is in the target's event set.
func (t *Target) Accepts(typ Type) bool {
	_, ok := t.allowed[typ]
	return ok
}

// AddEventListener registers fn for typ and returns its id.
func (t *Target) AddEventListener(typ Type, fn Handler) (ListenerID, error) {
	if !t.Accepts(typ) {
		return 0, fmt.Errorf("%s: %w %q", t.name, ErrUnknownType, typ)
	}
	if fn == nil {
		return 0, fmt.Errorf("%s: nil handler for %q", t.name, typ)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addLocked(typ, fn), nil
}

func (t *Target) addLocked(typ Type, fn Handler) ListenerID {
	t.nextID++
	id := t.nextID
	t.listeners[typ] = append(t.listeners[typ], listener{id: id, fn: fn})
	return id
}

// RemoveEventListener unregisters the handler with the given id. Unknown ids
// are ignored.
func (t *Target) RemoveEventListener(typ Type, id ListenerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(typ, id)
	if t.slots[typ] == id {
		delete(t.slots, typ)
	}
}

func (t *Target) removeLocked(typ Type, id ListenerID) {
	ls := t.listeners[typ]
	for i, l := range ls {
		if l.id == id {
			t.listeners[typ] = append(ls[:i:i], ls[i+1:]...)
			return
		}
	}
}

// SetHandler fills the single on<type> slot for typ. A second call replaces
// the handler in place, keeping its position in dispatch order. A nil fn
// clears the slot.
func (t *Target) SetHandler(typ Type, fn Handler) error {
	if !t.Accepts(typ) {
		return fmt.Errorf("%s: %w %q", t.name, ErrUnknownType, typ)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.slots[typ]
	if fn == nil {
		if ok {
			t.removeLocked(typ, id)
			delete(t.slots, typ)
		}
		return nil
	}
	if ok {
		for i, l := range t.listeners[typ] {
			if l.id == id {
				t.listeners[typ][i].fn = fn
				return nil
			}
		}
	}
	t.slots[typ] = t.addLocked(typ, fn)
	return nil
}

// ListenerCount returns the number of handlers registered for typ,
// including the on<type> slot.
func (t *Target) ListenerCount(typ Type) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners[typ])
}

// DispatchEvent invokes every handler registered for ev.Type() synchronously
// on the calling goroutine. A panicking handler does not stop delivery to the
// ones after it; recovered panics are logged and returned joined.
func (t *Target) DispatchEvent(ev Event) error {
	typ := ev.Type()
	if !t.Accepts(typ) {
		return fmt.Errorf("%s: %w %q", t.name, ErrUnknownType, typ)
	}

	t.mu.Lock()
	ls := append([]listener(nil), t.listeners[typ]...)
	t.mu.Unlock()

	var errs []error
	for _, l := range ls {
		if err := t.invoke(typ, l.fn, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Target) invoke(typ Type, fn Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %q handler panicked: %v", t.name, typ, r)
			t.log.Errorf("%v", err)
		}
	}()
	fn(ev)
	return nil
}
