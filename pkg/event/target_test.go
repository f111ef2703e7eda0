package event

import (
	"errors"
	"reflect"
	"testing"
)

const (
	typeOpen  Type = "open"
	typeClose Type = "close"
)

func newTestTarget() *Target {
	return NewTarget("test", nil, typeOpen, typeClose)
}

func TestTarget_UnknownType(t *testing.T) {
	target := newTestTarget()

	if _, err := target.AddEventListener("message", func(Event) {}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("AddEventListener(message) error = %v, want ErrUnknownType", err)
	}
	if err := target.SetHandler("message", func(Event) {}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("SetHandler(message) error = %v, want ErrUnknownType", err)
	}
	if err := target.DispatchEvent(Basic("message")); !errors.Is(err, ErrUnknownType) {
		t.Errorf("DispatchEvent(message) error = %v, want ErrUnknownType", err)
	}
}

func TestTarget_RegistrationOrder(t *testing.T) {
	target := newTestTarget()
	var got []int
	for i := 0; i < 3; i++ {
		i := i
		if _, err := target.AddEventListener(typeOpen, func(Event) { got = append(got, i) }); err != nil {
			t.Fatalf("AddEventListener: %v", err)
		}
	}

	if err := target.DispatchEvent(Basic(typeOpen)); err != nil {
		t.Fatalf("DispatchEvent: %v", err)
	}
	if want := []int{0, 1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("dispatch order = %v, want %v", got, want)
	}
}

func TestTarget_RemoveEventListener(t *testing.T) {
	target := newTestTarget()
	calls := 0
	id, err := target.AddEventListener(typeOpen, func(Event) { calls++ })
	if err != nil {
		t.Fatalf("AddEventListener: %v", err)
	}

	target.RemoveEventListener(typeOpen, id)
	target.RemoveEventListener(typeOpen, id)
	target.RemoveEventListener(typeClose, 42)

	_ = target.DispatchEvent(Basic(typeOpen))
	if calls != 0 {
		t.Errorf("calls after remove = %d, want 0", calls)
	}
}

func TestTarget_PanicIsolation(t *testing.T) {
	target := newTestTarget()
	var reached bool
	_, _ = target.AddEventListener(typeClose, func(Event) { panic("boom") })
	_, _ = target.AddEventListener(typeClose, func(Event) { reached = true })

	err := target.DispatchEvent(Basic(typeClose))
	if err == nil {
		t.Error("DispatchEvent error = nil, want recovered panic")
	}
	if !reached {
		t.Error("handler after a panicking one was not invoked")
	}
}

func TestTarget_SetHandlerReplaces(t *testing.T) {
	target := newTestTarget()
	var got []string
	_, _ = target.AddEventListener(typeOpen, func(Event) { got = append(got, "first") })
	_ = target.SetHandler(typeOpen, func(Event) { got = append(got, "slot-a") })
	_, _ = target.AddEventListener(typeOpen, func(Event) { got = append(got, "last") })
	_ = target.SetHandler(typeOpen, func(Event) { got = append(got, "slot-b") })

	if n := target.ListenerCount(typeOpen); n != 3 {
		t.Fatalf("ListenerCount = %d, want 3", n)
	}
	_ = target.DispatchEvent(Basic(typeOpen))
	if want := []string{"first", "slot-b", "last"}; !reflect.DeepEqual(got, want) {
		t.Errorf("dispatch = %v, want %v", got, want)
	}

	_ = target.SetHandler(typeOpen, nil)
	if n := target.ListenerCount(typeOpen); n != 2 {
		t.Errorf("ListenerCount after clearing slot = %d, want 2", n)
	}
}

func TestTarget_RemoveDuringDispatch(t *testing.T) {
	target := newTestTarget()
	calls := 0
	var second ListenerID
	_, _ = target.AddEventListener(typeOpen, func(Event) {
		target.RemoveEventListener(typeOpen, second)
	})
	second, _ = target.AddEventListener(typeOpen, func(Event) { calls++ })

	// The snapshot taken at dispatch still delivers to the removed handler.
	_ = target.DispatchEvent(Basic(typeOpen))
	_ = target.DispatchEvent(Basic(typeOpen))
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
