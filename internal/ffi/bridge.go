package ffi

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

// ErrBridgeClosed fails calls still pending when the library is unloaded.
var ErrBridgeClosed = errors.New("bridge closed")

// Reply is the answer to a Call. When OK is false, Payload holds the
// engine's {message, code} rejection.
type Reply struct {
	OK      bool
	Payload []byte
}

// EventHandler receives a native event name and its JSON payload.
type EventHandler func(name string, payload []byte)

var (
	callbackInitMu sync.Mutex
	eventCbPtr     uintptr
	replyCbPtr     uintptr

	eventHandler atomic.Value // EventHandler

	pendingMu  sync.Mutex
	pending    = make(map[uint64]chan Reply)
	nextCallID atomic.Uint64
)

// safeCallback wraps a callback with panic recovery. Panics must not cross
// back into native code.
func safeCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[webrtckit] panic recovered in callback: %v", r)
		}
	}()
	fn()
}

// SetEventHandler installs the receiver of all native events. A nil handler
// drops events.
func SetEventHandler(h EventHandler) {
	eventHandler.Store(h)
}

func eventCallbackPtr() uintptr {
	callbackInitMu.Lock()
	defer callbackInitMu.Unlock()
	if eventCbPtr == 0 {
		eventCbPtr = purego.NewCallback(func(name, payload uintptr) {
			safeCallback(func() {
				dispatchEvent(goString(name), goBytes(payload))
			})
		})
	}
	return eventCbPtr
}

func replyCallbackPtr() uintptr {
	callbackInitMu.Lock()
	defer callbackInitMu.Unlock()
	if replyCbPtr == 0 {
		replyCbPtr = purego.NewCallback(func(callID uint64, ok int32, payload uintptr) {
			safeCallback(func() {
				resolve(callID, Reply{OK: ok != 0, Payload: goBytes(payload)})
			})
		})
	}
	return replyCbPtr
}

func dispatchEvent(name string, payload []byte) {
	h, _ := eventHandler.Load().(EventHandler)
	if h == nil {
		return
	}
	h(name, payload)
}

func resolve(callID uint64, r Reply) {
	pendingMu.Lock()
	ch, ok := pending[callID]
	delete(pending, callID)
	pendingMu.Unlock()

	if !ok {
		// Caller gave up waiting.
		return
	}
	ch <- r
}

func failPending() {
	pendingMu.Lock()
	defer pendingMu.Unlock()
	for id, ch := range pending {
		close(ch)
		delete(pending, id)
	}
}

// Call posts a request and waits for its reply. A cancelled context stops
// the wait; the native side still completes the request and its reply is
// discarded.
func Call(ctx context.Context, method string, args []byte) (Reply, error) {
	if !libLoaded.Load() {
		return Reply{}, ErrLibraryNotLoaded
	}

	id := nextCallID.Add(1)
	ch := make(chan Reply, 1)
	pendingMu.Lock()
	pending[id] = ch
	pendingMu.Unlock()

	wkInvoke(id, method, string(args))

	select {
	case r, ok := <-ch:
		if !ok {
			return Reply{}, ErrBridgeClosed
		}
		return r, nil
	case <-ctx.Done():
		pendingMu.Lock()
		delete(pending, id)
		pendingMu.Unlock()
		return Reply{}, ctx.Err()
	}
}

// Notify posts a fire-and-forget command.
func Notify(method string, args []byte) error {
	if !libLoaded.Load() {
		return ErrLibraryNotLoaded
	}
	wkNotify(method, string(args))
	return nil
}

// goString copies a NUL-terminated C string. The native side owns the
// memory and keeps it alive for the duration of the callback, so the Go
// collector never sees it; p is reinterpreted in place rather than converted.
func goString(p uintptr) string {
	if p == 0 {
		return ""
	}
	ptr := *(*unsafe.Pointer)(unsafe.Pointer(&p))
	n := 0
	for *(*byte)(unsafe.Add(ptr, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(ptr), n))
}

func goBytes(p uintptr) []byte {
	s := goString(p)
	if s == "" {
		return nil
	}
	return []byte(s)
}
