package pc

import (
	"sync"

	"github.com/thesyncim/webrtckit/pkg/bridge"
)

// registry keeps engine-owned objects keyed by their value tag so that the
// same native object always maps to the same Go value, whichever of the
// request reply or the inbound event reports it first.
type registry[T any] struct {
	mu    sync.RWMutex
	order []bridge.Tag
	items map[bridge.Tag]T
}

// getOrAdd returns the entry for tag, building and inserting it if absent.
// added reports whether build ran.
func (r *registry[T]) getOrAdd(tag bridge.Tag, build func() T) (v T, added bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.items[tag]; ok {
		return v, false
	}
	if r.items == nil {
		r.items = make(map[bridge.Tag]T)
	}
	v = build()
	r.items[tag] = v
	r.order = append(r.order, tag)
	return v, true
}

func (r *registry[T]) remove(tag bridge.Tag) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[tag]
	if !ok {
		return v, false
	}
	delete(r.items, tag)
	for i, t := range r.order {
		if t == tag {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return v, true
}

// list returns a snapshot in insertion order.
func (r *registry[T]) list() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.items[t])
	}
	return out
}
