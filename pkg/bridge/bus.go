package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/pion/logging"
)

// Bus is the shared inbound event stream. Every event published is delivered
// from a single dispatcher goroutine, in publish order, to the subscriptions
// whose kind and target tag match. Handlers run to completion before the next
// event is delivered.
type Bus struct {
	log  logging.LeveledLogger
	tags Counter

	mu     sync.Mutex
	nextID uint64
	subs   []*Subscription
	queue  []busItem
	closed bool

	wake chan struct{}
	done chan struct{}
}

type busItem struct {
	ev      Event
	barrier chan struct{}
}

// Subscription is a tag-scoped registration on a Bus.
type Subscription struct {
	bus    *Bus
	id     uint64
	kind   EventKind
	tag    Tag
	fn     func(Event)
	active atomic.Bool
	once   sync.Once
}

// NewBus starts a bus dispatcher.
func NewBus(log logging.LeveledLogger) *Bus {
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("bridge")
	}
	b := &Bus{
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go b.run()
	return b
}

// NextTag mints a session tag unique among every connection and data channel
// sharing this bus.
func (b *Bus) NextTag() Tag { return b.tags.NextTag() }

// Subscribe registers fn for events of kind addressed to tag.
func (b *Bus) Subscribe(kind EventKind, tag Tag, fn func(Event)) *Subscription {
	s := &Subscription{bus: b, kind: kind, tag: tag, fn: fn}
	s.active.Store(true)

	b.mu.Lock()
	b.nextID++
	s.id = b.nextID
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s
}

// Unsubscribe removes the subscription. Safe to call more than once and from
// inside a handler.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.active.Store(false)
		b := s.bus
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub == s {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	})
}

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// Subscribers returns the number of live subscriptions addressed to tag.
func (b *Bus) Subscribers(tag Tag) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs {
		if s.tag == tag {
			n++
		}
	}
	return n
}

// Publish enqueues ev for delivery. It never blocks.
func (b *Bus) Publish(ev Event) {
	b.enqueue(busItem{ev: ev})
}

// Sync blocks until every event published before the call has been
// delivered. It returns immediately on a closed bus. Calling Sync from a
// handler deadlocks.
func (b *Bus) Sync() {
	ch := make(chan struct{})
	if !b.enqueue(busItem{barrier: ch}) {
		return
	}
	select {
	case <-ch:
	case <-b.done:
	}
}

func (b *Bus) enqueue(it busItem) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		if it.ev != nil {
			b.log.Debugf("dropping %s for %q: bus closed", it.ev.Kind(), it.ev.Target())
		}
		return false
	}
	b.queue = append(b.queue, it)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return true
}

// Close stops the dispatcher. Queued events are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.queue = nil
	b.mu.Unlock()
	close(b.done)
}

func (b *Bus) run() {
	for {
		select {
		case <-b.done:
			return
		case <-b.wake:
		}
		for {
			b.mu.Lock()
			if b.closed || len(b.queue) == 0 {
				b.mu.Unlock()
				break
			}
			it := b.queue[0]
			b.queue[0] = busItem{}
			b.queue = b.queue[1:]
			b.mu.Unlock()

			if it.barrier != nil {
				close(it.barrier)
				continue
			}
			b.deliver(it.ev)
		}
	}
}

func (b *Bus) deliver(ev Event) {
	kind, tag := ev.Kind(), ev.Target()

	b.mu.Lock()
	var matched []*Subscription
	for _, s := range b.subs {
		if s.kind == kind && s.tag == tag {
			matched = append(matched, s)
		}
	}
	b.mu.Unlock()

	if len(matched) == 0 {
		b.log.Tracef("no subscriber for %s on %q", kind, tag)
		return
	}
	for _, s := range matched {
		if !s.Active() {
			continue
		}
		b.call(s, ev)
	}
}

func (b *Bus) call(s *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorf("panic recovered in %s handler for %q: %v", ev.Kind(), s.tag, r)
		}
	}()
	s.fn(ev)
}
