package pc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/logging"

	"github.com/thesyncim/webrtckit/pkg/bridge"
	"github.com/thesyncim/webrtckit/pkg/event"
)

// DataChannel is a bidirectional message pipe multiplexed over the peer
// connection's transport. Its ready state follows engine notifications and
// only moves forward: connecting, open, closing, closed.
type DataChannel struct {
	*event.Target

	engine bridge.Engine
	log    logging.LeveledLogger
	tag    bridge.Tag
	label  string

	mu                sync.RWMutex
	id                *uint16
	protocol          string
	ordered           bool
	negotiated        bool
	maxPacketLifeTime *uint16
	maxRetransmits    *uint16
	readyState        DataChannelState
	bufferedAmount    uint64
	lowThreshold      uint64
	owed              DataChannelState // seeded from info, event not yet raised

	subs           []*bridge.Subscription
	teardown       sync.Once
	closeRequested atomic.Bool
}

func newDataChannel(engine bridge.Engine, tag bridge.Tag, label string, log logging.LeveledLogger) *DataChannel {
	return &DataChannel{
		Target:  event.NewTarget("datachannel "+label, log, dataChannelEvents...),
		engine:  engine,
		log:     log,
		tag:     tag,
		label:   label,
		ordered: true,
	}
}

// subscribe attaches the channel to its engine events. Must run before the
// engine can report anything for the tag.
func (dc *DataChannel) subscribe() {
	bus := dc.engine.Events()
	dc.subs = []*bridge.Subscription{
		bus.Subscribe(bridge.KindDataChannelStateChanged, dc.tag, dc.onStateChanged),
		bus.Subscribe(bridge.KindDataChannelMessage, dc.tag, dc.onMessage),
		bus.Subscribe(bridge.KindDataChannelBufferedAmountChanged, dc.tag, dc.onBufferedAmount),
	}
}

// apply copies the engine's description of the channel. A ready state past
// connecting is taken without raising its event, since no listener can be
// attached yet; the event is raised when the engine next reports that state.
func (dc *DataChannel) apply(info bridge.DataChannelInfo) {
	dc.mu.Lock()
	dc.id = info.ID
	dc.protocol = info.Protocol
	dc.ordered = info.Ordered
	dc.negotiated = info.Negotiated
	dc.maxPacketLifeTime = info.MaxPacketLifeTime
	dc.maxRetransmits = info.MaxRetransmits
	dc.bufferedAmount = info.BufferedAmount
	dc.mu.Unlock()

	if info.ReadyState == "" {
		return
	}
	state, ok := parseDataChannelState(info.ReadyState)
	if !ok {
		dc.log.Warnf("data channel %s: unknown ready state %q", dc.label, info.ReadyState)
		return
	}
	dc.mu.Lock()
	if state <= dc.readyState {
		dc.mu.Unlock()
		return
	}
	dc.readyState = state
	dc.owed = state
	dc.mu.Unlock()
	if state == DataChannelStateClosed {
		dc.unsubscribe()
	}
}

// Label returns the channel label.
func (dc *DataChannel) Label() string { return dc.label }

// ID returns the SCTP stream id, nil until assigned.
func (dc *DataChannel) ID() *uint16 {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.id
}

// Protocol returns the subprotocol name.
func (dc *DataChannel) Protocol() string {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.protocol
}

// Ordered reports whether delivery is ordered.
func (dc *DataChannel) Ordered() bool {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.ordered
}

// Negotiated reports whether the channel was negotiated out of band.
func (dc *DataChannel) Negotiated() bool {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.negotiated
}

// MaxPacketLifeTime returns the partial reliability lifetime in ms, or nil.
func (dc *DataChannel) MaxPacketLifeTime() *uint16 {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.maxPacketLifeTime
}

// MaxRetransmits returns the partial reliability retransmit limit, or nil.
func (dc *DataChannel) MaxRetransmits() *uint16 {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.maxRetransmits
}

// ReadyState returns the channel state.
func (dc *DataChannel) ReadyState() DataChannelState {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.readyState
}

// BufferedAmount returns the last buffered amount reported by the engine.
func (dc *DataChannel) BufferedAmount() uint64 {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.bufferedAmount
}

// BufferedAmountLowThreshold returns the low-water mark.
func (dc *DataChannel) BufferedAmountLowThreshold() uint64 {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.lowThreshold
}

// SetBufferedAmountLowThreshold sets the level at or below which a buffered
// amount update raises bufferedamountlow. The threshold is local only.
func (dc *DataChannel) SetBufferedAmountLowThreshold(th uint64) {
	dc.mu.Lock()
	dc.lowThreshold = th
	dc.mu.Unlock()
}

// OnOpen sets the open handler.
func (dc *DataChannel) OnOpen(f func()) {
	dc.setSlot(EventOpen, wrapPlain(f))
}

// OnClosing sets the closing handler.
func (dc *DataChannel) OnClosing(f func()) {
	dc.setSlot(EventClosing, wrapPlain(f))
}

// OnClose sets the close handler.
func (dc *DataChannel) OnClose(f func()) {
	dc.setSlot(EventClose, wrapPlain(f))
}

// OnBufferedAmountLow sets the bufferedamountlow handler.
func (dc *DataChannel) OnBufferedAmountLow(f func()) {
	dc.setSlot(EventBufferedAmountLow, wrapPlain(f))
}

// OnMessage sets the message handler.
func (dc *DataChannel) OnMessage(f func(*MessageEvent)) {
	var h event.Handler
	if f != nil {
		h = func(ev event.Event) { f(ev.(*MessageEvent)) }
	}
	dc.setSlot(EventMessage, h)
}

func (dc *DataChannel) setSlot(typ event.Type, h event.Handler) {
	if err := dc.SetHandler(typ, h); err != nil {
		dc.log.Errorf("data channel %s: %v", dc.label, err)
	}
}

func wrapPlain(f func()) event.Handler {
	if f == nil {
		return nil
	}
	return func(event.Event) { f() }
}

// Send transmits a string as text or a []byte as binary. Any other payload
// type fails with a TypeError without reaching the engine.
func (dc *DataChannel) Send(ctx context.Context, data any) error {
	var buf bridge.DataBuffer
	switch v := data.(type) {
	case string:
		buf = bridge.TextBuffer(v)
	case []byte:
		buf = bridge.BinaryBuffer(v)
	default:
		return precondition(fmt.Errorf("%w: %T", ErrInvalidPayload, data))
	}
	return dc.send(ctx, buf)
}

// SendText transmits a text message.
func (dc *DataChannel) SendText(ctx context.Context, text string) error {
	return dc.send(ctx, bridge.TextBuffer(text))
}

// SendBinary transmits a binary message.
func (dc *DataChannel) SendBinary(ctx context.Context, data []byte) error {
	return dc.send(ctx, bridge.BinaryBuffer(data))
}

func (dc *DataChannel) send(ctx context.Context, buf bridge.DataBuffer) error {
	if state := dc.ReadyState(); state != DataChannelStateOpen {
		return invalidState(fmt.Errorf("data channel %s is %s: %w", dc.label, state, ErrDataChannelNotOpen))
	}
	if err := dc.engine.SendData(ctx, dc.tag, buf); err != nil {
		return engineError("send", err)
	}
	return nil
}

// Close asks the engine to close the channel. The ready state changes when
// the engine reports it. Calling Close again does nothing.
func (dc *DataChannel) Close() {
	if dc.ReadyState() == DataChannelStateClosed {
		return
	}
	if !dc.closeRequested.CompareAndSwap(false, true) {
		return
	}
	dc.engine.CloseDataChannel(dc.tag)
}

func (dc *DataChannel) onStateChanged(ev bridge.Event) {
	raw := ev.(*bridge.DataChannelStateChanged).State
	state, ok := parseDataChannelState(raw)
	if !ok {
		dc.log.Warnf("data channel %s: unknown ready state %q", dc.label, raw)
		return
	}
	dc.advance(state)
}

// advance moves the ready state forward and raises the matching event.
// Reports that repeat or reverse the current state are ignored, except the
// first repeat of a state seeded by apply.
func (dc *DataChannel) advance(state DataChannelState) {
	dc.mu.Lock()
	prev := dc.readyState
	switch {
	case state == prev && state == dc.owed:
	case state <= prev:
		dc.mu.Unlock()
		dc.log.Debugf("data channel %s: ignoring %s while %s", dc.label, state, prev)
		return
	}
	dc.readyState = state
	dc.owed = DataChannelStateConnecting
	dc.mu.Unlock()

	switch state {
	case DataChannelStateOpen:
		dc.dispatch(event.Basic(EventOpen))
	case DataChannelStateClosing:
		dc.dispatch(event.Basic(EventClosing))
	case DataChannelStateClosed:
		dc.dispatch(event.Basic(EventClose))
		dc.unsubscribe()
	}
}

func (dc *DataChannel) unsubscribe() {
	dc.teardown.Do(func() {
		for _, s := range dc.subs {
			s.Unsubscribe()
		}
	})
}

func (dc *DataChannel) onMessage(ev bridge.Event) {
	msg := ev.(*bridge.DataChannelMessage)
	data, err := msg.Bytes()
	if err != nil {
		dc.log.Errorf("data channel %s: dropping message: %v", dc.label, err)
		return
	}
	dc.dispatch(&MessageEvent{Data: data, IsString: !msg.Binary})
}

func (dc *DataChannel) onBufferedAmount(ev bridge.Event) {
	amount := ev.(*bridge.DataChannelBufferedAmountChanged).Amount

	dc.mu.Lock()
	dc.bufferedAmount = amount
	low := amount <= dc.lowThreshold
	dc.mu.Unlock()

	if low {
		dc.dispatch(event.Basic(EventBufferedAmountLow))
	}
}

func (dc *DataChannel) dispatch(ev event.Event) {
	if err := dc.DispatchEvent(ev); err != nil {
		dc.log.Warnf("data channel %s: %v", dc.label, err)
	}
}
