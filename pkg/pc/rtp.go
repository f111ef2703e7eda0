package pc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/logging"

	"github.com/thesyncim/webrtckit/pkg/bridge"
)

// RTPSender represents an RTP sender.
type RTPSender struct {
	tag        bridge.Tag
	id         string
	track      *MediaStreamTrack
	parameters RTPParameters
	streamIDs  []string
}

func newRTPSender(info bridge.SenderInfo, track *MediaStreamTrack) *RTPSender {
	return &RTPSender{
		tag:        info.Tag,
		id:         info.ID,
		track:      track,
		parameters: info.Parameters,
		streamIDs:  append([]string(nil), info.StreamIDs...),
	}
}

// ID returns the sender id assigned by the engine.
func (s *RTPSender) ID() string { return s.id }

// Track returns the sender's track, or nil.
func (s *RTPSender) Track() *MediaStreamTrack { return s.track }

// Parameters returns the RTP parameters reported when the sender was
// created. The returned value must not be modified.
func (s *RTPSender) Parameters() RTPParameters { return s.parameters }

// StreamIDs returns the stream ids the sender is associated with.
func (s *RTPSender) StreamIDs() []string { return append([]string(nil), s.streamIDs...) }

// RTPReceiver represents an RTP receiver.
type RTPReceiver struct {
	tag        bridge.Tag
	id         string
	track      *MediaStreamTrack
	parameters RTPParameters
	streamIDs  []string
}

func newRTPReceiver(info bridge.ReceiverInfo, track *MediaStreamTrack) *RTPReceiver {
	return &RTPReceiver{
		tag:        info.Tag,
		id:         info.ID,
		track:      track,
		parameters: info.Parameters,
		streamIDs:  append([]string(nil), info.StreamIDs...),
	}
}

// ID returns the receiver id assigned by the engine.
func (r *RTPReceiver) ID() string { return r.id }

// Track returns the receiver's track, or nil.
func (r *RTPReceiver) Track() *MediaStreamTrack { return r.track }

// Parameters returns the RTP parameters reported by the engine. The
// returned value must not be modified.
func (r *RTPReceiver) Parameters() RTPParameters { return r.parameters }

// StreamIDs returns the remote stream ids the receiver belongs to.
func (r *RTPReceiver) StreamIDs() []string { return append([]string(nil), r.streamIDs...) }

// RTPTransceiver pairs one sender with one receiver. Its direction lives in
// the engine and is queried on every call.
type RTPTransceiver struct {
	engine   bridge.Engine
	log      logging.LeveledLogger
	tag      bridge.Tag
	sender   *RTPSender
	receiver *RTPReceiver

	mu      sync.RWMutex
	mid     string
	stopped atomic.Bool
	started atomic.Bool
}

// Sender returns the transceiver's sender.
func (t *RTPTransceiver) Sender() *RTPSender { return t.sender }

// Receiver returns the transceiver's receiver.
func (t *RTPTransceiver) Receiver() *RTPReceiver { return t.receiver }

// Mid returns the media identifier, empty until negotiated.
func (t *RTPTransceiver) Mid() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mid
}

func (t *RTPTransceiver) setMid(mid string) {
	if mid == "" {
		return
	}
	t.mu.Lock()
	t.mid = mid
	t.mu.Unlock()
}

// Stopped reports whether Stop was called or the engine reported the
// transceiver stopped. Once true it stays true.
func (t *RTPTransceiver) Stopped() bool { return t.stopped.Load() }

// Direction asks the engine for the configured direction.
func (t *RTPTransceiver) Direction(ctx context.Context) (TransceiverDirection, error) {
	raw, err := t.engine.TransceiverDirection(ctx, t.tag)
	if err != nil {
		return TransceiverDirectionUnknown, engineError("direction", err)
	}
	return t.direction("direction", raw), nil
}

// CurrentDirection asks the engine for the negotiated direction.
// TransceiverDirectionUnknown means nothing has been negotiated yet.
func (t *RTPTransceiver) CurrentDirection(ctx context.Context) (TransceiverDirection, error) {
	raw, err := t.engine.TransceiverCurrentDirection(ctx, t.tag)
	if err != nil {
		return TransceiverDirectionUnknown, engineError("currentDirection", err)
	}
	return t.direction("currentDirection", raw), nil
}

func (t *RTPTransceiver) direction(op, raw string) TransceiverDirection {
	if raw == "" {
		return TransceiverDirectionUnknown
	}
	d, ok := parseTransceiverDirection(raw)
	if !ok {
		t.log.Warnf("transceiver %s: %s: unknown direction %q", t.tag, op, raw)
	}
	return d
}

// SetDirection requests a new direction. It takes effect at the next
// offer/answer exchange.
func (t *RTPTransceiver) SetDirection(d TransceiverDirection) error {
	switch d {
	case TransceiverDirectionSendRecv, TransceiverDirectionSendOnly,
		TransceiverDirectionRecvOnly, TransceiverDirectionInactive:
	default:
		return precondition(fmt.Errorf("%w: %s", ErrInvalidDirection, d))
	}
	if t.Stopped() {
		return invalidState(ErrTransceiverStopped)
	}
	t.engine.SetTransceiverDirection(t.tag, d.String())
	return nil
}

// Stop stops the transceiver. Stopped is set immediately; later calls do
// nothing.
func (t *RTPTransceiver) Stop() {
	if !t.stopped.CompareAndSwap(false, true) {
		return
	}
	t.engine.StopTransceiver(t.tag)
}
