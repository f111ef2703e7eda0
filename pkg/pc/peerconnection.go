// Package pc provides a browser-like PeerConnection API over a native
// WebRTC engine. The engine does the real work; this package keeps the
// object model (senders, receivers, transceivers, data channels, tracks)
// and the connection state in step with the engine's events.
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

// PeerConnection represents a WebRTC peer connection.
//
// All state changes are driven by engine events for this connection's
// session tag; in particular the connection only becomes closed when the
// engine says so, after which it stops listening for events.
type PeerConnection struct {
	*event.Target

	api         *API
	engine      bridge.Engine
	log         logging.LeveledLogger
	tag         bridge.Tag
	constraints MediaConstraints

	mu                 sync.RWMutex
	connectionState    PeerConnectionState
	iceConnectionState ICEConnectionState
	iceGatheringState  ICEGatheringState
	signalingState     SignalingState
	localDescription   *SessionDescription
	remoteDescription  *SessionDescription

	senders      registry[*RTPSender]
	receivers    registry[*RTPReceiver]
	transceivers registry[*RTPTransceiver]

	subs           []*bridge.Subscription
	teardown       sync.Once
	closeRequested atomic.Bool
}

func newPeerConnection(api *API, config Configuration, constraints MediaConstraints) *PeerConnection {
	tag := api.tags.NextTag()
	log := api.loggerFactory.NewLogger("pc")
	pc := &PeerConnection{
		Target:      event.NewTarget("peerconnection "+string(tag), log, peerConnectionEvents...),
		api:         api,
		engine:      api.engine,
		log:         log,
		tag:         tag,
		constraints: constraints,
	}

	handlers := []struct {
		kind bridge.EventKind
		fn   func(bridge.Event)
	}{
		{bridge.KindNegotiationNeeded, pc.onNegotiationNeeded},
		{bridge.KindConnectionStateChanged, pc.onConnectionStateChanged},
		{bridge.KindICEConnectionStateChanged, pc.onICEConnectionStateChanged},
		{bridge.KindICEGatheringStateChanged, pc.onICEGatheringStateChanged},
		{bridge.KindSignalingStateChanged, pc.onSignalingStateChanged},
		{bridge.KindReceiverAdded, pc.onReceiverAdded},
		{bridge.KindReceiverRemoved, pc.onReceiverRemoved},
		{bridge.KindTransceiverStarted, pc.onTransceiverStarted},
		{bridge.KindICECandidateGathered, pc.onICECandidate},
		{bridge.KindDataChannelCreated, pc.onDataChannel},
	}
	bus := pc.engine.Events()
	for _, h := range handlers {
		pc.subs = append(pc.subs, bus.Subscribe(h.kind, tag, h.fn))
	}

	log.Debugf("peer connection %s: init", tag)
	pc.engine.InitPeerConnection(tag, config.toBridge(), constraints)
	return pc
}

// Tag returns the session tag correlating this connection with engine
// events.
func (pc *PeerConnection) Tag() bridge.Tag { return pc.tag }

// ConnectionState returns the aggregate connection state.
func (pc *PeerConnection) ConnectionState() PeerConnectionState {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.connectionState
}

// ICEConnectionState returns the ICE connection state.
func (pc *PeerConnection) ICEConnectionState() ICEConnectionState {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.iceConnectionState
}

// ICEGatheringState returns the ICE gathering state.
func (pc *PeerConnection) ICEGatheringState() ICEGatheringState {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.iceGatheringState
}

// SignalingState returns the signaling state.
func (pc *PeerConnection) SignalingState() SignalingState {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.signalingState
}

// LocalDescription returns the last successfully applied local description.
func (pc *PeerConnection) LocalDescription() *SessionDescription {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return copyDescription(pc.localDescription)
}

// RemoteDescription returns the last successfully applied remote description.
func (pc *PeerConnection) RemoteDescription() *SessionDescription {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return copyDescription(pc.remoteDescription)
}

func copyDescription(d *SessionDescription) *SessionDescription {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// GetSenders returns all RTP senders.
func (pc *PeerConnection) GetSenders() []*RTPSender { return pc.senders.list() }

// GetReceivers returns all RTP receivers.
func (pc *PeerConnection) GetReceivers() []*RTPReceiver { return pc.receivers.list() }

// GetTransceivers returns all RTP transceivers.
func (pc *PeerConnection) GetTransceivers() []*RTPTransceiver { return pc.transceivers.list() }

func (pc *PeerConnection) checkOpen() error {
	if pc.ConnectionState() == PeerConnectionStateClosed {
		return invalidState(ErrConnectionClosed)
	}
	return nil
}

// CreateOffer asks the engine for an offer. Nil constraints reuse the ones
// given at construction.
func (pc *PeerConnection) CreateOffer(ctx context.Context, constraints *MediaConstraints) (SessionDescription, error) {
	return pc.createDescription(ctx, "createOffer", constraints, pc.engine.CreateOffer)
}

// CreateAnswer asks the engine for an answer to the remote offer.
func (pc *PeerConnection) CreateAnswer(ctx context.Context, constraints *MediaConstraints) (SessionDescription, error) {
	return pc.createDescription(ctx, "createAnswer", constraints, pc.engine.CreateAnswer)
}

func (pc *PeerConnection) createDescription(
	ctx context.Context,
	op string,
	constraints *MediaConstraints,
	create func(context.Context, bridge.Tag, bridge.MediaConstraints) (bridge.SessionDescription, error),
) (SessionDescription, error) {
	if err := pc.checkOpen(); err != nil {
		return SessionDescription{}, err
	}
	mc := pc.constraints
	if constraints != nil {
		mc = *constraints
	}
	raw, err := create(ctx, pc.tag, mc)
	if err != nil {
		return SessionDescription{}, engineError(op, err)
	}
	desc, err := sessionDescriptionFromBridge(raw)
	if err != nil {
		return SessionDescription{}, engineError(op, err)
	}
	return desc, nil
}

// SetLocalDescription applies desc locally. LocalDescription changes only
// if the engine accepts it.
func (pc *PeerConnection) SetLocalDescription(ctx context.Context, desc SessionDescription) error {
	if err := pc.checkOpen(); err != nil {
		return err
	}
	if err := pc.engine.SetLocalDescription(ctx, pc.tag, desc.toBridge()); err != nil {
		return engineError("setLocalDescription", err)
	}
	pc.mu.Lock()
	pc.localDescription = &desc
	pc.mu.Unlock()
	return nil
}

// SetRemoteDescription applies the remote peer's desc. RemoteDescription
// changes only if the engine accepts it.
func (pc *PeerConnection) SetRemoteDescription(ctx context.Context, desc SessionDescription) error {
	if err := pc.checkOpen(); err != nil {
		return err
	}
	if err := pc.engine.SetRemoteDescription(ctx, pc.tag, desc.toBridge()); err != nil {
		return engineError("setRemoteDescription", err)
	}
	pc.mu.Lock()
	pc.remoteDescription = &desc
	pc.mu.Unlock()
	return nil
}

// AddICECandidate adds a remote candidate.
func (pc *PeerConnection) AddICECandidate(ctx context.Context, candidate ICECandidate) error {
	if err := pc.checkOpen(); err != nil {
		return err
	}
	if err := pc.engine.AddICECandidate(ctx, pc.tag, candidate); err != nil {
		return engineError("addIceCandidate", err)
	}
	return nil
}

// SetConfiguration forwards a new configuration to the engine.
func (pc *PeerConnection) SetConfiguration(config Configuration) error {
	if err := pc.checkOpen(); err != nil {
		return err
	}
	pc.engine.SetConfiguration(pc.tag, config.toBridge())
	return nil
}

// AddTrack adds a local track and returns its new sender. Ended tracks are
// rejected before reaching the engine.
func (pc *PeerConnection) AddTrack(ctx context.Context, track *MediaStreamTrack, streamIDs ...string) (*RTPSender, error) {
	if track == nil {
		return nil, precondition(ErrNilTrack)
	}
	if track.ReadyState() == TrackStateEnded {
		return nil, precondition(fmt.Errorf("addTrack %s: %w", track.ID(), ErrTrackEnded))
	}
	if err := pc.checkOpen(); err != nil {
		return nil, err
	}

	info, err := pc.engine.AddTrack(ctx, pc.tag, track.tag, streamIDs)
	if err != nil {
		return nil, engineError("addTrack", err)
	}
	sender, _ := pc.senders.getOrAdd(info.Tag, func() *RTPSender {
		return newRTPSender(info, pc.trackFor(info.Track, track))
	})
	pc.log.Debugf("peer connection %s: added sender %s for track %s", pc.tag, sender.id, track.ID())
	return sender, nil
}

// RemoveTrack removes sender from the connection. Unknown senders are
// ignored.
func (pc *PeerConnection) RemoveTrack(sender *RTPSender) {
	if sender == nil {
		return
	}
	if _, ok := pc.senders.remove(sender.tag); !ok {
		return
	}
	pc.engine.RemoveTrack(pc.tag, sender.tag)
}

// AddTransceiver creates a transceiver sending track.
func (pc *PeerConnection) AddTransceiver(ctx context.Context, track *MediaStreamTrack, init *TransceiverInit) (*RTPTransceiver, error) {
	if track == nil {
		return nil, precondition(ErrNilTrack)
	}
	if init != nil && init.Direction == TransceiverDirectionStopped {
		return nil, precondition(fmt.Errorf("%w: %s", ErrInvalidDirection, init.Direction))
	}
	if err := pc.checkOpen(); err != nil {
		return nil, err
	}

	info, err := pc.engine.AddTransceiver(ctx, pc.tag, track.tag, init.toBridge())
	if err != nil {
		return nil, engineError("addTransceiver", err)
	}
	t, _ := pc.transceiverFor(info, track)
	return t, nil
}

// CreateDataChannel opens a data channel. Setting both MaxPacketLifeTime and
// MaxRetransmits fails with a TypeError before anything reaches the engine.
func (pc *PeerConnection) CreateDataChannel(ctx context.Context, label string, options *DataChannelInit) (*DataChannel, error) {
	if options != nil && options.MaxPacketLifeTime != nil && options.MaxRetransmits != nil {
		return nil, precondition(ErrConflictingReliability)
	}
	if err := pc.checkOpen(); err != nil {
		return nil, err
	}

	dc := newDataChannel(pc.engine, pc.api.tags.NextTag(), label, pc.api.loggerFactory.NewLogger("datachannel"))
	dc.subscribe()
	info, err := pc.engine.CreateDataChannel(ctx, pc.tag, dc.tag, label, options.toBridge())
	if err != nil {
		dc.unsubscribe()
		return nil, engineError("createDataChannel", err)
	}
	if info.Tag != dc.tag {
		pc.log.Warnf("peer connection %s: engine answered channel %q with tag %q", pc.tag, dc.tag, info.Tag)
	}
	dc.apply(info)
	return dc, nil
}

// Close removes every sender and asks the engine to close the connection.
// ConnectionState becomes closed when the engine reports it. Calling Close
// again does nothing.
func (pc *PeerConnection) Close() error {
	if !pc.closeRequested.CompareAndSwap(false, true) {
		return nil
	}
	for _, s := range pc.GetSenders() {
		pc.RemoveTrack(s)
	}
	pc.engine.ClosePeerConnection(pc.tag)
	return nil
}

// Deprecated stream APIs. They always fail.

// AddStream is retired. Use AddTrack.
func (pc *PeerConnection) AddStream(*MediaStream) error {
	return deprecated("addStream", "addTrack")
}

// RemoveStream is retired. Use RemoveTrack.
func (pc *PeerConnection) RemoveStream(*MediaStream) error {
	return deprecated("removeStream", "removeTrack")
}

// GetLocalStreams is retired. Use GetSenders.
func (pc *PeerConnection) GetLocalStreams() ([]*MediaStream, error) {
	return nil, deprecated("getLocalStreams", "getSenders")
}

// GetRemoteStreams is retired. Use GetReceivers.
func (pc *PeerConnection) GetRemoteStreams() ([]*MediaStream, error) {
	return nil, deprecated("getRemoteStreams", "getReceivers")
}

// --- typed handler slots ---

// OnConnectionStateChange sets the connectionstatechange handler.
func (pc *PeerConnection) OnConnectionStateChange(f func(PeerConnectionState)) {
	var h event.Handler
	if f != nil {
		h = func(event.Event) { f(pc.ConnectionState()) }
	}
	pc.setHandler(EventConnectionStateChange, h)
}

// OnICEConnectionStateChange sets the iceconnectionstatechange handler.
func (pc *PeerConnection) OnICEConnectionStateChange(f func(ICEConnectionState)) {
	var h event.Handler
	if f != nil {
		h = func(event.Event) { f(pc.ICEConnectionState()) }
	}
	pc.setHandler(EventICEConnectionStateChange, h)
}

// OnICEGatheringStateChange sets the icegatheringstatechange handler.
func (pc *PeerConnection) OnICEGatheringStateChange(f func(ICEGatheringState)) {
	var h event.Handler
	if f != nil {
		h = func(event.Event) { f(pc.ICEGatheringState()) }
	}
	pc.setHandler(EventICEGatheringStateChange, h)
}

// OnSignalingStateChange sets the signalingstatechange handler.
func (pc *PeerConnection) OnSignalingStateChange(f func(SignalingState)) {
	var h event.Handler
	if f != nil {
		h = func(event.Event) { f(pc.SignalingState()) }
	}
	pc.setHandler(EventSignalingStateChange, h)
}

// OnNegotiationNeeded sets the negotiationneeded handler.
func (pc *PeerConnection) OnNegotiationNeeded(f func()) {
	pc.setHandler(EventNegotiationNeeded, wrapPlain(f))
}

// OnICECandidate sets the icecandidate handler. A nil candidate marks the
// end of gathering.
func (pc *PeerConnection) OnICECandidate(f func(*ICECandidate)) {
	var h event.Handler
	if f != nil {
		h = func(ev event.Event) { f(ev.(*ICECandidateEvent).Candidate) }
	}
	pc.setHandler(EventICECandidate, h)
}

// OnTrack sets the track handler.
func (pc *PeerConnection) OnTrack(f func(*TrackEvent)) {
	var h event.Handler
	if f != nil {
		h = func(ev event.Event) { f(ev.(*TrackEvent)) }
	}
	pc.setHandler(EventTrack, h)
}

// OnDataChannel sets the datachannel handler.
func (pc *PeerConnection) OnDataChannel(f func(*DataChannel)) {
	var h event.Handler
	if f != nil {
		h = func(ev event.Event) { f(ev.(*DataChannelEvent).Channel) }
	}
	pc.setHandler(EventDataChannel, h)
}

func (pc *PeerConnection) setHandler(typ event.Type, h event.Handler) {
	if err := pc.SetHandler(typ, h); err != nil {
		pc.log.Errorf("peer connection %s: %v", pc.tag, err)
	}
}

func (pc *PeerConnection) dispatch(ev event.Event) {
	if err := pc.DispatchEvent(ev); err != nil {
		pc.log.Warnf("peer connection %s: %v", pc.tag, err)
	}
}

// --- engine event handlers, run on the bus dispatcher ---

func (pc *PeerConnection) onNegotiationNeeded(bridge.Event) {
	pc.dispatch(event.Basic(EventNegotiationNeeded))
}

func (pc *PeerConnection) onConnectionStateChanged(ev bridge.Event) {
	raw := ev.(*bridge.ConnectionStateChanged).State
	state, ok := parsePeerConnectionState(raw)
	if !ok {
		pc.log.Warnf("peer connection %s: unknown connection state %q", pc.tag, raw)
		return
	}

	pc.mu.Lock()
	pc.connectionState = state
	pc.mu.Unlock()
	pc.log.Debugf("peer connection %s: connection state %s", pc.tag, state)

	pc.dispatch(event.Basic(EventConnectionStateChange))
	if state == PeerConnectionStateClosed {
		pc.terminate()
	}
}

func (pc *PeerConnection) onICEConnectionStateChanged(ev bridge.Event) {
	raw := ev.(*bridge.ICEConnectionStateChanged).State
	state, ok := parseICEConnectionState(raw)
	if !ok {
		pc.log.Warnf("peer connection %s: unknown ice connection state %q", pc.tag, raw)
		return
	}
	pc.mu.Lock()
	pc.iceConnectionState = state
	pc.mu.Unlock()
	pc.dispatch(event.Basic(EventICEConnectionStateChange))
}

func (pc *PeerConnection) onICEGatheringStateChanged(ev bridge.Event) {
	raw := ev.(*bridge.ICEGatheringStateChanged).State
	state, ok := parseICEGatheringState(raw)
	if !ok {
		pc.log.Warnf("peer connection %s: unknown ice gathering state %q", pc.tag, raw)
		return
	}
	pc.mu.Lock()
	pc.iceGatheringState = state
	pc.mu.Unlock()
	pc.dispatch(event.Basic(EventICEGatheringStateChange))

	if state == ICEGatheringStateComplete {
		pc.dispatch(&ICECandidateEvent{})
	}
}

func (pc *PeerConnection) onSignalingStateChanged(ev bridge.Event) {
	raw := ev.(*bridge.SignalingStateChanged).State
	state, ok := parseSignalingState(raw)
	if !ok {
		pc.log.Warnf("peer connection %s: unknown signaling state %q", pc.tag, raw)
		return
	}
	pc.mu.Lock()
	pc.signalingState = state
	pc.mu.Unlock()
	pc.dispatch(event.Basic(EventSignalingStateChange))
}

func (pc *PeerConnection) onICECandidate(ev bridge.Event) {
	c := ev.(*bridge.ICECandidateGathered).Candidate
	pc.dispatch(&ICECandidateEvent{Candidate: &c})
}

func (pc *PeerConnection) onReceiverAdded(ev bridge.Event) {
	info := ev.(*bridge.ReceiverAdded).Receiver
	r, added := pc.receiverFor(info)
	if !added {
		pc.log.Debugf("peer connection %s: receiver %s already known", pc.tag, info.Tag)
		return
	}
	pc.dispatch(&TrackEvent{Track: r.track, Receiver: r, Streams: r.StreamIDs()})
}

func (pc *PeerConnection) onReceiverRemoved(ev bridge.Event) {
	info := ev.(*bridge.ReceiverRemoved).Receiver
	r, ok := pc.receivers.remove(info.Tag)
	if !ok {
		pc.log.Debugf("peer connection %s: removed receiver %s not known", pc.tag, info.Tag)
		return
	}
	if r.track != nil {
		r.track.end()
	}
	pc.dispatch(&TrackEvent{Track: r.track, Receiver: r, Streams: r.StreamIDs(), Removed: true})
}

func (pc *PeerConnection) onTransceiverStarted(ev bridge.Event) {
	info := ev.(*bridge.TransceiverStarted).Transceiver
	t, _ := pc.transceiverFor(info, nil)
	t.setMid(info.Mid)
	if info.Stopped {
		t.stopped.Store(true)
	}
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	r := t.receiver
	pc.dispatch(&TrackEvent{Track: r.track, Receiver: r, Transceiver: t, Streams: r.StreamIDs()})
}

func (pc *PeerConnection) onDataChannel(ev bridge.Event) {
	info := ev.(*bridge.DataChannelCreated).Channel
	dc := newDataChannel(pc.engine, info.Tag, info.Label, pc.api.loggerFactory.NewLogger("datachannel"))
	dc.subscribe()
	dc.apply(info)
	pc.dispatch(&DataChannelEvent{Channel: dc})
}

// terminate runs once, when the engine reports the connection closed.
func (pc *PeerConnection) terminate() {
	pc.teardown.Do(func() {
		for _, s := range pc.subs {
			s.Unsubscribe()
		}
		for _, s := range pc.senders.list() {
			if s.track != nil {
				s.track.end()
			}
		}
		for _, r := range pc.receivers.list() {
			if r.track != nil {
				r.track.end()
			}
		}
		pc.log.Debugf("peer connection %s: terminated", pc.tag)
	})
}

// --- identity bookkeeping ---

// trackFor returns local when it describes the same engine track as info,
// and a new track wrapper otherwise.
func (pc *PeerConnection) trackFor(info *bridge.TrackInfo, local *MediaStreamTrack) *MediaStreamTrack {
	if info == nil {
		return local
	}
	if local != nil && local.tag == info.Tag {
		return local
	}
	return newMediaStreamTrack(pc.engine, *info, pc.api.loggerFactory.NewLogger("track"))
}

func (pc *PeerConnection) receiverFor(info bridge.ReceiverInfo) (*RTPReceiver, bool) {
	return pc.receivers.getOrAdd(info.Tag, func() *RTPReceiver {
		return newRTPReceiver(info, pc.trackFor(info.Track, nil))
	})
}

// transceiverFor registers the transceiver described by info together with
// its sender and receiver.
func (pc *PeerConnection) transceiverFor(info bridge.TransceiverInfo, local *MediaStreamTrack) (*RTPTransceiver, bool) {
	sender, _ := pc.senders.getOrAdd(info.Sender.Tag, func() *RTPSender {
		return newRTPSender(info.Sender, pc.trackFor(info.Sender.Track, local))
	})
	receiver, _ := pc.receiverFor(info.Receiver)

	return pc.transceivers.getOrAdd(info.Tag, func() *RTPTransceiver {
		t := &RTPTransceiver{
			engine:   pc.engine,
			log:      pc.log,
			tag:      info.Tag,
			sender:   sender,
			receiver: receiver,
			mid:      info.Mid,
		}
		t.stopped.Store(info.Stopped)
		return t
	})
}
