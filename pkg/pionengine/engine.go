// Package pionengine implements bridge.Engine in process on top of
// pion/webrtc, so the pc object model runs without a native library.
package pionengine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/webrtckit/pkg/bridge"
)

// Errors
var (
	ErrClosed       = errors.New("pionengine: engine closed")
	ErrTrackEnded   = errors.New("pionengine: track ended")
	ErrUnknownTrack = errors.New("pionengine: unknown track")
)

// Options configures an Engine.
type Options struct {
	// LoggerFactory defaults to pion's default factory.
	LoggerFactory logging.LoggerFactory
	// API is used to create peer connections. When nil an API with pion's
	// default codecs is built.
	API *webrtc.API
	// OnRemoteRTP receives every RTP packet read from a remote track.
	OnRemoteRTP func(track bridge.Tag, pkt *rtp.Packet)
}

// Engine is a bridge.Engine backed by pion peer connections.
type Engine struct {
	api         *webrtc.API
	log         logging.LeveledLogger
	bus         *bridge.Bus
	onRemoteRTP func(bridge.Tag, *rtp.Packet)

	mu           sync.Mutex
	peers        map[bridge.Tag]*peer
	tracks       map[bridge.Tag]*localTrack
	transceivers map[bridge.Tag]*transceiver
	channels     map[bridge.Tag]*webrtc.DataChannel
	closed       bool
}

var _ bridge.Engine = (*Engine)(nil)

type peer struct {
	tag       bridge.Tag
	conn      *webrtc.PeerConnection
	gathering atomic.Bool
	closeOnce sync.Once

	mu           sync.Mutex
	senders      map[bridge.Tag]*webrtc.RTPSender
	transceivers map[*webrtc.RTPTransceiver]*transceiver
}

type transceiver struct {
	peer      *peer
	t         *webrtc.RTPTransceiver
	info      bridge.TransceiverInfo
	direction string
}

type localTrack struct {
	info    bridge.TrackInfo
	rtp     *webrtc.TrackLocalStaticRTP
	enabled atomic.Bool
	ended   atomic.Bool
	ratio   atomic.Uint64
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	lf := opts.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	api := opts.API
	if api == nil {
		m := &webrtc.MediaEngine{}
		if err := m.RegisterDefaultCodecs(); err != nil {
			return nil, err
		}
		se := webrtc.SettingEngine{LoggerFactory: lf}
		api = webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se))
	}
	return &Engine{
		api:          api,
		log:          lf.NewLogger("pionengine"),
		bus:          bridge.NewBus(lf.NewLogger("bridge")),
		onRemoteRTP:  opts.OnRemoteRTP,
		peers:        make(map[bridge.Tag]*peer),
		tracks:       make(map[bridge.Tag]*localTrack),
		transceivers: make(map[bridge.Tag]*transceiver),
		channels:     make(map[bridge.Tag]*webrtc.DataChannel),
	}, nil
}

func newTag() bridge.Tag { return bridge.Tag(uuid.NewString()) }

// Events returns the shared inbound event stream.
func (e *Engine) Events() *bridge.Bus { return e.bus }

// Close closes every peer connection and stops the event stream.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	peers := make([]*peer, 0, len(e.peers))
	for _, p := range e.peers {
		peers = append(peers, p)
	}
	e.mu.Unlock()

	var errs []error
	for _, p := range peers {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		e.peerClosed(p)
	}
	e.bus.Close()
	return errors.Join(errs...)
}

func (e *Engine) peer(tag bridge.Tag) (*peer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	p, ok := e.peers[tag]
	if !ok {
		return nil, bridge.Errorf(bridge.CodeNotFound, "peer connection %s not found", tag)
	}
	return p, nil
}

func (e *Engine) transceiver(tag bridge.Tag) (*transceiver, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.transceivers[tag]
	if !ok {
		return nil, bridge.Errorf(bridge.CodeNotFound, "transceiver %s not found", tag)
	}
	return t, nil
}

// InitPeerConnection creates the pion connection for tag and starts
// forwarding its callbacks to the event stream.
func (e *Engine) InitPeerConnection(tag bridge.Tag, config bridge.Configuration, _ bridge.MediaConstraints) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.log.Warnf("init %s: %v", tag, ErrClosed)
		return
	}
	if _, dup := e.peers[tag]; dup {
		e.mu.Unlock()
		e.log.Warnf("init %s: tag already in use", tag)
		return
	}
	e.mu.Unlock()

	conn, err := e.api.NewPeerConnection(toConfiguration(config))
	if err != nil {
		e.log.Errorf("init %s: %v", tag, err)
		e.bus.Publish(&bridge.ConnectionStateChanged{Tag: tag, State: "failed"})
		return
	}
	p := &peer{
		tag:          tag,
		conn:         conn,
		senders:      make(map[bridge.Tag]*webrtc.RTPSender),
		transceivers: make(map[*webrtc.RTPTransceiver]*transceiver),
	}
	e.mu.Lock()
	e.peers[tag] = p
	e.mu.Unlock()

	e.watch(p)
	e.log.Debugf("peer connection %s created", tag)
}

func (e *Engine) watch(p *peer) {
	tag := p.tag
	p.conn.OnNegotiationNeeded(func() {
		e.bus.Publish(&bridge.NegotiationNeeded{Tag: tag})
	})
	p.conn.OnSignalingStateChange(func(s webrtc.SignalingState) {
		e.bus.Publish(&bridge.SignalingStateChanged{Tag: tag, State: s.String()})
	})
	p.conn.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		e.bus.Publish(&bridge.ICEConnectionStateChanged{Tag: tag, State: s.String()})
	})
	p.conn.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateClosed {
			e.peerClosed(p)
			return
		}
		e.bus.Publish(&bridge.ConnectionStateChanged{Tag: tag, State: s.String()})
	})
	p.conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			p.gathering.Store(false)
			e.bus.Publish(&bridge.ICEGatheringStateChanged{Tag: tag, State: "complete"})
			return
		}
		if p.gathering.CompareAndSwap(false, true) {
			e.bus.Publish(&bridge.ICEGatheringStateChanged{Tag: tag, State: "gathering"})
		}
		e.bus.Publish(&bridge.ICECandidateGathered{Tag: tag, Candidate: fromCandidate(c.ToJSON())})
	})
	p.conn.OnTrack(func(remote *webrtc.TrackRemote, r *webrtc.RTPReceiver) {
		e.onTrack(p, remote, r)
	})
	p.conn.OnDataChannel(func(dc *webrtc.DataChannel) {
		ct := newTag()
		e.watchChannel(ct, dc)
		e.bus.Publish(&bridge.DataChannelCreated{Tag: tag, Channel: channelInfo(ct, dc)})
	})
}

// peerClosed publishes the closed state once and forgets the connection.
func (e *Engine) peerClosed(p *peer) {
	p.closeOnce.Do(func() {
		e.mu.Lock()
		delete(e.peers, p.tag)
		for tag, t := range e.transceivers {
			if t.peer == p {
				delete(e.transceivers, tag)
			}
		}
		e.mu.Unlock()
		e.bus.Publish(&bridge.ConnectionStateChanged{Tag: p.tag, State: "closed"})
		e.log.Debugf("peer connection %s closed", p.tag)
	})
}

func (e *Engine) onTrack(p *peer, remote *webrtc.TrackRemote, r *webrtc.RTPReceiver) {
	var owner *transceiver
	p.mu.Lock()
	for pt, t := range p.transceivers {
		if pt.Receiver() == r {
			owner = t
			break
		}
	}
	p.mu.Unlock()

	var info bridge.ReceiverInfo
	if owner != nil {
		info = owner.info.Receiver
		info.Parameters = fromParameters(r.GetParameters())
		ti := owner.info
		ti.Receiver = info
		ti.Mid = owner.t.Mid()
		e.bus.Publish(&bridge.TransceiverStarted{Tag: p.tag, Transceiver: ti})
	} else {
		info = bridge.ReceiverInfo{
			Tag:        newTag(),
			ID:         remote.ID(),
			Track:      remoteTrackInfo(newTag(), remote.ID(), remote.Kind().String()),
			Parameters: fromParameters(r.GetParameters()),
			StreamIDs:  []string{remote.StreamID()},
		}
		e.bus.Publish(&bridge.ReceiverAdded{Tag: p.tag, Receiver: info})
	}
	e.log.Debugf("peer connection %s: remote %s track %s", p.tag, remote.Kind(), remote.ID())

	go e.readRemote(p.tag, info, remote)
}

func (e *Engine) readRemote(pcTag bridge.Tag, info bridge.ReceiverInfo, remote *webrtc.TrackRemote) {
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			e.log.Debugf("remote track %s: %v", remote.ID(), err)
			e.bus.Publish(&bridge.ReceiverRemoved{Tag: pcTag, Receiver: info})
			return
		}
		if e.onRemoteRTP != nil && info.Track != nil {
			e.onRemoteRTP(info.Track.Tag, pkt)
		}
	}
}

func remoteTrackInfo(tag bridge.Tag, id, kind string) *bridge.TrackInfo {
	return &bridge.TrackInfo{Tag: tag, ID: id, Kind: kind, ReadyState: "live", Enabled: true, Remote: true}
}

// SetConfiguration applies config to the connection.
func (e *Engine) SetConfiguration(tag bridge.Tag, config bridge.Configuration) {
	p, err := e.peer(tag)
	if err != nil {
		e.log.Warnf("set configuration: %v", err)
		return
	}
	if err := p.conn.SetConfiguration(toConfiguration(config)); err != nil {
		e.log.Warnf("set configuration %s: %v", tag, err)
	}
}

// ClosePeerConnection closes the connection and reports it closed.
func (e *Engine) ClosePeerConnection(tag bridge.Tag) {
	p, err := e.peer(tag)
	if err != nil {
		e.log.Debugf("close: %v", err)
		return
	}
	if err := p.conn.Close(); err != nil {
		e.log.Warnf("close %s: %v", tag, err)
	}
	e.peerClosed(p)
}

// CreateOffer honours the IceRestart mandatory constraint.
func (e *Engine) CreateOffer(_ context.Context, tag bridge.Tag, constraints bridge.MediaConstraints) (bridge.SessionDescription, error) {
	p, err := e.peer(tag)
	if err != nil {
		return bridge.SessionDescription{}, rejection("create offer", err)
	}
	opts := &webrtc.OfferOptions{ICERestart: constraints.Mandatory["IceRestart"] == "true"}
	desc, err := p.conn.CreateOffer(opts)
	if err != nil {
		return bridge.SessionDescription{}, rejection("create offer", err)
	}
	return fromDescription(desc), nil
}

// CreateAnswer answers the remote offer. Constraints are ignored.
func (e *Engine) CreateAnswer(_ context.Context, tag bridge.Tag, _ bridge.MediaConstraints) (bridge.SessionDescription, error) {
	p, err := e.peer(tag)
	if err != nil {
		return bridge.SessionDescription{}, rejection("create answer", err)
	}
	desc, err := p.conn.CreateAnswer(nil)
	if err != nil {
		return bridge.SessionDescription{}, rejection("create answer", err)
	}
	return fromDescription(desc), nil
}

// SetLocalDescription applies desc as the local description.
func (e *Engine) SetLocalDescription(_ context.Context, tag bridge.Tag, desc bridge.SessionDescription) error {
	p, err := e.peer(tag)
	if err != nil {
		return rejection("set local description", err)
	}
	d, err := toDescription(desc)
	if err != nil {
		return err
	}
	return rejection("set local description", p.conn.SetLocalDescription(d))
}

// SetRemoteDescription applies desc as the remote description.
func (e *Engine) SetRemoteDescription(_ context.Context, tag bridge.Tag, desc bridge.SessionDescription) error {
	p, err := e.peer(tag)
	if err != nil {
		return rejection("set remote description", err)
	}
	d, err := toDescription(desc)
	if err != nil {
		return err
	}
	return rejection("set remote description", p.conn.SetRemoteDescription(d))
}

// AddICECandidate adds a remote candidate.
func (e *Engine) AddICECandidate(_ context.Context, tag bridge.Tag, candidate bridge.ICECandidate) error {
	p, err := e.peer(tag)
	if err != nil {
		return rejection("add ice candidate", err)
	}
	return rejection("add ice candidate", p.conn.AddICECandidate(toCandidate(candidate)))
}
