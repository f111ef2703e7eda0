package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pion/logging"

	"github.com/thesyncim/webrtckit/internal/ffi"
)

// Transport is the raw channel to a native bridge library. The default
// transport is the purego binding in internal/ffi.
type Transport interface {
	Call(ctx context.Context, method string, args []byte) (ffi.Reply, error)
	Notify(method string, args []byte) error
}

type ffiTransport struct{}

func (ffiTransport) Call(ctx context.Context, method string, args []byte) (ffi.Reply, error) {
	return ffi.Call(ctx, method, args)
}

func (ffiTransport) Notify(method string, args []byte) error {
	return ffi.Notify(method, args)
}

// NativeEngine is an Engine speaking JSON to the native bridge library.
type NativeEngine struct {
	transport Transport
	bus       *Bus
	log       logging.LeveledLogger
}

// NativeOption configures a NativeEngine.
type NativeOption func(*NativeEngine)

// WithTransport replaces the ffi transport.
func WithTransport(t Transport) NativeOption {
	return func(e *NativeEngine) { e.transport = t }
}

// OpenNative loads the bridge library at path (empty to search) and returns
// an engine routing its events to a new bus.
func OpenNative(path string, factory logging.LoggerFactory) (*NativeEngine, error) {
	if err := ffi.LoadLibrary(path); err != nil {
		return nil, err
	}
	if err := ffi.CheckVersion(); err != nil {
		return nil, err
	}
	e := NewNativeEngine(factory)
	ffi.SetEventHandler(e.HandleEvent)
	return e, nil
}

// NewNativeEngine creates an engine without loading anything. Events must be
// fed through HandleEvent.
func NewNativeEngine(factory logging.LoggerFactory, opts ...NativeOption) *NativeEngine {
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}
	e := &NativeEngine{
		transport: ffiTransport{},
		bus:       NewBus(factory.NewLogger("bridge")),
		log:       factory.NewLogger("bridge"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleEvent decodes a raw native event and publishes it. Malformed events
// are logged and dropped.
func (e *NativeEngine) HandleEvent(name string, payload []byte) {
	ev, err := DecodeEvent(name, payload)
	if err != nil {
		e.log.Warnf("dropping native event: %v", err)
		return
	}
	e.bus.Publish(ev)
}

// Events implements Engine.
func (e *NativeEngine) Events() *Bus { return e.bus }

// Close stops event delivery and unloads the library.
func (e *NativeEngine) Close() error {
	ffi.SetEventHandler(nil)
	e.bus.Close()
	return ffi.Close()
}

func (e *NativeEngine) notify(method string, args any) {
	raw, err := json.Marshal(args)
	if err != nil {
		e.log.Errorf("%s: encode arguments: %v", method, err)
		return
	}
	e.log.Tracef("notify %s %s", method, raw)
	if err := e.transport.Notify(method, raw); err != nil {
		e.log.Errorf("%s: %v", method, err)
	}
}

// call posts method and decodes the reply into out (which may be nil).
func (e *NativeEngine) call(ctx context.Context, method string, args, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%s: encode arguments: %w", method, err)
	}
	e.log.Tracef("call %s %s", method, raw)
	reply, err := e.transport.Call(ctx, method, raw)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if !reply.OK {
		rej := &Error{}
		if err := json.Unmarshal(reply.Payload, rej); err != nil || (rej.Message == "" && rej.Code == "") {
			return &Error{Message: fmt.Sprintf("%s failed: %s", method, reply.Payload)}
		}
		return rej
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(reply.Payload, out); err != nil {
		return fmt.Errorf("%s: decode reply: %w", method, err)
	}
	return nil
}

type tagArgs struct {
	Tag Tag `json:"valueTag"`
}

type initArgs struct {
	Tag         Tag              `json:"valueTag"`
	Config      Configuration    `json:"configuration"`
	Constraints MediaConstraints `json:"constraints"`
}

type configArgs struct {
	Tag    Tag           `json:"valueTag"`
	Config Configuration `json:"configuration"`
}

type constraintArgs struct {
	Tag         Tag              `json:"valueTag"`
	Constraints MediaConstraints `json:"constraints"`
}

type candidateArgs struct {
	Tag       Tag          `json:"valueTag"`
	Candidate ICECandidate `json:"candidate"`
}

type descriptionArgs struct {
	Tag         Tag                `json:"valueTag"`
	Description SessionDescription `json:"sessionDescription"`
}

type addTrackArgs struct {
	Tag       Tag      `json:"valueTag"`
	Track     Tag      `json:"trackValueTag"`
	StreamIDs []string `json:"streamIds"`
}

type removeTrackArgs struct {
	Tag    Tag `json:"valueTag"`
	Sender Tag `json:"senderValueTag"`
}

type addTransceiverArgs struct {
	Tag   Tag             `json:"valueTag"`
	Track Tag             `json:"trackValueTag,omitempty"`
	Init  TransceiverInit `json:"init"`
}

type directionArgs struct {
	Tag       Tag    `json:"valueTag"`
	Direction string `json:"direction"`
}

type enabledArgs struct {
	Tag     Tag  `json:"valueTag"`
	Enabled bool `json:"enabled"`
}

type aspectRatioArgs struct {
	Tag         Tag     `json:"valueTag"`
	AspectRatio float64 `json:"aspectRatio"`
}

type dataChannelArgs struct {
	Tag     Tag             `json:"valueTag"`
	Channel Tag             `json:"dataChannelValueTag"`
	Label   string          `json:"label"`
	Init    DataChannelInit `json:"options"`
}

type sendArgs struct {
	Tag Tag `json:"valueTag"`
	DataBuffer
}

// InitPeerConnection asks the library to create the connection for tag.
func (e *NativeEngine) InitPeerConnection(tag Tag, config Configuration, constraints MediaConstraints) {
	e.notify("peerConnectionInit", initArgs{Tag: tag, Config: config, Constraints: constraints})
}

// SetConfiguration replaces the connection's configuration.
func (e *NativeEngine) SetConfiguration(tag Tag, config Configuration) {
	e.notify("peerConnectionSetConfiguration", configArgs{Tag: tag, Config: config})
}

// ClosePeerConnection asks the library to close the connection. The closed
// state arrives as an event.
func (e *NativeEngine) ClosePeerConnection(tag Tag) {
	e.notify("peerConnectionClose", tagArgs{Tag: tag})
}

// RemoveTrack detaches sender from the connection.
func (e *NativeEngine) RemoveTrack(tag Tag, sender Tag) {
	e.notify("peerConnectionRemoveTrack", removeTrackArgs{Tag: tag, Sender: sender})
}

// StopTransceiver stops the transceiver permanently.
func (e *NativeEngine) StopTransceiver(transceiver Tag) {
	e.notify("transceiverStop", tagArgs{Tag: transceiver})
}

// SetTransceiverDirection requests a new preferred direction.
func (e *NativeEngine) SetTransceiverDirection(transceiver Tag, direction string) {
	e.notify("transceiverSetDirection", directionArgs{Tag: transceiver, Direction: direction})
}

// SetTrackEnabled enables or mutes a track.
func (e *NativeEngine) SetTrackEnabled(track Tag, enabled bool) {
	e.notify("trackSetEnabled", enabledArgs{Tag: track, Enabled: enabled})
}

// SetTrackAspectRatio requests a width/height ratio for a video track.
func (e *NativeEngine) SetTrackAspectRatio(track Tag, ratio float64) {
	e.notify("trackSetAspectRatio", aspectRatioArgs{Tag: track, AspectRatio: ratio})
}

// CloseDataChannel starts the channel's closing handshake.
func (e *NativeEngine) CloseDataChannel(channel Tag) {
	e.notify("dataChannelClose", tagArgs{Tag: channel})
}

// StopUserMedia releases every capture device.
func (e *NativeEngine) StopUserMedia() {
	e.notify("stopUserMedia", struct{}{})
}

// CreateOffer generates an offer for the connection.
func (e *NativeEngine) CreateOffer(ctx context.Context, tag Tag, constraints MediaConstraints) (SessionDescription, error) {
	var desc SessionDescription
	err := e.call(ctx, "peerConnectionCreateOffer", constraintArgs{Tag: tag, Constraints: constraints}, &desc)
	return desc, err
}

// CreateAnswer generates an answer to the remote offer.
func (e *NativeEngine) CreateAnswer(ctx context.Context, tag Tag, constraints MediaConstraints) (SessionDescription, error) {
	var desc SessionDescription
	err := e.call(ctx, "peerConnectionCreateAnswer", constraintArgs{Tag: tag, Constraints: constraints}, &desc)
	return desc, err
}

// AddICECandidate adds a remote candidate.
func (e *NativeEngine) AddICECandidate(ctx context.Context, tag Tag, candidate ICECandidate) error {
	return e.call(ctx, "peerConnectionAddICECandidate", candidateArgs{Tag: tag, Candidate: candidate}, nil)
}

// SetLocalDescription applies desc as the local description.
func (e *NativeEngine) SetLocalDescription(ctx context.Context, tag Tag, desc SessionDescription) error {
	return e.call(ctx, "peerConnectionSetLocalDescription", descriptionArgs{Tag: tag, Description: desc}, nil)
}

// SetRemoteDescription applies desc as the remote description.
func (e *NativeEngine) SetRemoteDescription(ctx context.Context, tag Tag, desc SessionDescription) error {
	return e.call(ctx, "peerConnectionSetRemoteDescription", descriptionArgs{Tag: tag, Description: desc}, nil)
}

// AddTrack attaches track and returns the new sender.
func (e *NativeEngine) AddTrack(ctx context.Context, tag Tag, track Tag, streamIDs []string) (SenderInfo, error) {
	var info SenderInfo
	if err := e.call(ctx, "peerConnectionAddTrack", addTrackArgs{Tag: tag, Track: track, StreamIDs: streamIDs}, &info); err != nil {
		return SenderInfo{}, err
	}
	if err := info.Validate(); err != nil {
		return SenderInfo{}, fmt.Errorf("peerConnectionAddTrack: %w", err)
	}
	return info, nil
}

// AddTransceiver adds a transceiver sending track.
func (e *NativeEngine) AddTransceiver(ctx context.Context, tag Tag, track Tag, init TransceiverInit) (TransceiverInfo, error) {
	var info TransceiverInfo
	if err := e.call(ctx, "peerConnectionAddTransceiver", addTransceiverArgs{Tag: tag, Track: track, Init: init}, &info); err != nil {
		return TransceiverInfo{}, err
	}
	if err := info.Validate(); err != nil {
		return TransceiverInfo{}, fmt.Errorf("peerConnectionAddTransceiver: %w", err)
	}
	return info, nil
}

// CreateDataChannel opens a channel under the caller's channel tag.
func (e *NativeEngine) CreateDataChannel(ctx context.Context, tag Tag, channel Tag, label string, init DataChannelInit) (DataChannelInfo, error) {
	var info DataChannelInfo
	args := dataChannelArgs{Tag: tag, Channel: channel, Label: label, Init: init}
	if err := e.call(ctx, "peerConnectionCreateDataChannel", args, &info); err != nil {
		return DataChannelInfo{}, err
	}
	if err := info.Validate(); err != nil {
		return DataChannelInfo{}, fmt.Errorf("peerConnectionCreateDataChannel: %w", err)
	}
	return info, nil
}

// SendData queues buf on the channel.
func (e *NativeEngine) SendData(ctx context.Context, channel Tag, buf DataBuffer) error {
	return e.call(ctx, "dataChannelSend", sendArgs{Tag: channel, DataBuffer: buf}, nil)
}

// TransceiverDirection returns the preferred direction.
func (e *NativeEngine) TransceiverDirection(ctx context.Context, transceiver Tag) (string, error) {
	var out struct {
		Direction string `json:"direction"`
	}
	err := e.call(ctx, "transceiverDirection", tagArgs{Tag: transceiver}, &out)
	return out.Direction, err
}

// TransceiverCurrentDirection returns the negotiated direction, empty before
// negotiation.
func (e *NativeEngine) TransceiverCurrentDirection(ctx context.Context, transceiver Tag) (string, error) {
	var out struct {
		Direction string `json:"currentDirection"`
	}
	err := e.call(ctx, "transceiverCurrentDirection", tagArgs{Tag: transceiver}, &out)
	return out.Direction, err
}

// GetUserMedia opens capture devices matching constraints.
func (e *NativeEngine) GetUserMedia(ctx context.Context, constraints MediaStreamConstraints) (MediaStreamInfo, error) {
	var info MediaStreamInfo
	if err := e.call(ctx, "getUserMedia", constraints, &info); err != nil {
		return MediaStreamInfo{}, err
	}
	for i := range info.Tracks {
		if err := info.Tracks[i].Validate(); err != nil {
			return MediaStreamInfo{}, fmt.Errorf("getUserMedia: %w", err)
		}
	}
	return info, nil
}

var _ Engine = (*NativeEngine)(nil)
