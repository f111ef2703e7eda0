// Package bridge defines the contract between the typed WebRTC object model
// and a native engine: the commands an engine accepts, the plain-data shapes
// that cross the boundary and the shared inbound event stream.
package bridge

import (
	"context"
	"fmt"
)

// Error codes carried by engine rejections.
const (
	CodeTypeError     = "TypeError"
	CodeNotFound      = "NotFoundError"
	CodeInvalidState  = "InvalidStateError"
	CodeOperation     = "OperationError"
	CodePeerConnError = "PeerConnectionError"
)

// Error is a rejection reported by the engine.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds an engine rejection.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Engine is a native WebRTC engine. Methods without a context are
// fire-and-forget: failures are logged by the engine and never returned.
// Methods taking a context block until the engine answers; cancelling the
// context abandons the wait but not the native operation. Rejections are
// returned as *Error.
//
// Value tags are minted by the engine, except for locally created data
// channels: the caller supplies the channel tag so it can subscribe to the
// channel's events before the engine can emit any.
type Engine interface {
	// Events returns the shared inbound event stream.
	Events() *Bus

	InitPeerConnection(tag Tag, config Configuration, constraints MediaConstraints)
	SetConfiguration(tag Tag, config Configuration)
	ClosePeerConnection(tag Tag)
	RemoveTrack(tag Tag, sender Tag)
	StopTransceiver(transceiver Tag)
	SetTransceiverDirection(transceiver Tag, direction string)
	SetTrackEnabled(track Tag, enabled bool)
	SetTrackAspectRatio(track Tag, ratio float64)
	CloseDataChannel(channel Tag)
	StopUserMedia()

	CreateOffer(ctx context.Context, tag Tag, constraints MediaConstraints) (SessionDescription, error)
	CreateAnswer(ctx context.Context, tag Tag, constraints MediaConstraints) (SessionDescription, error)
	AddICECandidate(ctx context.Context, tag Tag, candidate ICECandidate) error
	SetLocalDescription(ctx context.Context, tag Tag, desc SessionDescription) error
	SetRemoteDescription(ctx context.Context, tag Tag, desc SessionDescription) error
	AddTrack(ctx context.Context, tag Tag, track Tag, streamIDs []string) (SenderInfo, error)
	AddTransceiver(ctx context.Context, tag Tag, track Tag, init TransceiverInit) (TransceiverInfo, error)
	CreateDataChannel(ctx context.Context, tag Tag, channel Tag, label string, init DataChannelInit) (DataChannelInfo, error)
	SendData(ctx context.Context, channel Tag, buf DataBuffer) error
	TransceiverDirection(ctx context.Context, transceiver Tag) (string, error)
	TransceiverCurrentDirection(ctx context.Context, transceiver Tag) (string, error)
	GetUserMedia(ctx context.Context, constraints MediaStreamConstraints) (MediaStreamInfo, error)
}
