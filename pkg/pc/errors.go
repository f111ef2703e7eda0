package pc

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4/pkg/rtcerr"

	"github.com/thesyncim/webrtckit/pkg/bridge"
)

// Errors
var (
	ErrConnectionClosed       = errors.New("peer connection closed")
	ErrDeprecated             = errors.New("deprecated")
	ErrConflictingReliability = errors.New("maxPacketLifeTime and maxRetransmits are mutually exclusive")
	ErrNilTrack               = errors.New("track is nil")
	ErrTrackEnded             = errors.New("track has ended")
	ErrInvalidPayload         = errors.New("unsupported data channel payload")
	ErrDataChannelNotOpen     = errors.New("data channel is not open")
	ErrInvalidDirection       = errors.New("invalid transceiver direction")
	ErrTransceiverStopped     = errors.New("transceiver stopped")
	ErrInvalidAspectRatio     = errors.New("invalid aspect ratio")
	ErrUnknownValue           = errors.New("unknown value")
)

func errUnknownValue(what, raw string) error {
	return fmt.Errorf("%w for %s: %q", ErrUnknownValue, what, raw)
}

// precondition reports caller misuse detected before crossing the bridge.
func precondition(err error) error {
	return &rtcerr.TypeError{Err: err}
}

func invalidState(err error) error {
	return &rtcerr.InvalidStateError{Err: err}
}

// engineError translates a failed engine request. Engine rejections coded
// TypeError become *rtcerr.TypeError; every other failure, including an
// abandoned wait, becomes *rtcerr.OperationError.
func engineError(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *bridge.Error
	if errors.As(err, &be) && be.Code == bridge.CodeTypeError {
		return &rtcerr.TypeError{Err: fmt.Errorf("%s: %w", op, err)}
	}
	return &rtcerr.OperationError{Err: fmt.Errorf("%s: %w", op, err)}
}

func deprecated(method, replacement string) error {
	return &rtcerr.NotSupportedError{Err: fmt.Errorf("%s: %w, use %s", method, ErrDeprecated, replacement)}
}
