// Package media provides getUserMedia on top of a pc.API: capture
// constraints go to the engine and the captured tracks come back as a
// pc.MediaStream ready for AddTrack.
package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4/pkg/rtcerr"

	"github.com/thesyncim/webrtckit/pkg/bridge"
	"github.com/thesyncim/webrtckit/pkg/pc"
)

// Errors
var (
	ErrInvalidConstraints = errors.New("invalid constraints")
	ErrNoTracks           = errors.New("engine returned no tracks")
)

// Capture defaults used when a constraint is left unset.
const (
	DefaultWidth      = 1280
	DefaultHeight     = 720
	DefaultFrameRate  = 30
	DefaultFacingMode = FacingModeUser
)

// VideoConstraints mirrors the browser's MediaTrackConstraints for video.
type VideoConstraints struct {
	Width      IntConstraint
	Height     IntConstraint
	FrameRate  FloatConstraint
	FacingMode FacingMode
}

// Constraints mirrors the browser's MediaStreamConstraints.
type Constraints struct {
	Audio bool
	Video *VideoConstraints // nil = no video
}

// DefaultConstraints requests audio and 1280x720@30 video from the user
// facing camera.
func DefaultConstraints() Constraints {
	return Constraints{Audio: true, Video: &VideoConstraints{}}
}

// toBridge resolves every constraint to the concrete value the engine is
// asked for.
func (c Constraints) toBridge() (bridge.MediaStreamConstraints, error) {
	if !c.Audio && c.Video == nil {
		return bridge.MediaStreamConstraints{}, fmt.Errorf("%w: neither audio nor video requested", ErrInvalidConstraints)
	}
	out := bridge.MediaStreamConstraints{Audio: c.Audio}
	if c.Video == nil {
		return out, nil
	}

	v := c.Video
	if !v.FacingMode.IsValid() {
		return out, fmt.Errorf("%w: facing mode %q", ErrInvalidConstraints, v.FacingMode)
	}
	width, err := v.Width.resolve("width", DefaultWidth)
	if err != nil {
		return out, err
	}
	height, err := v.Height.resolve("height", DefaultHeight)
	if err != nil {
		return out, err
	}
	fps, err := v.FrameRate.resolve("frameRate", DefaultFrameRate)
	if err != nil {
		return out, err
	}
	facing := v.FacingMode
	if facing == "" {
		facing = DefaultFacingMode
	}
	out.Video = &bridge.VideoConstraints{
		FacingMode: string(facing),
		Width:      width,
		Height:     height,
		FrameRate:  fps,
	}
	return out, nil
}

// GetUserMedia captures local media through api's engine. Malformed
// constraints fail with a TypeError before anything reaches the engine.
func GetUserMedia(ctx context.Context, api *pc.API, constraints Constraints) (*pc.MediaStream, error) {
	wire, err := constraints.toBridge()
	if err != nil {
		var oe *OverconstrainedError
		if errors.As(err, &oe) {
			return nil, err
		}
		return nil, &rtcerr.TypeError{Err: err}
	}

	log := api.LoggerFactory().NewLogger("media")
	info, err := api.Engine().GetUserMedia(ctx, wire)
	if err != nil {
		return nil, &rtcerr.OperationError{Err: fmt.Errorf("getUserMedia: %w", err)}
	}
	if len(info.Tracks) == 0 {
		return nil, &rtcerr.OperationError{Err: ErrNoTracks}
	}

	stream := &pc.MediaStream{ID: info.StreamID}
	for _, ti := range info.Tracks {
		track, err := api.NewTrack(ti)
		if err != nil {
			return nil, &rtcerr.OperationError{Err: fmt.Errorf("getUserMedia: %w", err)}
		}
		stream.Tracks = append(stream.Tracks, track)
	}
	log.Debugf("captured stream %s with %d tracks", stream.ID, len(stream.Tracks))
	return stream, nil
}

// StopUserMedia releases every capture device opened by GetUserMedia.
func StopUserMedia(api *pc.API) {
	api.Engine().StopUserMedia()
}
