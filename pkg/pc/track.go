package pc

import (
	"fmt"
	"sync"

	"github.com/pion/logging"

	"github.com/thesyncim/webrtckit/pkg/bridge"
	"github.com/thesyncim/webrtckit/pkg/event"
)

// MediaStreamTrack is a handle on an engine-owned audio or video track. The
// engine owns the track's lifetime; senders and receivers only reference it.
type MediaStreamTrack struct {
	*event.Target

	engine bridge.Engine
	log    logging.LeveledLogger
	tag    bridge.Tag
	id     string
	kind   string
	remote bool

	mu          sync.RWMutex
	readyState  TrackState
	enabled     bool
	aspectRatio float64
}

func newMediaStreamTrack(engine bridge.Engine, info bridge.TrackInfo, log logging.LeveledLogger) *MediaStreamTrack {
	state, ok := parseTrackState(info.ReadyState)
	if !ok {
		log.Warnf("track %s: unknown ready state %q, assuming live", info.ID, info.ReadyState)
	}
	return &MediaStreamTrack{
		Target:     event.NewTarget("track "+info.ID, log, trackEvents...),
		engine:     engine,
		log:        log,
		tag:        info.Tag,
		id:         info.ID,
		kind:       info.Kind,
		remote:     info.Remote,
		readyState: state,
		enabled:    info.Enabled,
	}
}

// ID returns the track's unique identifier.
func (t *MediaStreamTrack) ID() string { return t.id }

// Tag returns the engine tag addressing the track.
func (t *MediaStreamTrack) Tag() bridge.Tag { return t.tag }

// Kind returns "video" or "audio".
func (t *MediaStreamTrack) Kind() string { return t.kind }

// Remote reports whether the track was received from the remote peer.
func (t *MediaStreamTrack) Remote() bool { return t.remote }

// ReadyState returns live or ended.
func (t *MediaStreamTrack) ReadyState() TrackState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.readyState
}

// Enabled reports whether the track produces media.
func (t *MediaStreamTrack) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// SetEnabled enables or disables the track. Writing the current value does
// nothing; a change is forwarded to the engine without waiting for it.
// Ended tracks ignore the call.
func (t *MediaStreamTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	if t.enabled == enabled {
		t.mu.Unlock()
		return
	}
	if t.readyState == TrackStateEnded {
		t.mu.Unlock()
		t.log.Debugf("track %s: ignoring SetEnabled(%v) on ended track", t.id, enabled)
		return
	}
	t.enabled = enabled
	t.mu.Unlock()

	t.engine.SetTrackEnabled(t.tag, enabled)
}

// AspectRatio returns the requested aspect ratio, if one was set.
func (t *MediaStreamTrack) AspectRatio() (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.aspectRatio, t.aspectRatio > 0
}

// SetAspectRatio requests a width/height ratio for a video track. Writing
// the current value does nothing.
func (t *MediaStreamTrack) SetAspectRatio(ratio float64) error {
	if t.kind != "video" {
		return precondition(fmt.Errorf("track %s: aspect ratio on %s track: %w", t.id, t.kind, ErrInvalidAspectRatio))
	}
	if ratio <= 0 {
		return precondition(fmt.Errorf("track %s: %w %v", t.id, ErrInvalidAspectRatio, ratio))
	}

	t.mu.Lock()
	if t.aspectRatio == ratio {
		t.mu.Unlock()
		return nil
	}
	t.aspectRatio = ratio
	t.mu.Unlock()

	t.engine.SetTrackAspectRatio(t.tag, ratio)
	return nil
}

// end marks the track ended when its owner is torn down.
func (t *MediaStreamTrack) end() {
	t.mu.Lock()
	if t.readyState == TrackStateEnded {
		t.mu.Unlock()
		return
	}
	t.enabled = false
	t.readyState = TrackStateEnded
	t.mu.Unlock()

	if err := t.DispatchEvent(event.Basic(EventEnded)); err != nil {
		t.log.Warnf("track %s: %v", t.id, err)
	}
}
