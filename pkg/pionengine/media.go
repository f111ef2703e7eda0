package pionengine

import (
	"context"
	"fmt"
	"math"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/webrtckit/pkg/bridge"
)

var (
	opusCapability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	vp8Capability  = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
)

// GetUserMedia creates local RTP tracks fed through WriteRTP. Audio tracks
// carry Opus and video tracks VP8.
func (e *Engine) GetUserMedia(_ context.Context, c bridge.MediaStreamConstraints) (bridge.MediaStreamInfo, error) {
	if !c.Audio && c.Video == nil {
		return bridge.MediaStreamInfo{}, bridge.Errorf(bridge.CodeTypeError, "no media requested")
	}
	stream := string(newTag())
	out := bridge.MediaStreamInfo{StreamID: stream}

	add := func(kind string, capability webrtc.RTPCodecCapability) error {
		id := fmt.Sprintf("%s-%s", kind, stream)
		t, err := webrtc.NewTrackLocalStaticRTP(capability, id, stream)
		if err != nil {
			return rejection("get user media", err)
		}
		lt := &localTrack{
			info: bridge.TrackInfo{Tag: newTag(), ID: id, Kind: kind, ReadyState: "live", Enabled: true},
			rtp:  t,
		}
		lt.enabled.Store(true)
		e.mu.Lock()
		e.tracks[lt.info.Tag] = lt
		e.mu.Unlock()
		out.Tracks = append(out.Tracks, lt.info)
		return nil
	}
	if c.Audio {
		if err := add("audio", opusCapability); err != nil {
			return bridge.MediaStreamInfo{}, err
		}
	}
	if c.Video != nil {
		if err := add("video", vp8Capability); err != nil {
			return bridge.MediaStreamInfo{}, err
		}
	}
	e.log.Debugf("user media %s: %d tracks", stream, len(out.Tracks))
	return out, nil
}

// StopUserMedia ends every local track.
func (e *Engine) StopUserMedia() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for tag, t := range e.tracks {
		t.ended.Store(true)
		delete(e.tracks, tag)
	}
}

// WriteRTP sends pkt on the local track. Packets written while the track is
// disabled are dropped.
func (e *Engine) WriteRTP(track bridge.Tag, pkt *rtp.Packet) error {
	e.mu.Lock()
	t, ok := e.tracks[track]
	e.mu.Unlock()
	if !ok {
		return ErrUnknownTrack
	}
	if t.ended.Load() {
		return ErrTrackEnded
	}
	if !t.enabled.Load() {
		return nil
	}
	return t.rtp.WriteRTP(pkt)
}

// AspectRatio returns the ratio last set on a local track, or 0.
func (e *Engine) AspectRatio(track bridge.Tag) float64 {
	e.mu.Lock()
	t, ok := e.tracks[track]
	e.mu.Unlock()
	if !ok {
		return 0
	}
	return math.Float64frombits(t.ratio.Load())
}

func (e *Engine) localTrack(tag bridge.Tag) (*localTrack, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tracks[tag]
	if !ok || t.ended.Load() {
		return nil, bridge.Errorf(bridge.CodeNotFound, "track %s not found", tag)
	}
	return t, nil
}

// SetTrackEnabled makes WriteRTP drop packets while the track is disabled.
func (e *Engine) SetTrackEnabled(track bridge.Tag, enabled bool) {
	t, err := e.localTrack(track)
	if err != nil {
		e.log.Debugf("set enabled: %v", err)
		return
	}
	t.enabled.Store(enabled)
}

// SetTrackAspectRatio stores the ratio reported by AspectRatio.
func (e *Engine) SetTrackAspectRatio(track bridge.Tag, ratio float64) {
	t, err := e.localTrack(track)
	if err != nil {
		e.log.Debugf("set aspect ratio: %v", err)
		return
	}
	t.ratio.Store(math.Float64bits(ratio))
}

// AddTrack attaches a local track created by GetUserMedia.
func (e *Engine) AddTrack(_ context.Context, tag bridge.Tag, track bridge.Tag, streamIDs []string) (bridge.SenderInfo, error) {
	p, err := e.peer(tag)
	if err != nil {
		return bridge.SenderInfo{}, rejection("add track", err)
	}
	t, err := e.localTrack(track)
	if err != nil {
		return bridge.SenderInfo{}, err
	}
	sender, err := p.conn.AddTrack(t.rtp)
	if err != nil {
		return bridge.SenderInfo{}, rejection("add track", err)
	}
	info := e.senderInfo(p, sender, t, streamIDs)
	return info, nil
}

func (e *Engine) senderInfo(p *peer, sender *webrtc.RTPSender, t *localTrack, streamIDs []string) bridge.SenderInfo {
	tag := newTag()
	p.mu.Lock()
	p.senders[tag] = sender
	p.mu.Unlock()

	info := bridge.SenderInfo{
		Tag:        tag,
		ID:         string(tag),
		Parameters: fromSendParameters(sender.GetParameters()),
		StreamIDs:  append([]string(nil), streamIDs...),
	}
	if t != nil {
		ti := t.info
		info.Track = &ti
	}
	return info
}

// RemoveTrack detaches the sender from the connection.
func (e *Engine) RemoveTrack(tag bridge.Tag, sender bridge.Tag) {
	p, err := e.peer(tag)
	if err != nil {
		e.log.Debugf("remove track: %v", err)
		return
	}
	p.mu.Lock()
	s, ok := p.senders[sender]
	delete(p.senders, sender)
	p.mu.Unlock()
	if !ok {
		e.log.Warnf("remove track %s: unknown sender %s", tag, sender)
		return
	}
	if err := p.conn.RemoveTrack(s); err != nil {
		e.log.Warnf("remove track %s: %v", tag, err)
	}
}

// AddTransceiver adds a transceiver sending the local track.
func (e *Engine) AddTransceiver(_ context.Context, tag bridge.Tag, track bridge.Tag, init bridge.TransceiverInit) (bridge.TransceiverInfo, error) {
	p, err := e.peer(tag)
	if err != nil {
		return bridge.TransceiverInfo{}, rejection("add transceiver", err)
	}
	t, err := e.localTrack(track)
	if err != nil {
		return bridge.TransceiverInfo{}, err
	}
	dir, ok := toDirection(init.Direction)
	if !ok {
		return bridge.TransceiverInfo{}, bridge.Errorf(bridge.CodeTypeError, "invalid direction %q", init.Direction)
	}
	pt, err := p.conn.AddTransceiverFromTrack(t.rtp, webrtc.RTPTransceiverInit{Direction: dir})
	if err != nil {
		return bridge.TransceiverInfo{}, rejection("add transceiver", err)
	}

	info := bridge.TransceiverInfo{
		Tag:    newTag(),
		Mid:    pt.Mid(),
		Sender: e.senderInfo(p, pt.Sender(), t, init.StreamIDs),
		Receiver: bridge.ReceiverInfo{
			Tag:   newTag(),
			Track: remoteTrackInfo(newTag(), t.info.ID, t.info.Kind),
		},
	}
	info.Receiver.ID = string(info.Receiver.Tag)
	if r := pt.Receiver(); r != nil {
		info.Receiver.Parameters = fromParameters(r.GetParameters())
	}

	entry := &transceiver{peer: p, t: pt, info: info, direction: dir.String()}
	p.mu.Lock()
	p.transceivers[pt] = entry
	p.mu.Unlock()
	e.mu.Lock()
	e.transceivers[info.Tag] = entry
	e.mu.Unlock()
	return info, nil
}

// StopTransceiver stops the transceiver's sender and receiver.
func (e *Engine) StopTransceiver(tag bridge.Tag) {
	t, err := e.transceiver(tag)
	if err != nil {
		e.log.Debugf("stop transceiver: %v", err)
		return
	}
	if err := t.t.Stop(); err != nil {
		e.log.Warnf("stop transceiver %s: %v", tag, err)
	}
}

// SetTransceiverDirection records the desired direction. pion applies
// directions only through negotiation, so the value is reported back by
// TransceiverDirection without changing the running transceiver.
func (e *Engine) SetTransceiverDirection(tag bridge.Tag, direction string) {
	if _, ok := toDirection(direction); !ok && direction != "stopped" {
		e.log.Warnf("transceiver %s: invalid direction %q", tag, direction)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.transceivers[tag]
	if !ok {
		e.log.Debugf("set direction: transceiver %s not found", tag)
		return
	}
	t.direction = direction
}

// TransceiverDirection returns the last direction recorded for the transceiver.
func (e *Engine) TransceiverDirection(_ context.Context, tag bridge.Tag) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.transceivers[tag]
	if !ok {
		return "", bridge.Errorf(bridge.CodeNotFound, "transceiver %s not found", tag)
	}
	return t.direction, nil
}

// TransceiverCurrentDirection reads the negotiated direction from the
// current local description.
func (e *Engine) TransceiverCurrentDirection(_ context.Context, tag bridge.Tag) (string, error) {
	t, err := e.transceiver(tag)
	if err != nil {
		return "", err
	}
	dir, err := negotiatedDirection(t.peer.conn.CurrentLocalDescription(), t.t.Mid())
	if err != nil {
		return "", rejection("current direction", err)
	}
	return dir, nil
}
