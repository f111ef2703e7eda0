package pc

import (
	"github.com/thesyncim/webrtckit/pkg/bridge"
)

// Plain-data value objects shared with the bridge.
type (
	ICEServer             = bridge.ICEServer
	ICECandidate          = bridge.ICECandidate
	MediaConstraints      = bridge.MediaConstraints
	RTPParameters         = bridge.RTPParameters
	RTCPParameters        = bridge.RTCPParameters
	RTPHeaderExtension    = bridge.HeaderExtension
	RTPEncodingParameters = bridge.Encoding
	RTPCodecParameters    = bridge.Codec
)

// SessionDescription represents an SDP session description.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

func (d SessionDescription) toBridge() bridge.SessionDescription {
	return bridge.SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

func sessionDescriptionFromBridge(d bridge.SessionDescription) (SessionDescription, error) {
	t, ok := parseSDPType(d.Type)
	if !ok {
		return SessionDescription{}, errUnknownValue("sdp type", d.Type)
	}
	return SessionDescription{Type: t, SDP: d.SDP}, nil
}

// Configuration for PeerConnection.
type Configuration struct {
	ICEServers           []ICEServer
	ICETransportPolicy   string // "all" or "relay"
	BundlePolicy         string // "balanced", "max-compat", "max-bundle"
	RTCPMuxPolicy        string // "require" or "negotiate"
	SDPSemantics         string // "unified-plan" or "plan-b"
	ICECandidatePoolSize int
}

// DefaultConfiguration returns a default configuration.
func DefaultConfiguration() Configuration {
	return Configuration{
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		ICETransportPolicy: "all",
		BundlePolicy:       "max-bundle",
		RTCPMuxPolicy:      "require",
		SDPSemantics:       "unified-plan",
	}
}

func (c Configuration) toBridge() bridge.Configuration {
	return bridge.Configuration{
		ICEServers:           append([]ICEServer(nil), c.ICEServers...),
		ICETransportPolicy:   c.ICETransportPolicy,
		BundlePolicy:         c.BundlePolicy,
		RTCPMuxPolicy:        c.RTCPMuxPolicy,
		SDPSemantics:         c.SDPSemantics,
		ICECandidatePoolSize: c.ICECandidatePoolSize,
	}
}

// TransceiverInit for AddTransceiver.
type TransceiverInit struct {
	Direction     TransceiverDirection // zero value means sendrecv
	SendEncodings []RTPEncodingParameters
	Streams       []string
}

func (i *TransceiverInit) toBridge() bridge.TransceiverInit {
	if i == nil {
		return bridge.TransceiverInit{Direction: TransceiverDirectionSendRecv.String()}
	}
	dir := i.Direction
	if dir == TransceiverDirectionUnknown {
		dir = TransceiverDirectionSendRecv
	}
	return bridge.TransceiverInit{
		Direction:     dir.String(),
		StreamIDs:     append([]string(nil), i.Streams...),
		SendEncodings: append([]RTPEncodingParameters(nil), i.SendEncodings...),
	}
}

// DataChannelInit for CreateDataChannel. MaxPacketLifeTime and
// MaxRetransmits are mutually exclusive.
type DataChannelInit struct {
	Ordered           *bool
	MaxPacketLifeTime *uint16
	MaxRetransmits    *uint16
	Protocol          string
	Negotiated        bool
	ID                *uint16
}

func (i *DataChannelInit) toBridge() bridge.DataChannelInit {
	if i == nil {
		return bridge.DataChannelInit{}
	}
	return bridge.DataChannelInit{
		Ordered:           i.Ordered,
		MaxPacketLifeTime: i.MaxPacketLifeTime,
		MaxRetransmits:    i.MaxRetransmits,
		Protocol:          i.Protocol,
		Negotiated:        i.Negotiated,
		ID:                i.ID,
	}
}

// MediaStream groups tracks under a stream id.
type MediaStream struct {
	ID     string
	Tracks []*MediaStreamTrack
}

// AudioTracks returns the stream's audio tracks.
func (s *MediaStream) AudioTracks() []*MediaStreamTrack { return s.tracksOfKind("audio") }

// VideoTracks returns the stream's video tracks.
func (s *MediaStream) VideoTracks() []*MediaStreamTrack { return s.tracksOfKind("video") }

func (s *MediaStream) tracksOfKind(kind string) []*MediaStreamTrack {
	var out []*MediaStreamTrack
	for _, t := range s.Tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}
