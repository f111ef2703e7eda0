package pc

import "github.com/thesyncim/webrtckit/pkg/event"

// PeerConnection events.
const (
	EventConnectionStateChange    event.Type = "connectionstatechange"
	EventICECandidate             event.Type = "icecandidate"
	EventICEConnectionStateChange event.Type = "iceconnectionstatechange"
	EventICEGatheringStateChange  event.Type = "icegatheringstatechange"
	EventNegotiationNeeded        event.Type = "negotiationneeded"
	EventSignalingStateChange     event.Type = "signalingstatechange"
	EventTrack                    event.Type = "track"
	EventDataChannel              event.Type = "datachannel"
	EventIdentityResult           event.Type = "identityresult"
	EventIDPAssertionError        event.Type = "idpassertionerror"
	EventIDPValidationError       event.Type = "idpvalidationerror"
	EventPeerIdentity             event.Type = "peeridentity"
)

// DataChannel events.
const (
	EventOpen              event.Type = "open"
	EventMessage           event.Type = "message"
	EventClosing           event.Type = "closing"
	EventClose             event.Type = "close"
	EventBufferedAmountLow event.Type = "bufferedamountlow"
)

// MediaStreamTrack events.
const (
	EventStarted         event.Type = "started"
	EventEnded           event.Type = "ended"
	EventMute            event.Type = "mute"
	EventUnmute          event.Type = "unmute"
	EventOverconstrained event.Type = "overconstrained"
)

var peerConnectionEvents = []event.Type{
	EventConnectionStateChange, EventICECandidate, EventICEConnectionStateChange,
	EventICEGatheringStateChange, EventNegotiationNeeded, EventSignalingStateChange,
	EventTrack, EventDataChannel, EventIdentityResult, EventIDPAssertionError,
	EventIDPValidationError, EventPeerIdentity,
}

var dataChannelEvents = []event.Type{
	EventOpen, EventMessage, EventClosing, EventClose, EventBufferedAmountLow,
}

var trackEvents = []event.Type{
	EventStarted, EventEnded, EventMute, EventUnmute, EventOverconstrained,
}

// ICECandidateEvent carries a gathered candidate. Candidate is nil once
// gathering has completed.
type ICECandidateEvent struct {
	Candidate *ICECandidate
}

func (*ICECandidateEvent) Type() event.Type { return EventICECandidate }

// TrackEvent reports a remote track arriving or, with Removed set, going
// away.
type TrackEvent struct {
	Track       *MediaStreamTrack
	Receiver    *RTPReceiver
	Transceiver *RTPTransceiver // set when the track arrived on a transceiver
	Streams     []string
	Removed     bool
}

func (*TrackEvent) Type() event.Type { return EventTrack }

// DataChannelEvent carries a channel opened by the remote peer.
type DataChannelEvent struct {
	Channel *DataChannel
}

func (*DataChannelEvent) Type() event.Type { return EventDataChannel }

// MessageEvent carries a received data channel message.
type MessageEvent struct {
	Data     []byte
	IsString bool
}

func (*MessageEvent) Type() event.Type { return EventMessage }

// Text returns the payload as a string.
func (m *MessageEvent) Text() string { return string(m.Data) }
