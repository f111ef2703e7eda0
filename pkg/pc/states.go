package pc

// SignalingState represents the signaling state.
type SignalingState int

const (
	SignalingStateStable SignalingState = iota
	SignalingStateHaveLocalOffer
	SignalingStateHaveRemoteOffer
	SignalingStateHaveLocalPranswer
	SignalingStateHaveRemotePranswer
	SignalingStateClosed
)

func (s SignalingState) String() string {
	switch s {
	case SignalingStateStable:
		return "stable"
	case SignalingStateHaveLocalOffer:
		return "have-local-offer"
	case SignalingStateHaveRemoteOffer:
		return "have-remote-offer"
	case SignalingStateHaveLocalPranswer:
		return "have-local-pranswer"
	case SignalingStateHaveRemotePranswer:
		return "have-remote-pranswer"
	case SignalingStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ICEConnectionState represents the ICE connection state.
type ICEConnectionState int

const (
	ICEConnectionStateNew ICEConnectionState = iota
	ICEConnectionStateChecking
	ICEConnectionStateConnected
	ICEConnectionStateCompleted
	ICEConnectionStateDisconnected
	ICEConnectionStateFailed
	ICEConnectionStateClosed
)

func (s ICEConnectionState) String() string {
	switch s {
	case ICEConnectionStateNew:
		return "new"
	case ICEConnectionStateChecking:
		return "checking"
	case ICEConnectionStateConnected:
		return "connected"
	case ICEConnectionStateCompleted:
		return "completed"
	case ICEConnectionStateDisconnected:
		return "disconnected"
	case ICEConnectionStateFailed:
		return "failed"
	case ICEConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ICEGatheringState represents the ICE gathering state.
type ICEGatheringState int

const (
	ICEGatheringStateNew ICEGatheringState = iota
	ICEGatheringStateGathering
	ICEGatheringStateComplete
)

func (s ICEGatheringState) String() string {
	switch s {
	case ICEGatheringStateNew:
		return "new"
	case ICEGatheringStateGathering:
		return "gathering"
	case ICEGatheringStateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// PeerConnectionState represents the overall connection state as reported
// by the engine.
type PeerConnectionState int

const (
	PeerConnectionStateNew PeerConnectionState = iota
	PeerConnectionStateConnecting
	PeerConnectionStateConnected
	PeerConnectionStateDisconnected
	PeerConnectionStateFailed
	PeerConnectionStateClosed
)

func (s PeerConnectionState) String() string {
	switch s {
	case PeerConnectionStateNew:
		return "new"
	case PeerConnectionStateConnecting:
		return "connecting"
	case PeerConnectionStateConnected:
		return "connected"
	case PeerConnectionStateDisconnected:
		return "disconnected"
	case PeerConnectionStateFailed:
		return "failed"
	case PeerConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SDPType represents the type of session description.
type SDPType int

const (
	SDPTypeOffer SDPType = iota
	SDPTypePranswer
	SDPTypeAnswer
	SDPTypeRollback
)

func (t SDPType) String() string {
	switch t {
	case SDPTypeOffer:
		return "offer"
	case SDPTypePranswer:
		return "pranswer"
	case SDPTypeAnswer:
		return "answer"
	case SDPTypeRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t SDPType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *SDPType) UnmarshalText(b []byte) error {
	v, ok := parseSDPType(string(b))
	if !ok {
		return errUnknownValue("sdp type", string(b))
	}
	*t = v
	return nil
}

// TransceiverDirection is the direction of an RTP transceiver. The zero
// value is reported when the engine has not negotiated a direction yet.
type TransceiverDirection int

const (
	TransceiverDirectionUnknown TransceiverDirection = iota
	TransceiverDirectionSendRecv
	TransceiverDirectionSendOnly
	TransceiverDirectionRecvOnly
	TransceiverDirectionInactive
	TransceiverDirectionStopped
)

func (d TransceiverDirection) String() string {
	switch d {
	case TransceiverDirectionSendRecv:
		return "sendrecv"
	case TransceiverDirectionSendOnly:
		return "sendonly"
	case TransceiverDirectionRecvOnly:
		return "recvonly"
	case TransceiverDirectionInactive:
		return "inactive"
	case TransceiverDirectionStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DataChannelState represents the state of a data channel. States only move
// forward.
type DataChannelState int

const (
	DataChannelStateConnecting DataChannelState = iota
	DataChannelStateOpen
	DataChannelStateClosing
	DataChannelStateClosed
)

func (s DataChannelState) String() string {
	switch s {
	case DataChannelStateConnecting:
		return "connecting"
	case DataChannelStateOpen:
		return "open"
	case DataChannelStateClosing:
		return "closing"
	case DataChannelStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TrackState is the ready state of a media stream track.
type TrackState int

const (
	TrackStateLive TrackState = iota
	TrackStateEnded
)

func (s TrackState) String() string {
	switch s {
	case TrackStateLive:
		return "live"
	case TrackStateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

type enum interface {
	~int
	String() string
}

// parseEnum maps a wire string back onto the enum value whose String()
// matches it.
func parseEnum[T enum](raw string, values ...T) (T, bool) {
	for _, v := range values {
		if v.String() == raw {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func parseSignalingState(raw string) (SignalingState, bool) {
	return parseEnum(raw, SignalingStateStable, SignalingStateHaveLocalOffer, SignalingStateHaveRemoteOffer,
		SignalingStateHaveLocalPranswer, SignalingStateHaveRemotePranswer, SignalingStateClosed)
}

func parseICEConnectionState(raw string) (ICEConnectionState, bool) {
	return parseEnum(raw, ICEConnectionStateNew, ICEConnectionStateChecking, ICEConnectionStateConnected,
		ICEConnectionStateCompleted, ICEConnectionStateDisconnected, ICEConnectionStateFailed, ICEConnectionStateClosed)
}

func parseICEGatheringState(raw string) (ICEGatheringState, bool) {
	return parseEnum(raw, ICEGatheringStateNew, ICEGatheringStateGathering, ICEGatheringStateComplete)
}

func parsePeerConnectionState(raw string) (PeerConnectionState, bool) {
	return parseEnum(raw, PeerConnectionStateNew, PeerConnectionStateConnecting, PeerConnectionStateConnected,
		PeerConnectionStateDisconnected, PeerConnectionStateFailed, PeerConnectionStateClosed)
}

func parseSDPType(raw string) (SDPType, bool) {
	return parseEnum(raw, SDPTypeOffer, SDPTypePranswer, SDPTypeAnswer, SDPTypeRollback)
}

func parseTransceiverDirection(raw string) (TransceiverDirection, bool) {
	return parseEnum(raw, TransceiverDirectionSendRecv, TransceiverDirectionSendOnly,
		TransceiverDirectionRecvOnly, TransceiverDirectionInactive, TransceiverDirectionStopped)
}

func parseDataChannelState(raw string) (DataChannelState, bool) {
	return parseEnum(raw, DataChannelStateConnecting, DataChannelStateOpen, DataChannelStateClosing, DataChannelStateClosed)
}

func parseTrackState(raw string) (TrackState, bool) {
	return parseEnum(raw, TrackStateLive, TrackStateEnded)
}
