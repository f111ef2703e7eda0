package bridge

// EventKind enumerates the inbound native events.
type EventKind int

const (
	KindNegotiationNeeded EventKind = iota
	KindConnectionStateChanged
	KindICEConnectionStateChanged
	KindICEGatheringStateChanged
	KindSignalingStateChanged
	KindReceiverAdded
	KindReceiverRemoved
	KindTransceiverStarted
	KindICECandidateGathered
	KindDataChannelCreated
	KindDataChannelStateChanged
	KindDataChannelMessage
	KindDataChannelBufferedAmountChanged
)

// String returns the native event name.
func (k EventKind) String() string {
	switch k {
	case KindNegotiationNeeded:
		return "peerConnectionShouldNegotiate"
	case KindConnectionStateChanged:
		return "peerConnectionConnectionStateChanged"
	case KindICEConnectionStateChanged:
		return "peerConnectionIceConnectionChanged"
	case KindICEGatheringStateChanged:
		return "peerConnectionIceGatheringChanged"
	case KindSignalingStateChanged:
		return "peerConnectionSignalingStateChanged"
	case KindReceiverAdded:
		return "peerConnectionAddedReceiver"
	case KindReceiverRemoved:
		return "peerConnectionRemovedReceiver"
	case KindTransceiverStarted:
		return "peerConnectionStartTransceiver"
	case KindICECandidateGathered:
		return "peerConnectionGotICECandidate"
	case KindDataChannelCreated:
		return "peerConnectionOnDataChannel"
	case KindDataChannelStateChanged:
		return "dataChannelStateChanged"
	case KindDataChannelMessage:
		return "dataChannelOnMessage"
	case KindDataChannelBufferedAmountChanged:
		return "dataChannelOnChangeBufferedAmount"
	default:
		return "unknown"
	}
}

// Event is an inbound native event. Target returns the tag the event is
// addressed to: the session tag for peer connection events and the channel
// value tag for data channel events.
type Event interface {
	Kind() EventKind
	Target() Tag
}

// NegotiationNeeded signals that the session needs an offer/answer exchange.
type NegotiationNeeded struct {
	Tag Tag `json:"valueTag"`
}

// ConnectionStateChanged carries the aggregate connection state.
type ConnectionStateChanged struct {
	Tag   Tag    `json:"valueTag"`
	State string `json:"connectionState"`
}

// ICEConnectionStateChanged carries the ICE connection state.
type ICEConnectionStateChanged struct {
	Tag   Tag    `json:"valueTag"`
	State string `json:"iceConnectionState"`
}

// ICEGatheringStateChanged carries the ICE gathering state.
type ICEGatheringStateChanged struct {
	Tag   Tag    `json:"valueTag"`
	State string `json:"iceGatheringState"`
}

// SignalingStateChanged carries the signaling state.
type SignalingStateChanged struct {
	Tag   Tag    `json:"valueTag"`
	State string `json:"signalingState"`
}

// ReceiverAdded announces a new remote receiver.
type ReceiverAdded struct {
	Tag      Tag          `json:"valueTag"`
	Receiver ReceiverInfo `json:"receiver"`
}

// ReceiverRemoved announces that a remote receiver went away.
type ReceiverRemoved struct {
	Tag      Tag          `json:"valueTag"`
	Receiver ReceiverInfo `json:"receiver"`
}

// TransceiverStarted announces a transceiver created by negotiation.
type TransceiverStarted struct {
	Tag         Tag             `json:"valueTag"`
	Transceiver TransceiverInfo `json:"transceiver"`
}

// ICECandidateGathered carries a local ICE candidate.
type ICECandidateGathered struct {
	Tag       Tag          `json:"valueTag"`
	Candidate ICECandidate `json:"candidate"`
}

// DataChannelCreated announces a channel opened by the remote peer.
type DataChannelCreated struct {
	Tag     Tag             `json:"valueTag"`
	Channel DataChannelInfo `json:"dataChannel"`
}

// DataChannelStateChanged carries a data channel ready state.
type DataChannelStateChanged struct {
	Tag   Tag    `json:"valueTag"`
	State string `json:"readyState"`
}

// DataChannelMessage carries a received data channel message.
type DataChannelMessage struct {
	Tag Tag `json:"valueTag"`
	DataBuffer
}

// DataChannelBufferedAmountChanged carries the current buffered amount.
type DataChannelBufferedAmountChanged struct {
	Tag    Tag    `json:"valueTag"`
	Amount uint64 `json:"bufferedAmount"`
}

func (*NegotiationNeeded) Kind() EventKind         { return KindNegotiationNeeded }
func (*ConnectionStateChanged) Kind() EventKind    { return KindConnectionStateChanged }
func (*ICEConnectionStateChanged) Kind() EventKind { return KindICEConnectionStateChanged }
func (*ICEGatheringStateChanged) Kind() EventKind  { return KindICEGatheringStateChanged }
func (*SignalingStateChanged) Kind() EventKind     { return KindSignalingStateChanged }
func (*ReceiverAdded) Kind() EventKind             { return KindReceiverAdded }
func (*ReceiverRemoved) Kind() EventKind           { return KindReceiverRemoved }
func (*TransceiverStarted) Kind() EventKind        { return KindTransceiverStarted }
func (*ICECandidateGathered) Kind() EventKind      { return KindICECandidateGathered }
func (*DataChannelCreated) Kind() EventKind        { return KindDataChannelCreated }
func (*DataChannelStateChanged) Kind() EventKind   { return KindDataChannelStateChanged }
func (*DataChannelMessage) Kind() EventKind        { return KindDataChannelMessage }
func (*DataChannelBufferedAmountChanged) Kind() EventKind {
	return KindDataChannelBufferedAmountChanged
}

func (e *NegotiationNeeded) Target() Tag                { return e.Tag }
func (e *ConnectionStateChanged) Target() Tag           { return e.Tag }
func (e *ICEConnectionStateChanged) Target() Tag        { return e.Tag }
func (e *ICEGatheringStateChanged) Target() Tag         { return e.Tag }
func (e *SignalingStateChanged) Target() Tag            { return e.Tag }
func (e *ReceiverAdded) Target() Tag                    { return e.Tag }
func (e *ReceiverRemoved) Target() Tag                  { return e.Tag }
func (e *TransceiverStarted) Target() Tag               { return e.Tag }
func (e *ICECandidateGathered) Target() Tag             { return e.Tag }
func (e *DataChannelCreated) Target() Tag               { return e.Tag }
func (e *DataChannelStateChanged) Target() Tag          { return e.Tag }
func (e *DataChannelMessage) Target() Tag               { return e.Tag }
func (e *DataChannelBufferedAmountChanged) Target() Tag { return e.Tag }

// validator is implemented by events whose payload embeds a description
// that must be well formed before it reaches an entity.
type validator interface {
	validate() error
}

func (e *ReceiverAdded) validate() error      { return e.Receiver.Validate() }
func (e *ReceiverRemoved) validate() error    { return e.Receiver.Validate() }
func (e *TransceiverStarted) validate() error { return e.Transceiver.Validate() }
func (e *DataChannelCreated) validate() error { return e.Channel.Validate() }
