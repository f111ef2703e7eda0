package bridge

import (
	"encoding/base64"
	"fmt"
)

// The types below are the plain-data shapes that cross the bridge in both
// directions. Field names follow the JSON spelling used by the native side.

// ICEServer is the wire form of an ICE server entry.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Configuration is the wire form of a peer connection configuration.
type Configuration struct {
	ICEServers           []ICEServer `json:"iceServers,omitempty"`
	ICETransportPolicy   string      `json:"iceTransportPolicy,omitempty"`
	BundlePolicy         string      `json:"bundlePolicy,omitempty"`
	RTCPMuxPolicy        string      `json:"rtcpMuxPolicy,omitempty"`
	SDPSemantics         string      `json:"sdpSemantics,omitempty"`
	ICECandidatePoolSize int         `json:"iceCandidatePoolSize,omitempty"`
}

// MediaConstraints is the legacy mandatory/optional constraint set passed at
// construction and to offer/answer creation.
type MediaConstraints struct {
	Mandatory map[string]string   `json:"mandatory,omitempty"`
	Optional  []map[string]string `json:"optional,omitempty"`
}

// SessionDescription is the wire form of an SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is the wire form of an ICE candidate.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// RTCPParameters describes RTCP settings of an RTP session.
type RTCPParameters struct {
	CNAME       string `json:"cname,omitempty"`
	ReducedSize bool   `json:"reducedSize"`
}

// HeaderExtension is a negotiated RTP header extension.
type HeaderExtension struct {
	URI       string `json:"uri"`
	ID        int    `json:"id"`
	Encrypted bool   `json:"encrypted"`
}

// Encoding is one RTP encoding of a sender or receiver.
type Encoding struct {
	RID                   string   `json:"rid,omitempty"`
	Active                bool     `json:"active"`
	MaxBitrate            *int     `json:"maxBitrate,omitempty"`
	MinBitrate            *int     `json:"minBitrate,omitempty"`
	MaxFramerate          *float64 `json:"maxFramerate,omitempty"`
	ScaleResolutionDownBy *float64 `json:"scaleResolutionDownBy,omitempty"`
	SSRC                  *uint32  `json:"ssrc,omitempty"`
}

// Codec is a negotiated RTP codec.
type Codec struct {
	PayloadType uint8             `json:"payloadType"`
	MimeType    string            `json:"mimeType"`
	ClockRate   *int              `json:"clockRate,omitempty"`
	Channels    *int              `json:"channels,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// RTPParameters is the wire form of sender or receiver RTP parameters.
type RTPParameters struct {
	TransactionID    string            `json:"transactionId,omitempty"`
	RTCP             RTCPParameters    `json:"rtcp"`
	HeaderExtensions []HeaderExtension `json:"headerExtensions,omitempty"`
	Encodings        []Encoding        `json:"encodings,omitempty"`
	Codecs           []Codec           `json:"codecs,omitempty"`
}

// TrackInfo describes a native media stream track.
type TrackInfo struct {
	Tag        Tag    `json:"valueTag"`
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	ReadyState string `json:"readyState"`
	Enabled    bool   `json:"enabled"`
	Remote     bool   `json:"remote,omitempty"`
}

// Validate reports a malformed track description.
func (t *TrackInfo) Validate() error {
	if t.Tag == "" {
		return fmt.Errorf("track %q: missing valueTag", t.ID)
	}
	if t.Kind != "audio" && t.Kind != "video" {
		return fmt.Errorf("track %q: invalid kind %q", t.ID, t.Kind)
	}
	return nil
}

// SenderInfo describes a native RTP sender.
type SenderInfo struct {
	Tag        Tag           `json:"valueTag"`
	ID         string        `json:"id"`
	Track      *TrackInfo    `json:"track,omitempty"`
	Parameters RTPParameters `json:"parameters"`
	StreamIDs  []string      `json:"streamIds,omitempty"`
}

// Validate reports a malformed sender description.
func (s *SenderInfo) Validate() error {
	if s.Tag == "" {
		return fmt.Errorf("sender %q: missing valueTag", s.ID)
	}
	if s.Track != nil {
		return s.Track.Validate()
	}
	return nil
}

// ReceiverInfo describes a native RTP receiver.
type ReceiverInfo struct {
	Tag        Tag           `json:"valueTag"`
	ID         string        `json:"id"`
	Track      *TrackInfo    `json:"track,omitempty"`
	Parameters RTPParameters `json:"parameters"`
	StreamIDs  []string      `json:"streamIds,omitempty"`
}

// Validate reports a malformed receiver description.
func (r *ReceiverInfo) Validate() error {
	if r.Tag == "" {
		return fmt.Errorf("receiver %q: missing valueTag", r.ID)
	}
	if r.Track != nil {
		return r.Track.Validate()
	}
	return nil
}

// TransceiverInfo describes a native RTP transceiver with its paired sender
// and receiver.
type TransceiverInfo struct {
	Tag      Tag          `json:"valueTag"`
	Mid      string       `json:"mid,omitempty"`
	Sender   SenderInfo   `json:"sender"`
	Receiver ReceiverInfo `json:"receiver"`
	Stopped  bool         `json:"stopped"`
}

// Validate reports a malformed transceiver description.
func (t *TransceiverInfo) Validate() error {
	if t.Tag == "" {
		return fmt.Errorf("transceiver %q: missing valueTag", t.Mid)
	}
	if err := t.Sender.Validate(); err != nil {
		return err
	}
	return t.Receiver.Validate()
}

// TransceiverInit is the wire form of addTransceiver options.
type TransceiverInit struct {
	Direction     string     `json:"direction,omitempty"`
	StreamIDs     []string   `json:"streamIds,omitempty"`
	SendEncodings []Encoding `json:"sendEncodings,omitempty"`
}

// DataChannelInit is the wire form of createDataChannel options.
type DataChannelInit struct {
	Ordered           *bool   `json:"ordered,omitempty"`
	MaxPacketLifeTime *uint16 `json:"maxPacketLifeTime,omitempty"`
	MaxRetransmits    *uint16 `json:"maxRetransmits,omitempty"`
	Protocol          string  `json:"protocol,omitempty"`
	Negotiated        bool    `json:"negotiated,omitempty"`
	ID                *uint16 `json:"id,omitempty"`
}

// DataChannelInfo describes a native data channel.
type DataChannelInfo struct {
	Tag               Tag     `json:"valueTag"`
	ID                *uint16 `json:"id,omitempty"`
	Label             string  `json:"label"`
	Protocol          string  `json:"protocol,omitempty"`
	Ordered           bool    `json:"ordered"`
	Negotiated        bool    `json:"negotiated,omitempty"`
	MaxPacketLifeTime *uint16 `json:"maxPacketLifeTime,omitempty"`
	MaxRetransmits    *uint16 `json:"maxRetransmits,omitempty"`
	ReadyState        string  `json:"readyState"`
	BufferedAmount    uint64  `json:"bufferedAmount"`
}

// Validate reports a malformed data channel description.
func (d *DataChannelInfo) Validate() error {
	if d.Tag == "" {
		return fmt.Errorf("data channel %q: missing valueTag", d.Label)
	}
	return nil
}

// DataBuffer is a data channel payload. Binary payloads are carried as
// standard base64 text.
type DataBuffer struct {
	Data   string `json:"data"`
	Binary bool   `json:"binary"`
}

// TextBuffer wraps a text payload.
func TextBuffer(s string) DataBuffer {
	return DataBuffer{Data: s}
}

// BinaryBuffer encodes b for transport.
func BinaryBuffer(b []byte) DataBuffer {
	return DataBuffer{Data: base64.StdEncoding.EncodeToString(b), Binary: true}
}

// Bytes returns the payload bytes, decoding base64 for binary buffers.
func (b DataBuffer) Bytes() ([]byte, error) {
	if !b.Binary {
		return []byte(b.Data), nil
	}
	out, err := base64.StdEncoding.DecodeString(b.Data)
	if err != nil {
		return nil, fmt.Errorf("decode binary payload: %w", err)
	}
	return out, nil
}

// VideoConstraints is the wire form of capture constraints for video.
type VideoConstraints struct {
	FacingMode string  `json:"facingMode,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	FrameRate  float64 `json:"frameRate,omitempty"`
}

// MediaStreamConstraints is the wire form of getUserMedia constraints.
type MediaStreamConstraints struct {
	Audio bool              `json:"audio"`
	Video *VideoConstraints `json:"video,omitempty"`
}

// MediaStreamInfo describes a captured local stream.
type MediaStreamInfo struct {
	StreamID string      `json:"streamId"`
	Tracks   []TrackInfo `json:"tracks"`
}
