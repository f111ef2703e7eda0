package pionengine

import (
	"errors"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/rtcerr"

	"github.com/thesyncim/webrtckit/pkg/bridge"
)

func toConfiguration(c bridge.Configuration) webrtc.Configuration {
	out := webrtc.Configuration{
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
		BundlePolicy:       webrtc.BundlePolicyMaxBundle,
		RTCPMuxPolicy:      webrtc.RTCPMuxPolicyRequire,
	}
	if c.ICECandidatePoolSize > 0 && c.ICECandidatePoolSize < 256 {
		out.ICECandidatePoolSize = uint8(c.ICECandidatePoolSize)
	}
	for _, s := range c.ICEServers {
		srv := webrtc.ICEServer{URLs: append([]string(nil), s.URLs...), Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out.ICEServers = append(out.ICEServers, srv)
	}
	if c.ICETransportPolicy == "relay" {
		out.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}
	switch c.BundlePolicy {
	case "balanced":
		out.BundlePolicy = webrtc.BundlePolicyBalanced
	case "max-compat":
		out.BundlePolicy = webrtc.BundlePolicyMaxCompat
	}
	if c.RTCPMuxPolicy == "negotiate" {
		out.RTCPMuxPolicy = webrtc.RTCPMuxPolicyNegotiate
	}
	return out
}

func toDirection(raw string) (webrtc.RTPTransceiverDirection, bool) {
	switch raw {
	case "sendrecv", "":
		return webrtc.RTPTransceiverDirectionSendrecv, true
	case "sendonly":
		return webrtc.RTPTransceiverDirectionSendonly, true
	case "recvonly":
		return webrtc.RTPTransceiverDirectionRecvonly, true
	case "inactive":
		return webrtc.RTPTransceiverDirectionInactive, true
	}
	return webrtc.RTPTransceiverDirectionUnknown, false
}

func toDataChannelInit(i bridge.DataChannelInit) *webrtc.DataChannelInit {
	out := &webrtc.DataChannelInit{
		Ordered:           i.Ordered,
		MaxPacketLifeTime: i.MaxPacketLifeTime,
		MaxRetransmits:    i.MaxRetransmits,
		ID:                i.ID,
	}
	if i.Protocol != "" {
		p := i.Protocol
		out.Protocol = &p
	}
	if i.Negotiated {
		n := true
		out.Negotiated = &n
	}
	return out
}

func fromCandidate(c webrtc.ICECandidateInit) bridge.ICECandidate {
	return bridge.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func toCandidate(c bridge.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func toDescription(d bridge.SessionDescription) (webrtc.SessionDescription, error) {
	typ := webrtc.NewSDPType(d.Type)
	if typ == webrtc.SDPTypeUnknown {
		return webrtc.SessionDescription{}, bridge.Errorf(bridge.CodeTypeError, "unknown sdp type %q", d.Type)
	}
	return webrtc.SessionDescription{Type: typ, SDP: d.SDP}, nil
}

func fromDescription(d webrtc.SessionDescription) bridge.SessionDescription {
	return bridge.SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

func fromParameters(p webrtc.RTPParameters) bridge.RTPParameters {
	var out bridge.RTPParameters
	for _, h := range p.HeaderExtensions {
		out.HeaderExtensions = append(out.HeaderExtensions, bridge.HeaderExtension{URI: h.URI, ID: h.ID})
	}
	for _, c := range p.Codecs {
		codec := bridge.Codec{
			PayloadType: uint8(c.PayloadType),
			MimeType:    c.MimeType,
			Parameters:  parseFmtp(c.SDPFmtpLine),
		}
		if c.ClockRate > 0 {
			rate := int(c.ClockRate)
			codec.ClockRate = &rate
		}
		if c.Channels > 0 {
			ch := int(c.Channels)
			codec.Channels = &ch
		}
		out.Codecs = append(out.Codecs, codec)
	}
	return out
}

func fromSendParameters(p webrtc.RTPSendParameters) bridge.RTPParameters {
	out := fromParameters(p.RTPParameters)
	for _, e := range p.Encodings {
		ssrc := uint32(e.SSRC)
		out.Encodings = append(out.Encodings, bridge.Encoding{RID: e.RID, Active: true, SSRC: &ssrc})
	}
	return out
}

// parseFmtp splits an fmtp line such as "minptime=10;useinbandfec=1".
func parseFmtp(line string) map[string]string {
	if line == "" {
		return nil
	}
	out := make(map[string]string)
	for _, kv := range strings.Split(line, ";") {
		k, v, _ := strings.Cut(strings.TrimSpace(kv), "=")
		if k != "" {
			out[k] = v
		}
	}
	return out
}

var sdpDirections = []string{"sendrecv", "sendonly", "recvonly", "inactive"}

// negotiatedDirection returns the direction attribute of the media section
// with the given mid, or "" when desc has no such section.
func negotiatedDirection(desc *webrtc.SessionDescription, mid string) (string, error) {
	if desc == nil || mid == "" {
		return "", nil
	}
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return "", err
	}
	for _, md := range parsed.MediaDescriptions {
		if m, ok := md.Attribute("mid"); !ok || m != mid {
			continue
		}
		for _, d := range sdpDirections {
			if _, ok := md.Attribute(d); ok {
				return d, nil
			}
		}
		return "sendrecv", nil
	}
	return "", nil
}

// rejection converts a pion failure into an engine rejection.
func rejection(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *bridge.Error
	if errors.As(err, &be) {
		return be
	}
	var te *rtcerr.TypeError
	if errors.As(err, &te) {
		return bridge.Errorf(bridge.CodeTypeError, "%s: %v", op, err)
	}
	var ise *rtcerr.InvalidStateError
	if errors.As(err, &ise) {
		return bridge.Errorf(bridge.CodeInvalidState, "%s: %v", op, err)
	}
	return bridge.Errorf(bridge.CodeOperation, "%s: %v", op, err)
}
