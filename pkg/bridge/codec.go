package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEvent is returned when decoding an event name with no mapping.
var ErrUnknownEvent = errors.New("unknown native event")

var eventTypes = map[string]func() Event{
	KindNegotiationNeeded.String():                func() Event { return &NegotiationNeeded{} },
	KindConnectionStateChanged.String():           func() Event { return &ConnectionStateChanged{} },
	KindICEConnectionStateChanged.String():        func() Event { return &ICEConnectionStateChanged{} },
	KindICEGatheringStateChanged.String():         func() Event { return &ICEGatheringStateChanged{} },
	KindSignalingStateChanged.String():            func() Event { return &SignalingStateChanged{} },
	KindReceiverAdded.String():                    func() Event { return &ReceiverAdded{} },
	KindReceiverRemoved.String():                  func() Event { return &ReceiverRemoved{} },
	KindTransceiverStarted.String():               func() Event { return &TransceiverStarted{} },
	KindICECandidateGathered.String():             func() Event { return &ICECandidateGathered{} },
	KindDataChannelCreated.String():               func() Event { return &DataChannelCreated{} },
	KindDataChannelStateChanged.String():          func() Event { return &DataChannelStateChanged{} },
	KindDataChannelMessage.String():               func() Event { return &DataChannelMessage{} },
	KindDataChannelBufferedAmountChanged.String(): func() Event { return &DataChannelBufferedAmountChanged{} },
}

// DecodeEvent parses a native event payload into its typed form. Events
// without a target tag or with malformed descriptions are rejected.
func DecodeEvent(name string, payload []byte) (Event, error) {
	factory, ok := eventTypes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	ev := factory()
	if err := json.Unmarshal(payload, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if ev.Target() == "" {
		return nil, fmt.Errorf("decode %s: missing valueTag", name)
	}
	if v, ok := ev.(validator); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return ev, nil
}

// EncodeEvent returns the native name and payload for ev.
func EncodeEvent(ev Event) (string, []byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}
	return ev.Kind().String(), payload, nil
}
