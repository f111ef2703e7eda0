// Package testutil provides shared test utilities for webrtckit tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pion/logging"

	"github.com/thesyncim/webrtckit/internal/ffi"
	"github.com/thesyncim/webrtckit/pkg/bridge"
)

// RequireBridge skips the test unless the native bridge library can be
// loaded.
func RequireBridge(tb testing.TB) {
	tb.Helper()
	if err := ffi.LoadLibrary(""); err != nil {
		tb.Skipf("native bridge library not available: %v", err)
	}
}

// Call is one recorded engine invocation.
type Call struct {
	Method string
	Args   []any
}

// MockEngine is an in-memory bridge.Engine. It records every call, answers
// requests from canned results and lets tests inject engine events.
type MockEngine struct {
	bus *bridge.Bus

	mu      sync.Mutex
	calls   []Call
	results map[string]any
	errs    map[string]error
	onSend  func(channel bridge.Tag, buf bridge.DataBuffer)
}

// NewMockEngine returns a mock whose bus is closed when the test ends.
func NewMockEngine(tb testing.TB) *MockEngine {
	tb.Helper()
	m := &MockEngine{
		bus:     bridge.NewBus(logging.NewDefaultLoggerFactory().NewLogger("mock")),
		results: make(map[string]any),
		errs:    make(map[string]error),
	}
	tb.Cleanup(m.bus.Close)
	return m
}

// SetResult sets the reply for a request method. The value must have the
// method's result type.
func (m *MockEngine) SetResult(method string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[method] = v
}

// SetError makes method fail with err.
func (m *MockEngine) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[method] = err
}

// OnSendData installs a hook run for every SendData call.
func (m *MockEngine) OnSendData(f func(channel bridge.Tag, buf bridge.DataBuffer)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSend = f
}

// Emit publishes ev and waits until it has been delivered.
func (m *MockEngine) Emit(ev bridge.Event) {
	m.bus.Publish(ev)
	m.bus.Sync()
}

// Calls returns a copy of the recorded calls.
func (m *MockEngine) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsTo returns the recorded calls to method.
func (m *MockEngine) CallsTo(method string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// CallCount returns how many times method was called.
func (m *MockEngine) CallCount(method string) int {
	return len(m.CallsTo(method))
}

func (m *MockEngine) record(method string, args ...any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Args: args})
	return m.results[method], m.errs[method]
}

func result[T any](method string, v any, def T) T {
	if v == nil {
		return def
	}
	out, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("testutil: result for %s is %T, want %T", method, v, def))
	}
	return out
}

// Events implements bridge.Engine.
func (m *MockEngine) Events() *bridge.Bus { return m.bus }

func (m *MockEngine) InitPeerConnection(tag bridge.Tag, config bridge.Configuration, constraints bridge.MediaConstraints) {
	m.record("InitPeerConnection", tag, config, constraints)
}

func (m *MockEngine) SetConfiguration(tag bridge.Tag, config bridge.Configuration) {
	m.record("SetConfiguration", tag, config)
}

func (m *MockEngine) ClosePeerConnection(tag bridge.Tag) {
	m.record("ClosePeerConnection", tag)
}

func (m *MockEngine) RemoveTrack(tag, sender bridge.Tag) {
	m.record("RemoveTrack", tag, sender)
}

func (m *MockEngine) StopTransceiver(transceiver bridge.Tag) {
	m.record("StopTransceiver", transceiver)
}

func (m *MockEngine) SetTransceiverDirection(transceiver bridge.Tag, direction string) {
	m.record("SetTransceiverDirection", transceiver, direction)
}

func (m *MockEngine) SetTrackEnabled(track bridge.Tag, enabled bool) {
	m.record("SetTrackEnabled", track, enabled)
}

func (m *MockEngine) SetTrackAspectRatio(track bridge.Tag, ratio float64) {
	m.record("SetTrackAspectRatio", track, ratio)
}

func (m *MockEngine) CloseDataChannel(channel bridge.Tag) {
	m.record("CloseDataChannel", channel)
}

func (m *MockEngine) StopUserMedia() {
	m.record("StopUserMedia")
}

func (m *MockEngine) CreateOffer(_ context.Context, tag bridge.Tag, constraints bridge.MediaConstraints) (bridge.SessionDescription, error) {
	v, err := m.record("CreateOffer", tag, constraints)
	if err != nil {
		return bridge.SessionDescription{}, err
	}
	return result("CreateOffer", v, bridge.SessionDescription{Type: "offer", SDP: "v=0\r\n"}), nil
}

func (m *MockEngine) CreateAnswer(_ context.Context, tag bridge.Tag, constraints bridge.MediaConstraints) (bridge.SessionDescription, error) {
	v, err := m.record("CreateAnswer", tag, constraints)
	if err != nil {
		return bridge.SessionDescription{}, err
	}
	return result("CreateAnswer", v, bridge.SessionDescription{Type: "answer", SDP: "v=0\r\n"}), nil
}

func (m *MockEngine) AddICECandidate(_ context.Context, tag bridge.Tag, candidate bridge.ICECandidate) error {
	_, err := m.record("AddICECandidate", tag, candidate)
	return err
}

func (m *MockEngine) SetLocalDescription(_ context.Context, tag bridge.Tag, desc bridge.SessionDescription) error {
	_, err := m.record("SetLocalDescription", tag, desc)
	return err
}

func (m *MockEngine) SetRemoteDescription(_ context.Context, tag bridge.Tag, desc bridge.SessionDescription) error {
	_, err := m.record("SetRemoteDescription", tag, desc)
	return err
}

func (m *MockEngine) AddTrack(_ context.Context, tag, track bridge.Tag, streamIDs []string) (bridge.SenderInfo, error) {
	v, err := m.record("AddTrack", tag, track, streamIDs)
	if err != nil {
		return bridge.SenderInfo{}, err
	}
	def := bridge.SenderInfo{Tag: "sender-" + track, ID: "sender-" + string(track), StreamIDs: streamIDs}
	return result("AddTrack", v, def), nil
}

func (m *MockEngine) AddTransceiver(_ context.Context, tag, track bridge.Tag, init bridge.TransceiverInit) (bridge.TransceiverInfo, error) {
	v, err := m.record("AddTransceiver", tag, track, init)
	if err != nil {
		return bridge.TransceiverInfo{}, err
	}
	def := bridge.TransceiverInfo{
		Tag:      "transceiver-" + track,
		Sender:   bridge.SenderInfo{Tag: "sender-" + track, ID: "sender-" + string(track)},
		Receiver: bridge.ReceiverInfo{Tag: "receiver-" + track, ID: "receiver-" + string(track)},
	}
	return result("AddTransceiver", v, def), nil
}

func (m *MockEngine) CreateDataChannel(_ context.Context, tag, channel bridge.Tag, label string, init bridge.DataChannelInit) (bridge.DataChannelInfo, error) {
	v, err := m.record("CreateDataChannel", tag, channel, label, init)
	if err != nil {
		return bridge.DataChannelInfo{}, err
	}
	def := bridge.DataChannelInfo{
		Tag:        channel,
		Label:      label,
		Protocol:   init.Protocol,
		Ordered:    init.Ordered == nil || *init.Ordered,
		Negotiated: init.Negotiated,
		ReadyState: "connecting",
	}
	return result("CreateDataChannel", v, def), nil
}

func (m *MockEngine) SendData(_ context.Context, channel bridge.Tag, buf bridge.DataBuffer) error {
	_, err := m.record("SendData", channel, buf)
	if err != nil {
		return err
	}
	m.mu.Lock()
	hook := m.onSend
	m.mu.Unlock()
	if hook != nil {
		hook(channel, buf)
	}
	return nil
}

func (m *MockEngine) TransceiverDirection(_ context.Context, transceiver bridge.Tag) (string, error) {
	v, err := m.record("TransceiverDirection", transceiver)
	if err != nil {
		return "", err
	}
	return result("TransceiverDirection", v, "sendrecv"), nil
}

func (m *MockEngine) TransceiverCurrentDirection(_ context.Context, transceiver bridge.Tag) (string, error) {
	v, err := m.record("TransceiverCurrentDirection", transceiver)
	if err != nil {
		return "", err
	}
	return result("TransceiverCurrentDirection", v, ""), nil
}

func (m *MockEngine) GetUserMedia(_ context.Context, constraints bridge.MediaStreamConstraints) (bridge.MediaStreamInfo, error) {
	v, err := m.record("GetUserMedia", constraints)
	if err != nil {
		return bridge.MediaStreamInfo{}, err
	}
	def := bridge.MediaStreamInfo{StreamID: "local"}
	if constraints.Audio {
		def.Tracks = append(def.Tracks, bridge.TrackInfo{Tag: "local-audio", ID: "audio0", Kind: "audio", ReadyState: "live", Enabled: true})
	}
	if constraints.Video != nil {
		def.Tracks = append(def.Tracks, bridge.TrackInfo{Tag: "local-video", ID: "video0", Kind: "video", ReadyState: "live", Enabled: true})
	}
	return result("GetUserMedia", v, def), nil
}

var _ bridge.Engine = (*MockEngine)(nil)
