package pc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4/pkg/rtcerr"

	"github.com/thesyncim/webrtckit/internal/testutil"
	"github.com/thesyncim/webrtckit/pkg/bridge"
	"github.com/thesyncim/webrtckit/pkg/event"
)

func newTestPeerConnection(t *testing.T) (*PeerConnection, *testutil.MockEngine) {
	t.Helper()
	m := testutil.NewMockEngine(t)
	pc, err := NewAPI(m).NewPeerConnection(nil, nil)
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	return pc, m
}

func TestPeerConnection_InitialState(t *testing.T) {
	pc, m := newTestPeerConnection(t)

	if pc.SignalingState() != SignalingStateStable {
		t.Errorf("initial signaling state = %v, want stable", pc.SignalingState())
	}
	if pc.ICEConnectionState() != ICEConnectionStateNew {
		t.Errorf("initial ICE connection state = %v, want new", pc.ICEConnectionState())
	}
	if pc.ICEGatheringState() != ICEGatheringStateNew {
		t.Errorf("initial ICE gathering state = %v, want new", pc.ICEGatheringState())
	}
	if pc.ConnectionState() != PeerConnectionStateNew {
		t.Errorf("initial connection state = %v, want new", pc.ConnectionState())
	}

	calls := m.CallsTo("InitPeerConnection")
	if len(calls) != 1 {
		t.Fatalf("InitPeerConnection calls = %d, want 1", len(calls))
	}
	if calls[0].Args[0] != pc.Tag() {
		t.Errorf("init tag = %v, want %v", calls[0].Args[0], pc.Tag())
	}
	cfg := calls[0].Args[1].(bridge.Configuration)
	if cfg.BundlePolicy != "max-bundle" {
		t.Errorf("default bundle policy = %q", cfg.BundlePolicy)
	}
}

func TestPeerConnection_UniqueTags(t *testing.T) {
	m := testutil.NewMockEngine(t)
	api := NewAPI(m)

	seen := make(map[bridge.Tag]bool)
	for i := 0; i < 10; i++ {
		pc, err := api.NewPeerConnection(nil, nil)
		if err != nil {
			t.Fatalf("NewPeerConnection: %v", err)
		}
		if seen[pc.Tag()] {
			t.Fatalf("duplicate tag %q", pc.Tag())
		}
		seen[pc.Tag()] = true
	}
}

func TestPeerConnection_UniqueTagsAcrossAPIs(t *testing.T) {
	m := testutil.NewMockEngine(t)
	a, err := NewAPI(m).NewPeerConnection(nil, nil)
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	b, err := NewAPI(m).NewPeerConnection(nil, nil)
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	if a.Tag() == b.Tag() {
		t.Fatalf("both connections got tag %q", a.Tag())
	}

	m.Emit(&bridge.ConnectionStateChanged{Tag: b.Tag(), State: "closed"})
	if b.ConnectionState() != PeerConnectionStateClosed {
		t.Errorf("b state = %v, want closed", b.ConnectionState())
	}
	if a.ConnectionState() != PeerConnectionStateNew {
		t.Errorf("a state = %v, want new", a.ConnectionState())
	}
}

func TestPeerConnection_NoEngine(t *testing.T) {
	if _, err := NewAPI(nil).NewPeerConnection(nil, nil); err == nil {
		t.Fatal("NewPeerConnection without engine succeeded")
	}
}

func TestPeerConnection_ForeignEventsIgnored(t *testing.T) {
	m := testutil.NewMockEngine(t)
	api := NewAPI(m)
	a, _ := api.NewPeerConnection(nil, nil)
	b, _ := api.NewPeerConnection(nil, nil)

	fired := 0
	b.OnConnectionStateChange(func(PeerConnectionState) { fired++ })

	m.Emit(&bridge.ConnectionStateChanged{Tag: a.Tag(), State: "connected"})

	if a.ConnectionState() != PeerConnectionStateConnected {
		t.Errorf("a state = %v, want connected", a.ConnectionState())
	}
	if b.ConnectionState() != PeerConnectionStateNew {
		t.Errorf("b state = %v, want new", b.ConnectionState())
	}
	if fired != 0 {
		t.Errorf("b handler fired %d times", fired)
	}
}

func TestPeerConnection_StateEvents(t *testing.T) {
	pc, m := newTestPeerConnection(t)

	var (
		conn      []PeerConnectionState
		ice       []ICEConnectionState
		signaling []SignalingState
	)
	pc.OnConnectionStateChange(func(s PeerConnectionState) { conn = append(conn, s) })
	pc.OnICEConnectionStateChange(func(s ICEConnectionState) { ice = append(ice, s) })
	pc.OnSignalingStateChange(func(s SignalingState) { signaling = append(signaling, s) })

	m.Emit(&bridge.SignalingStateChanged{Tag: pc.Tag(), State: "have-local-offer"})
	m.Emit(&bridge.ICEConnectionStateChanged{Tag: pc.Tag(), State: "checking"})
	m.Emit(&bridge.ConnectionStateChanged{Tag: pc.Tag(), State: "connecting"})
	m.Emit(&bridge.ConnectionStateChanged{Tag: pc.Tag(), State: "connected"})
	m.Emit(&bridge.ConnectionStateChanged{Tag: pc.Tag(), State: "sideways"})

	if len(conn) != 2 || conn[0] != PeerConnectionStateConnecting || conn[1] != PeerConnectionStateConnected {
		t.Errorf("connection states = %v", conn)
	}
	if pc.ConnectionState() != PeerConnectionStateConnected {
		t.Errorf("state after unknown value = %v, want connected", pc.ConnectionState())
	}
	if len(ice) != 1 || ice[0] != ICEConnectionStateChecking {
		t.Errorf("ice states = %v", ice)
	}
	if len(signaling) != 1 || signaling[0] != SignalingStateHaveLocalOffer {
		t.Errorf("signaling states = %v", signaling)
	}
}

func TestPeerConnection_ICECandidateCallback(t *testing.T) {
	pc, m := newTestPeerConnection(t)

	var got []*ICECandidate
	pc.OnICECandidate(func(c *ICECandidate) { got = append(got, c) })

	mid := "0"
	m.Emit(&bridge.ICECandidateGathered{Tag: pc.Tag(), Candidate: bridge.ICECandidate{
		Candidate: "candidate:1 1 udp 2122260223 192.0.2.1 54321 typ host",
		SDPMid:    &mid,
	}})
	m.Emit(&bridge.ICEGatheringStateChanged{Tag: pc.Tag(), State: "gathering"})
	m.Emit(&bridge.ICEGatheringStateChanged{Tag: pc.Tag(), State: "complete"})

	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2", len(got))
	}
	if got[0] == nil || got[0].SDPMid == nil || *got[0].SDPMid != "0" {
		t.Errorf("first candidate = %+v", got[0])
	}
	if got[1] != nil {
		t.Errorf("end of gathering candidate = %+v, want nil", got[1])
	}
	if pc.ICEGatheringState() != ICEGatheringStateComplete {
		t.Errorf("gathering state = %v, want complete", pc.ICEGatheringState())
	}
}

func TestPeerConnection_NegotiationNeededCallback(t *testing.T) {
	pc, m := newTestPeerConnection(t)

	fired := 0
	pc.OnNegotiationNeeded(func() { fired++ })
	m.Emit(&bridge.NegotiationNeeded{Tag: pc.Tag()})

	if fired != 1 {
		t.Errorf("negotiationneeded fired %d times, want 1", fired)
	}

	pc.OnNegotiationNeeded(nil)
	m.Emit(&bridge.NegotiationNeeded{Tag: pc.Tag()})
	if fired != 1 {
		t.Errorf("cleared handler fired")
	}
}

func TestPeerConnection_CloseState(t *testing.T) {
	pc, m := newTestPeerConnection(t)

	if err := pc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if pc.ConnectionState() != PeerConnectionStateNew {
		t.Errorf("state before engine confirms = %v, want new", pc.ConnectionState())
	}
	if n := m.CallCount("ClosePeerConnection"); n != 1 {
		t.Errorf("ClosePeerConnection calls = %d, want 1", n)
	}

	m.Emit(&bridge.ConnectionStateChanged{Tag: pc.Tag(), State: "closed"})
	if pc.ConnectionState() != PeerConnectionStateClosed {
		t.Errorf("state = %v, want closed", pc.ConnectionState())
	}
	if n := m.Events().Subscribers(pc.Tag()); n != 0 {
		t.Errorf("subscriptions after close = %d, want 0", n)
	}

	m.Emit(&bridge.ConnectionStateChanged{Tag: pc.Tag(), State: "connected"})
	if pc.ConnectionState() != PeerConnectionStateClosed {
		t.Errorf("state changed after teardown: %v", pc.ConnectionState())
	}
}

func TestPeerConnection_DoubleClose(t *testing.T) {
	pc, m := newTestPeerConnection(t)

	for i := 0; i < 3; i++ {
		if err := pc.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i, err)
		}
	}
	if n := m.CallCount("ClosePeerConnection"); n != 1 {
		t.Errorf("ClosePeerConnection calls = %d, want 1", n)
	}
}

func TestPeerConnection_CloseRemovesSenders(t *testing.T) {
	pc, m := newTestPeerConnection(t)
	track := newTestTrack(t, m, "t-audio", "audio")

	if _, err := pc.AddTrack(context.Background(), track); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if err := pc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(pc.GetSenders()) != 0 {
		t.Errorf("senders after Close = %d", len(pc.GetSenders()))
	}
	calls := m.Calls()
	last := calls[len(calls)-1]
	if last.Method != "ClosePeerConnection" || calls[len(calls)-2].Method != "RemoveTrack" {
		t.Errorf("close sequence = %v, %v", calls[len(calls)-2].Method, last.Method)
	}
}

func TestPeerConnection_OperationsAfterClose(t *testing.T) {
	pc, m := newTestPeerConnection(t)
	track := newTestTrack(t, m, "t-video", "video")
	m.Emit(&bridge.ConnectionStateChanged{Tag: pc.Tag(), State: "closed"})

	ctx := context.Background()
	checks := map[string]error{}
	_, checks["CreateOffer"] = pc.CreateOffer(ctx, nil)
	_, checks["CreateAnswer"] = pc.CreateAnswer(ctx, nil)
	checks["SetLocalDescription"] = pc.SetLocalDescription(ctx, SessionDescription{Type: SDPTypeOffer, SDP: "v=0"})
	checks["SetRemoteDescription"] = pc.SetRemoteDescription(ctx, SessionDescription{Type: SDPTypeOffer, SDP: "v=0"})
	checks["AddICECandidate"] = pc.AddICECandidate(ctx, ICECandidate{Candidate: "x"})
	_, checks["AddTrack"] = pc.AddTrack(ctx, track)
	_, checks["AddTransceiver"] = pc.AddTransceiver(ctx, track, nil)
	_, checks["CreateDataChannel"] = pc.CreateDataChannel(ctx, "late", nil)
	checks["SetConfiguration"] = pc.SetConfiguration(DefaultConfiguration())

	for op, err := range checks {
		var ise *rtcerr.InvalidStateError
		if !errors.As(err, &ise) {
			t.Errorf("%s after close = %v, want InvalidStateError", op, err)
		}
	}
	if n := len(m.Calls()); n != 1 {
		t.Errorf("engine calls after close = %v, want only init", m.Calls())
	}
}

func TestPeerConnection_TeardownEndsTracks(t *testing.T) {
	pc, m := newTestPeerConnection(t)
	local := newTestTrack(t, m, "t-local", "audio")
	if _, err := pc.AddTrack(context.Background(), local); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	m.Emit(&bridge.ReceiverAdded{Tag: pc.Tag(), Receiver: bridge.ReceiverInfo{
		Tag: "r1", ID: "r1",
		Track: &bridge.TrackInfo{Tag: "rt1", ID: "remote", Kind: "video", ReadyState: "live", Enabled: true, Remote: true},
	}})
	remote := pc.GetReceivers()[0].Track()

	ended := 0
	remote.AddEventListener(EventEnded, func(event.Event) { ended++ })
	m.Emit(&bridge.ConnectionStateChanged{Tag: pc.Tag(), State: "closed"})

	if local.ReadyState() != TrackStateEnded || remote.ReadyState() != TrackStateEnded {
		t.Errorf("track states = %v, %v, want ended", local.ReadyState(), remote.ReadyState())
	}
	if ended != 1 {
		t.Errorf("ended fired %d times", ended)
	}
}

func TestPeerConnection_SignalingState_CreateOffer(t *testing.T) {
	pc, m := newTestPeerConnection(t)
	ctx := context.Background()

	offer, err := pc.CreateOffer(ctx, nil)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if offer.Type != SDPTypeOffer {
		t.Errorf("offer type = %v, want offer", offer.Type)
	}
	if pc.LocalDescription() != nil {
		t.Error("local description set by CreateOffer")
	}

	if err := pc.SetLocalDescription(ctx, offer); err != nil {
		t.Fatalf("SetLocalDescription: %v", err)
	}
	ld := pc.LocalDescription()
	if ld == nil || ld.Type != SDPTypeOffer || ld.SDP != offer.SDP {
		t.Errorf("local description = %+v", ld)
	}

	sent := m.CallsTo("SetLocalDescription")[0].Args[1].(bridge.SessionDescription)
	if sent.Type != "offer" {
		t.Errorf("wire type = %q", sent.Type)
	}
}

func TestPeerConnection_LocalRemoteDescription(t *testing.T) {
	pc, m := newTestPeerConnection(t)
	ctx := context.Background()

	offer := SessionDescription{Type: SDPTypeOffer, SDP: "v=0 remote"}
	if err := pc.SetRemoteDescription(ctx, offer); err != nil {
		t.Fatalf("SetRemoteDescription: %v", err)
	}
	if rd := pc.RemoteDescription(); rd == nil || rd.SDP != offer.SDP {
		t.Errorf("remote description = %+v", rd)
	}

	m.SetError("SetRemoteDescription", bridge.Errorf(bridge.CodeOperation, "bad sdp"))
	err := pc.SetRemoteDescription(ctx, SessionDescription{Type: SDPTypeOffer, SDP: "garbage"})
	var oe *rtcerr.OperationError
	if !errors.As(err, &oe) {
		t.Fatalf("error = %v, want OperationError", err)
	}
	if rd := pc.RemoteDescription(); rd == nil || rd.SDP != offer.SDP {
		t.Errorf("remote description changed on failure: %+v", rd)
	}
}

func TestPeerConnection_EngineErrorMapping(t *testing.T) {
	pc, m := newTestPeerConnection(t)
	ctx := context.Background()

	m.SetError("CreateOffer", bridge.Errorf(bridge.CodeTypeError, "bad constraints"))
	_, err := pc.CreateOffer(ctx, nil)
	var te *rtcerr.TypeError
	if !errors.As(err, &te) {
		t.Errorf("TypeError rejection = %v (%T)", err, err)
	}

	m.SetError("CreateAnswer", errors.New("no remote offer"))
	_, err = pc.CreateAnswer(ctx, nil)
	var oe *rtcerr.OperationError
	if !errors.As(err, &oe) {
		t.Errorf("plain rejection = %v (%T)", err, err)
	}

	m.SetResult("CreateOffer", bridge.SessionDescription{Type: "sideways"})
	m.SetError("CreateOffer", nil)
	if _, err := pc.CreateOffer(ctx, nil); !errors.As(err, &oe) {
		t.Errorf("unknown sdp type = %v", err)
	}
}

func TestPeerConnection_OfferConstraints(t *testing.T) {
	m := testutil.NewMockEngine(t)
	mc := MediaConstraints{Mandatory: map[string]string{"OfferToReceiveAudio": "true"}}
	pc, _ := NewAPI(m).NewPeerConnection(nil, &mc)

	if _, err := pc.CreateOffer(context.Background(), nil); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	got := m.CallsTo("CreateOffer")[0].Args[1].(bridge.MediaConstraints)
	if got.Mandatory["OfferToReceiveAudio"] != "true" {
		t.Errorf("constraints = %+v", got)
	}
}

func TestPeerConnection_DeprecatedStreams(t *testing.T) {
	pc, m := newTestPeerConnection(t)

	errs := []error{pc.AddStream(&MediaStream{}), pc.RemoveStream(&MediaStream{})}
	_, err := pc.GetLocalStreams()
	errs = append(errs, err)
	_, err = pc.GetRemoteStreams()
	errs = append(errs, err)

	for i, err := range errs {
		var nse *rtcerr.NotSupportedError
		if !errors.As(err, &nse) || !errors.Is(nse.Err, ErrDeprecated) {
			t.Errorf("call %d: %v, want deprecated", i, err)
		}
	}
	if n := len(m.Calls()); n != 1 {
		t.Errorf("deprecated calls reached engine: %v", m.Calls())
	}
}

func TestPeerConnection_SetConfiguration(t *testing.T) {
	pc, m := newTestPeerConnection(t)

	cfg := DefaultConfiguration()
	cfg.ICETransportPolicy = "relay"
	if err := pc.SetConfiguration(cfg); err != nil {
		t.Fatalf("SetConfiguration: %v", err)
	}
	got := m.CallsTo("SetConfiguration")[0].Args[1].(bridge.Configuration)
	if got.ICETransportPolicy != "relay" {
		t.Errorf("policy = %q", got.ICETransportPolicy)
	}
}

func TestPeerConnection_IdentityEventsAccepted(t *testing.T) {
	pc, _ := newTestPeerConnection(t)
	for _, typ := range []event.Type{EventIdentityResult, EventIDPAssertionError, EventIDPValidationError, EventPeerIdentity} {
		if _, err := pc.AddEventListener(typ, func(event.Event) {}); err != nil {
			t.Errorf("AddEventListener(%s): %v", typ, err)
		}
	}
	if _, err := pc.AddEventListener("message", func(event.Event) {}); err == nil {
		t.Error("AddEventListener(message) accepted on a peer connection")
	}
}

func TestPeerConnection_Concurrent_StateQueries(t *testing.T) {
	pc, m := newTestPeerConnection(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = pc.SignalingState()
				_ = pc.ICEConnectionState()
				_ = pc.ICEGatheringState()
				_ = pc.ConnectionState()
				_ = pc.GetTransceivers()
			}
		}()
	}
	for _, s := range []string{"connecting", "connected", "disconnected", "connected"} {
		m.Emit(&bridge.ConnectionStateChanged{Tag: pc.Tag(), State: s})
	}
	wg.Wait()

	if pc.ConnectionState() != PeerConnectionStateConnected {
		t.Errorf("final state = %v", pc.ConnectionState())
	}
}

func BenchmarkPeerConnection_StateQuery(b *testing.B) {
	m := testutil.NewMockEngine(b)
	pc, _ := NewAPI(m).NewPeerConnection(nil, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = pc.SignalingState()
		_ = pc.ICEConnectionState()
		_ = pc.ConnectionState()
	}
}
