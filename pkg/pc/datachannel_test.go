package pc

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4/pkg/rtcerr"

	"github.com/thesyncim/webrtckit/internal/testutil"
	"github.com/thesyncim/webrtckit/pkg/bridge"
)

func newTestDataChannel(t *testing.T) (*DataChannel, *PeerConnection, *testutil.MockEngine) {
	t.Helper()
	pc, m := newTestPeerConnection(t)
	dc, err := pc.CreateDataChannel(context.Background(), "chat", nil)
	if err != nil {
		t.Fatalf("CreateDataChannel: %v", err)
	}
	return dc, pc, m
}

func TestPeerConnection_DataChannel_Creation(t *testing.T) {
	dc, pc, m := newTestDataChannel(t)

	if dc.Label() != "chat" {
		t.Errorf("label = %q", dc.Label())
	}
	if dc.ReadyState() != DataChannelStateConnecting {
		t.Errorf("state = %v, want connecting", dc.ReadyState())
	}
	if !dc.Ordered() {
		t.Error("default channel not ordered")
	}
	calls := m.CallsTo("CreateDataChannel")
	if len(calls) != 1 {
		t.Fatalf("CreateDataChannel calls = %d", len(calls))
	}
	if calls[0].Args[0] != pc.Tag() || calls[0].Args[1] != dc.tag {
		t.Errorf("call args = %v", calls[0].Args)
	}
	if dc.tag == pc.Tag() {
		t.Error("channel shares the peer connection tag")
	}
}

func TestPeerConnection_DataChannel_ConflictingOptions(t *testing.T) {
	pc, m := newTestPeerConnection(t)
	lifetime, retransmits := uint16(500), uint16(3)

	_, err := pc.CreateDataChannel(context.Background(), "bad", &DataChannelInit{
		MaxPacketLifeTime: &lifetime,
		MaxRetransmits:    &retransmits,
	})
	var te *rtcerr.TypeError
	if !errors.As(err, &te) || !errors.Is(te.Err, ErrConflictingReliability) {
		t.Fatalf("error = %v, want TypeError", err)
	}
	if n := m.CallCount("CreateDataChannel"); n != 0 {
		t.Errorf("engine called %d times", n)
	}
}

func TestPeerConnection_DataChannel_WithOptions(t *testing.T) {
	pc, m := newTestPeerConnection(t)
	ordered := false
	retransmits := uint16(2)

	dc, err := pc.CreateDataChannel(context.Background(), "lossy", &DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &retransmits,
		Protocol:       "json",
	})
	if err != nil {
		t.Fatalf("CreateDataChannel: %v", err)
	}
	wire := m.CallsTo("CreateDataChannel")[0].Args[3].(bridge.DataChannelInit)
	if wire.Ordered == nil || *wire.Ordered || wire.MaxRetransmits == nil || *wire.MaxRetransmits != 2 {
		t.Errorf("wire init = %+v", wire)
	}
	if dc.Ordered() || dc.Protocol() != "json" {
		t.Errorf("ordered = %v protocol = %q", dc.Ordered(), dc.Protocol())
	}
}

func TestPeerConnection_DataChannel_EngineFailure(t *testing.T) {
	pc, m := newTestPeerConnection(t)
	m.SetError("CreateDataChannel", bridge.Errorf(bridge.CodeOperation, "sctp not ready"))

	if _, err := pc.CreateDataChannel(context.Background(), "x", nil); err == nil {
		t.Fatal("CreateDataChannel succeeded")
	}
	tag := m.CallsTo("CreateDataChannel")[0].Args[1].(bridge.Tag)
	if n := m.Events().Subscribers(tag); n != 0 {
		t.Errorf("failed channel left %d subscriptions", n)
	}
}

func TestDataChannel_StateOrdering(t *testing.T) {
	dc, _, m := newTestDataChannel(t)

	var seen []string
	dc.OnOpen(func() { seen = append(seen, "open") })
	dc.OnClosing(func() { seen = append(seen, "closing") })
	dc.OnClose(func() { seen = append(seen, "close") })

	for _, s := range []string{"open", "open", "connecting", "closing", "open", "closed", "closed", "bogus"} {
		m.Emit(&bridge.DataChannelStateChanged{Tag: dc.tag, State: s})
	}

	want := []string{"open", "closing", "close"}
	if len(seen) != len(want) {
		t.Fatalf("events = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("events = %v, want %v", seen, want)
		}
	}
	if dc.ReadyState() != DataChannelStateClosed {
		t.Errorf("state = %v, want closed", dc.ReadyState())
	}
	if n := m.Events().Subscribers(dc.tag); n != 0 {
		t.Errorf("subscriptions after close = %d", n)
	}
}

func TestDataChannel_OpenRaceWithReply(t *testing.T) {
	pc, m := newTestPeerConnection(t)
	m.SetResult("CreateDataChannel", bridge.DataChannelInfo{Tag: "ignored", Label: "fast", ReadyState: "open", Ordered: true})

	dc, err := pc.CreateDataChannel(context.Background(), "fast", nil)
	if err != nil {
		t.Fatalf("CreateDataChannel: %v", err)
	}
	if dc.ReadyState() != DataChannelStateOpen {
		t.Errorf("state = %v, want open", dc.ReadyState())
	}
	opened := 0
	dc.OnOpen(func() { opened++ })

	m.Emit(&bridge.DataChannelStateChanged{Tag: dc.tag, State: "connecting"})
	if dc.ReadyState() != DataChannelStateOpen {
		t.Errorf("state went backwards to %v", dc.ReadyState())
	}
	m.Emit(&bridge.DataChannelStateChanged{Tag: dc.tag, State: "open"})
	m.Emit(&bridge.DataChannelStateChanged{Tag: dc.tag, State: "open"})
	if opened != 1 {
		t.Errorf("open fired %d times, want 1", opened)
	}
}

func TestPeerConnection_RemoteDataChannelOpenDeferred(t *testing.T) {
	pc, m := newTestPeerConnection(t)

	opened := 0
	pc.OnDataChannel(func(dc *DataChannel) {
		dc.OnOpen(func() { opened++ })
	})
	m.Emit(&bridge.DataChannelCreated{Tag: pc.Tag(), Channel: bridge.DataChannelInfo{
		Tag: "dc-early", Label: "early", Ordered: true, ReadyState: "open",
	}})
	if opened != 0 {
		t.Fatalf("open fired %d times before the engine reported it", opened)
	}
	m.Emit(&bridge.DataChannelStateChanged{Tag: "dc-early", State: "open"})
	if opened != 1 {
		t.Errorf("open fired %d times, want 1", opened)
	}
}

func TestDataChannel_SendRequiresOpen(t *testing.T) {
	dc, _, m := newTestDataChannel(t)

	err := dc.Send(context.Background(), "too early")
	var ise *rtcerr.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("Send before open = %v, want InvalidStateError", err)
	}
	if n := m.CallCount("SendData"); n != 0 {
		t.Errorf("SendData calls = %d", n)
	}
}

func TestDataChannel_SendInvalidPayload(t *testing.T) {
	dc, _, m := newTestDataChannel(t)
	m.Emit(&bridge.DataChannelStateChanged{Tag: dc.tag, State: "open"})

	err := dc.Send(context.Background(), 42)
	var te *rtcerr.TypeError
	if !errors.As(err, &te) || !errors.Is(te.Err, ErrInvalidPayload) {
		t.Fatalf("Send(42) = %v, want TypeError", err)
	}
}

func TestDataChannel_EchoRoundTrip(t *testing.T) {
	dc, _, m := newTestDataChannel(t)
	m.OnSendData(func(channel bridge.Tag, buf bridge.DataBuffer) {
		m.Events().Publish(&bridge.DataChannelMessage{Tag: channel, DataBuffer: buf})
	})
	m.Emit(&bridge.DataChannelStateChanged{Tag: dc.tag, State: "open"})

	var got []*MessageEvent
	dc.OnMessage(func(msg *MessageEvent) { got = append(got, msg) })

	payload := []byte{0x00, 0xff, 0x10, 0x80, 'h', 'i'}
	ctx := context.Background()
	if err := dc.Send(ctx, payload); err != nil {
		t.Fatalf("Send binary: %v", err)
	}
	if err := dc.SendText(ctx, "héllo"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	m.Events().Sync()

	if len(got) != 2 {
		t.Fatalf("messages = %d, want 2", len(got))
	}
	if got[0].IsString || !bytes.Equal(got[0].Data, payload) {
		t.Errorf("binary echo = %+v", got[0])
	}
	if !got[1].IsString || got[1].Text() != "héllo" {
		t.Errorf("text echo = %+v", got[1])
	}

	buf := m.CallsTo("SendData")[0].Args[1].(bridge.DataBuffer)
	if !buf.Binary || buf.Data != "AP8QgGhp" {
		t.Errorf("wire buffer = %+v", buf)
	}
}

func TestDataChannel_MalformedMessageDropped(t *testing.T) {
	dc, _, m := newTestDataChannel(t)

	got := 0
	dc.OnMessage(func(*MessageEvent) { got++ })
	m.Emit(&bridge.DataChannelMessage{Tag: dc.tag, DataBuffer: bridge.DataBuffer{Data: "!!", Binary: true}})

	if got != 0 {
		t.Errorf("malformed message delivered")
	}
}

func TestDataChannel_BufferedAmountLow(t *testing.T) {
	dc, _, m := newTestDataChannel(t)
	dc.SetBufferedAmountLowThreshold(1024)

	low := 0
	dc.OnBufferedAmountLow(func() { low++ })

	for _, amount := range []uint64{4096, 2048, 1024, 0} {
		m.Emit(&bridge.DataChannelBufferedAmountChanged{Tag: dc.tag, Amount: amount})
	}
	if low != 2 {
		t.Errorf("bufferedamountlow fired %d times, want 2", low)
	}
	if dc.BufferedAmount() != 0 {
		t.Errorf("buffered amount = %d", dc.BufferedAmount())
	}
}

func TestDataChannel_Close(t *testing.T) {
	dc, _, m := newTestDataChannel(t)

	dc.Close()
	dc.Close()
	if n := m.CallCount("CloseDataChannel"); n != 1 {
		t.Errorf("CloseDataChannel calls = %d, want 1", n)
	}
	if dc.ReadyState() != DataChannelStateConnecting {
		t.Errorf("state changed before engine report: %v", dc.ReadyState())
	}

	m.Emit(&bridge.DataChannelStateChanged{Tag: dc.tag, State: "closed"})
	dc.Close()
	if n := m.CallCount("CloseDataChannel"); n != 1 {
		t.Errorf("Close after closed reached engine")
	}
}

func TestPeerConnection_RemoteDataChannel(t *testing.T) {
	pc, m := newTestPeerConnection(t)

	var remote *DataChannel
	pc.OnDataChannel(func(dc *DataChannel) { remote = dc })

	id := uint16(1)
	m.Emit(&bridge.DataChannelCreated{Tag: pc.Tag(), Channel: bridge.DataChannelInfo{
		Tag: "dc-remote", ID: &id, Label: "files", Ordered: true, ReadyState: "open",
	}})
	if remote == nil {
		t.Fatal("datachannel event not delivered")
	}
	if remote.Label() != "files" || remote.ReadyState() != DataChannelStateOpen {
		t.Errorf("remote channel = %q %v", remote.Label(), remote.ReadyState())
	}
	if remote.ID() == nil || *remote.ID() != 1 {
		t.Errorf("id = %v", remote.ID())
	}

	got := ""
	remote.OnMessage(func(msg *MessageEvent) { got = msg.Text() })
	m.Emit(&bridge.DataChannelMessage{Tag: "dc-remote", DataBuffer: bridge.TextBuffer("hi")})
	if got != "hi" {
		t.Errorf("message = %q", got)
	}
}
