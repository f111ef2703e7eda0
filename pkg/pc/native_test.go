package pc

import (
	"context"
	"testing"
	"time"

	"github.com/thesyncim/webrtckit/internal/testutil"
	"github.com/thesyncim/webrtckit/pkg/bridge"
)

func TestNativeEngineOfferAndClose(t *testing.T) {
	testutil.RequireBridge(t)

	engine, err := bridge.OpenNative("", nil)
	if err != nil {
		t.Fatalf("OpenNative: %v", err)
	}
	defer engine.Close()

	api := NewAPI(engine)
	pc, err := api.NewPeerConnection(nil, nil)
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pc.CreateDataChannel(ctx, "native", nil); err != nil {
		t.Fatalf("CreateDataChannel: %v", err)
	}
	offer, err := pc.CreateOffer(ctx, nil)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if offer.Type != SDPTypeOffer || offer.SDP == "" {
		t.Errorf("offer = %+v", offer)
	}

	closed := make(chan struct{})
	pc.OnConnectionStateChange(func(s PeerConnectionState) {
		if s == PeerConnectionStateClosed {
			close(closed)
		}
	})
	if err := pc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-closed:
	case <-ctx.Done():
		t.Fatal("engine never reported closed")
	}
}
