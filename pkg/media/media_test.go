package media

import (
	"context"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4/pkg/rtcerr"

	"github.com/thesyncim/webrtckit/internal/testutil"
	"github.com/thesyncim/webrtckit/pkg/bridge"
	"github.com/thesyncim/webrtckit/pkg/pc"
)

func TestIntConstraintValue(t *testing.T) {
	tests := []struct {
		name string
		c    IntConstraint
		want int
		ok   bool
	}{
		{"empty", IntConstraint{}, 0, false},
		{"exact", ExactInt(640), 640, true},
		{"ideal", IdealInt(480), 480, true},
		{"range", RangeInt(100, 200), 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.c.Value()
			if got != tt.want || ok != tt.ok {
				t.Errorf("Value() = %v, %v, want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestConstraintsDefaults(t *testing.T) {
	wire, err := DefaultConstraints().toBridge()
	if err != nil {
		t.Fatalf("toBridge: %v", err)
	}
	if !wire.Audio || wire.Video == nil {
		t.Fatalf("wire = %+v", wire)
	}
	v := wire.Video
	if v.Width != 1280 || v.Height != 720 || v.FrameRate != 30 || v.FacingMode != "user" {
		t.Errorf("video = %+v", v)
	}
}

func TestConstraintsResolve(t *testing.T) {
	c := Constraints{Video: &VideoConstraints{
		Width:      ExactInt(640),
		Height:     RangeInt(360, 480),
		FrameRate:  FloatConstraint{Max: ptr(15.0)},
		FacingMode: FacingModeEnvironment,
	}}
	wire, err := c.toBridge()
	if err != nil {
		t.Fatalf("toBridge: %v", err)
	}
	if wire.Audio {
		t.Error("audio requested")
	}
	v := wire.Video
	if v.Width != 640 || v.Height != 360 || v.FrameRate != 15 || v.FacingMode != "environment" {
		t.Errorf("video = %+v", v)
	}
}

func TestConstraintsInvalid(t *testing.T) {
	tests := []struct {
		name string
		c    Constraints
	}{
		{"nothing", Constraints{}},
		{"facing", Constraints{Video: &VideoConstraints{FacingMode: "up"}}},
		{"conflict", Constraints{Video: &VideoConstraints{Width: IntConstraint{Exact: ptr(100), Min: ptr(200)}}}},
		{"zero", Constraints{Video: &VideoConstraints{FrameRate: ExactFloat(0)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.c.toBridge(); err == nil {
				t.Error("toBridge succeeded")
			}
		})
	}
}

func TestGetUserMedia(t *testing.T) {
	m := testutil.NewMockEngine(t)
	api := pc.NewAPI(m)

	stream, err := GetUserMedia(context.Background(), api, DefaultConstraints())
	if err != nil {
		t.Fatalf("GetUserMedia: %v", err)
	}
	if stream.ID != "local" {
		t.Errorf("stream id = %q", stream.ID)
	}
	if len(stream.AudioTracks()) != 1 || len(stream.VideoTracks()) != 1 {
		t.Fatalf("tracks = %d audio %d video", len(stream.AudioTracks()), len(stream.VideoTracks()))
	}
	for _, tr := range stream.Tracks {
		if tr.ReadyState() != pc.TrackStateLive || !tr.Enabled() || tr.Remote() {
			t.Errorf("track %s: state %v enabled %v remote %v", tr.ID(), tr.ReadyState(), tr.Enabled(), tr.Remote())
		}
	}

	wire := m.CallsTo("GetUserMedia")[0].Args[0].(bridge.MediaStreamConstraints)
	if wire.Video == nil || wire.Video.Width != DefaultWidth {
		t.Errorf("wire constraints = %+v", wire)
	}

	StopUserMedia(api)
	if n := m.CallCount("StopUserMedia"); n != 1 {
		t.Errorf("StopUserMedia calls = %d", n)
	}
}

func TestGetUserMediaErrors(t *testing.T) {
	m := testutil.NewMockEngine(t)
	api := pc.NewAPI(m)
	ctx := context.Background()

	_, err := GetUserMedia(ctx, api, Constraints{})
	var te *rtcerr.TypeError
	if !errors.As(err, &te) {
		t.Errorf("empty constraints = %v, want TypeError", err)
	}

	_, err = GetUserMedia(ctx, api, Constraints{Video: &VideoConstraints{Width: ExactInt(-1)}})
	var oe *OverconstrainedError
	if !errors.As(err, &oe) || oe.Constraint != "width" {
		t.Errorf("negative width = %v", err)
	}
	if n := m.CallCount("GetUserMedia"); n != 0 {
		t.Errorf("engine called %d times", n)
	}

	m.SetError("GetUserMedia", bridge.Errorf(bridge.CodeNotFound, "no camera"))
	_, err = GetUserMedia(ctx, api, DefaultConstraints())
	var op *rtcerr.OperationError
	if !errors.As(err, &op) {
		t.Errorf("engine failure = %v", err)
	}

	m.SetError("GetUserMedia", nil)
	m.SetResult("GetUserMedia", bridge.MediaStreamInfo{StreamID: "empty"})
	if _, err := GetUserMedia(ctx, api, DefaultConstraints()); !errors.As(err, &op) {
		t.Errorf("empty stream = %v", err)
	}
}

func ptr[T any](v T) *T { return &v }
