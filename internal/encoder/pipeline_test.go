package encoder

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/daggintosh/ALVR/internal/idr"
	"github.com/daggintosh/ALVR/internal/metrics"
	"github.com/daggintosh/ALVR/pkg/types"
)

// scriptedSource feeds predetermined frames and records force-IDR
// commands.
type scriptedSource struct {
	frames    chan *types.VideoFrame
	forceIDRs atomic.Uint64
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{frames: make(chan *types.VideoFrame, 64)}
}

func (s *scriptedSource) Start(context.Context) error      { return nil }
func (s *scriptedSource) Frames() <-chan *types.VideoFrame { return s.frames }
func (s *scriptedSource) ForceIDR()                        { s.forceIDRs.Add(1) }
func (s *scriptedSource) Close() error                     { return nil }

func nalUnit(nalType uint8, payload ...byte) []byte {
	out := []byte{0x00, 0x00, 0x00, 0x01, 0x60 | nalType}
	return append(out, payload...)
}

func plainFrame(n uint64) *types.VideoFrame {
	return &types.VideoFrame{
		Data:       nalUnit(types.NALTypeSlice, 0x11),
		ReceivedAt: time.Now(),
		FrameNum:   n,
	}
}

func idrFrame(n uint64) *types.VideoFrame {
	data := append(nalUnit(types.NALTypeSPS, 0x64), nalUnit(types.NALTypePPS, 0xEE)...)
	data = append(data, nalUnit(types.NALTypeIDR, 0x22)...)
	return &types.VideoFrame{Data: data, ReceivedAt: time.Now(), FrameNum: n}
}

func runPipeline(t *testing.T, p *Pipeline, src *scriptedSource, frames ...*types.VideoFrame) {
	t.Helper()
	for _, f := range frames {
		src.frames <- f
	}
	close(src.frames)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not drain")
	}
}

func TestKeyframeRequestForwardedUpstream(t *testing.T) {
	src := newScriptedSource()
	p := New(src, idr.NewScheduler(0), metrics.New())
	p.OnStreamStart()

	out := make(chan *types.VideoFrame, 16)
	p.AttachSink("test", out)

	p.RequestKeyframe()
	runPipeline(t, p, src, plainFrame(1), plainFrame(2))

	if got := src.forceIDRs.Load(); got != 1 {
		t.Fatalf("force-IDR commands sent upstream = %d, want 1", got)
	}
}

func TestNoRequestNoForce(t *testing.T) {
	src := newScriptedSource()
	p := New(src, idr.NewScheduler(0), metrics.New())
	p.OnStreamStart()

	runPipeline(t, p, src, plainFrame(1), plainFrame(2), plainFrame(3))

	if got := src.forceIDRs.Load(); got != 0 {
		t.Fatalf("unsolicited force-IDR commands: %d", got)
	}
}

func TestRequestsCoalesceAcrossFrames(t *testing.T) {
	src := newScriptedSource()
	p := New(src, idr.NewScheduler(time.Hour), metrics.New())
	p.OnStreamStart()

	for i := 0; i < 5; i++ {
		p.RequestKeyframe()
	}
	runPipeline(t, p, src, plainFrame(1), plainFrame(2), plainFrame(3))

	// One grant for the burst; the hour-long interval blocks any more.
	if got := src.forceIDRs.Load(); got != 1 {
		t.Fatalf("force-IDR commands = %d, want 1", got)
	}
}

func TestIDRStampedFromBitstream(t *testing.T) {
	src := newScriptedSource()
	p := New(src, idr.NewScheduler(0), metrics.New())
	p.OnStreamStart()

	out := make(chan *types.VideoFrame, 16)
	p.AttachSink("test", out)

	runPipeline(t, p, src, plainFrame(1), idrFrame(2))

	f1, f2 := <-out, <-out
	if f1.IsIDR {
		t.Error("plain slice stamped as IDR")
	}
	if !f2.IsIDR {
		t.Error("IDR access unit not stamped")
	}
	if !p.ParameterSets().Complete() {
		t.Error("SPS/PPS not cached from the stream")
	}
}

func TestFullSinkDropsWithoutBlocking(t *testing.T) {
	src := newScriptedSource()
	m := metrics.New()
	p := New(src, idr.NewScheduler(0), m)
	p.OnStreamStart()

	out := make(chan *types.VideoFrame, 1)
	p.AttachSink("slow", out)

	runPipeline(t, p, src, plainFrame(1), plainFrame(2), plainFrame(3))

	if got := m.FramesDropped.Load(); got != 2 {
		t.Fatalf("dropped frames = %d, want 2", got)
	}
	if got := m.FramesForwarded.Load(); got != 3 {
		t.Fatalf("forwarded count = %d, want 3", got)
	}
}

func TestRequestMetric(t *testing.T) {
	src := newScriptedSource()
	m := metrics.New()
	p := New(src, idr.NewScheduler(0), m)

	p.RequestKeyframe()
	p.RequestKeyframe()
	if got := m.IDRRequests.Load(); got != 2 {
		t.Fatalf("request counter = %d, want 2", got)
	}
}
