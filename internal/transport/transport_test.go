package transport

import (
	"testing"
	"time"

	"github.com/daggintosh/ALVR/pkg/types"
)

func TestFeedbackFilterDebounces(t *testing.T) {
	f := newFeedbackFilter(2 * time.Second)
	base := time.Unix(1000, 0)

	if !f.allow(base) {
		t.Fatal("first report should pass")
	}
	if f.allow(base.Add(500 * time.Millisecond)) {
		t.Fatal("report inside the window passed")
	}
	if f.allow(base.Add(1900 * time.Millisecond)) {
		t.Fatal("report at window edge passed")
	}
	if !f.allow(base.Add(2100 * time.Millisecond)) {
		t.Fatal("report after the window should pass")
	}
	if f.allow(base.Add(2200 * time.Millisecond)) {
		t.Fatal("window did not restart after a pass")
	}
}

func TestSessionWaitsForIDR(t *testing.T) {
	sess := &Session{}
	sess.awaitingIDR.Store(true)

	p := &types.VideoFrame{FrameNum: 1}
	if sess.wantsFrame(p) {
		t.Fatal("session accepted a non-IDR frame before its first IDR")
	}

	idr := &types.VideoFrame{FrameNum: 2, IsIDR: true}
	if !sess.wantsFrame(idr) {
		t.Fatal("session rejected its first IDR")
	}

	// After the first IDR everything flows.
	if !sess.wantsFrame(&types.VideoFrame{FrameNum: 3}) {
		t.Fatal("session rejected a frame after its first IDR")
	}
}

func TestSessionStatsSnapshot(t *testing.T) {
	sess := &Session{id: "abc", joinedAt: time.Unix(2000, 0)}
	sess.awaitingIDR.Store(true)
	sess.framesSent.Store(7)
	sess.framesDropped.Store(3)

	got := sess.stats()
	if got.ID != "abc" || got.FramesSent != 7 || got.FramesDropped != 3 || !got.AwaitingIDR {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}
