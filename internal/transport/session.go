package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/daggintosh/ALVR/pkg/types"
)

// Session is one connected viewer.
type Session struct {
	id         string
	peerConn   *webrtc.PeerConnection
	videoTrack *webrtc.TrackLocalStaticSample
	frameChan  chan *types.VideoFrame
	closeChan  chan struct{}
	closeOnce  sync.Once

	// A session receives nothing until the first IDR after it joined,
	// so its decoder never sees a frame it cannot decode.
	awaitingIDR atomic.Bool

	framesSent    atomic.Uint64
	framesDropped atomic.Uint64
	joinedAt      time.Time
}

// wantsFrame decides whether the session should receive this frame.
func (s *Session) wantsFrame(frame *types.VideoFrame) bool {
	if !s.awaitingIDR.Load() {
		return true
	}
	if !frame.IsIDR {
		return false
	}
	s.awaitingIDR.Store(false)
	return true
}

// Stats is a snapshot of a session's delivery counters.
type Stats struct {
	ID            string    `json:"id"`
	FramesSent    uint64    `json:"frames_sent"`
	FramesDropped uint64    `json:"frames_dropped"`
	AwaitingIDR   bool      `json:"awaiting_idr"`
	JoinedAt      time.Time `json:"joined_at"`
}

func (s *Session) stats() Stats {
	return Stats{
		ID:            s.id,
		FramesSent:    s.framesSent.Load(),
		FramesDropped: s.framesDropped.Load(),
		AwaitingIDR:   s.awaitingIDR.Load(),
		JoinedAt:      s.joinedAt,
	}
}
