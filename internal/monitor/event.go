// Package monitor exposes the server's live state to the dashboard:
// a status feed in JSON or protobuf wire format, and an MJPEG preview
// of the outgoing stream.
package monitor

import (
	"time"

	"github.com/daggintosh/ALVR/internal/metrics"
	"github.com/daggintosh/ALVR/internal/recorder"
	"github.com/daggintosh/ALVR/internal/transport"
)

// StatusEvent is one snapshot of the streaming pipeline.
type StatusEvent struct {
	UnixMs           int64             `json:"unix_ms"`
	FramesIngested   uint64            `json:"frames_ingested"`
	FramesForwarded  uint64            `json:"frames_forwarded"`
	FramesDropped    uint64            `json:"frames_dropped"`
	IDRRequests      uint64            `json:"idr_requests"`
	IDRGrants        uint64            `json:"idr_grants"`
	ActiveSessions   uint64            `json:"active_sessions"`
	KeyframeFeedback uint64            `json:"keyframe_feedback"`
	Recording        bool              `json:"recording"`
	RecordingBytes   uint64            `json:"recording_bytes"`
	RecordingFrames  uint64            `json:"recording_frames"`
	Sessions         []transport.Stats `json:"sessions,omitempty"`
}

// Snapshot assembles a StatusEvent from the live components.
func Snapshot(m *metrics.Metrics, sessions []transport.Stats, rec recorder.Status) StatusEvent {
	ev := StatusEvent{
		UnixMs:           time.Now().UnixMilli(),
		FramesIngested:   m.FramesIngested.Load(),
		FramesForwarded:  m.FramesForwarded.Load(),
		FramesDropped:    m.FramesDropped.Load(),
		IDRRequests:      m.IDRRequests.Load(),
		IDRGrants:        m.IDRGrants.Load(),
		ActiveSessions:   m.ActiveSessions.Load(),
		KeyframeFeedback: m.KeyframeFeedback.Load(),
		Recording:        rec.Recording,
		RecordingBytes:   rec.BytesWritten,
		RecordingFrames:  rec.FrameCount,
		Sessions:         sessions,
	}
	return ev
}
