package monitor

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Protobuf wire framing for StatusEvent, hand-encoded with protowire.
// Field numbers are part of the dashboard contract:
//
//	1  unix_ms           int64 (varint)
//	2  frames_ingested   uint64
//	3  frames_forwarded  uint64
//	4  frames_dropped    uint64
//	5  idr_requests      uint64
//	6  idr_grants        uint64
//	7  active_sessions   uint64
//	8  keyframe_feedback uint64
//	9  recording         bool
//	10 recording_bytes   uint64
//	11 recording_frames  uint64
//
// Per-session detail stays JSON-only; the binary feed is the compact
// high-rate path.
const (
	fieldUnixMs           = 1
	fieldFramesIngested   = 2
	fieldFramesForwarded  = 3
	fieldFramesDropped    = 4
	fieldIDRRequests      = 5
	fieldIDRGrants        = 6
	fieldActiveSessions   = 7
	fieldKeyframeFeedback = 8
	fieldRecording        = 9
	fieldRecordingBytes   = 10
	fieldRecordingFrames  = 11
)

// MarshalWire encodes the event as a protobuf message.
func MarshalWire(ev StatusEvent) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldUnixMs, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(ev.UnixMs))

	uints := []struct {
		field protowire.Number
		value uint64
	}{
		{fieldFramesIngested, ev.FramesIngested},
		{fieldFramesForwarded, ev.FramesForwarded},
		{fieldFramesDropped, ev.FramesDropped},
		{fieldIDRRequests, ev.IDRRequests},
		{fieldIDRGrants, ev.IDRGrants},
		{fieldActiveSessions, ev.ActiveSessions},
		{fieldKeyframeFeedback, ev.KeyframeFeedback},
	}
	for _, u := range uints {
		b = protowire.AppendTag(b, u.field, protowire.VarintType)
		b = protowire.AppendVarint(b, u.value)
	}

	b = protowire.AppendTag(b, fieldRecording, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(ev.Recording))
	b = protowire.AppendTag(b, fieldRecordingBytes, protowire.VarintType)
	b = protowire.AppendVarint(b, ev.RecordingBytes)
	b = protowire.AppendTag(b, fieldRecordingFrames, protowire.VarintType)
	b = protowire.AppendVarint(b, ev.RecordingFrames)
	return b
}

// UnmarshalWire decodes a MarshalWire message. Unknown fields are
// skipped so the dashboard and server can evolve independently.
func UnmarshalWire(data []byte) (StatusEvent, error) {
	var ev StatusEvent
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return ev, fmt.Errorf("bad status event tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return ev, fmt.Errorf("bad status event field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return ev, fmt.Errorf("bad status event varint: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldUnixMs:
			ev.UnixMs = int64(v)
		case fieldFramesIngested:
			ev.FramesIngested = v
		case fieldFramesForwarded:
			ev.FramesForwarded = v
		case fieldFramesDropped:
			ev.FramesDropped = v
		case fieldIDRRequests:
			ev.IDRRequests = v
		case fieldIDRGrants:
			ev.IDRGrants = v
		case fieldActiveSessions:
			ev.ActiveSessions = v
		case fieldKeyframeFeedback:
			ev.KeyframeFeedback = v
		case fieldRecording:
			ev.Recording = protowire.DecodeBool(v)
		case fieldRecordingBytes:
			ev.RecordingBytes = v
		case fieldRecordingFrames:
			ev.RecordingFrames = v
		}
	}
	return ev, nil
}
