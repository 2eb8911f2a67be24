// Package tracking keeps a short history of head poses so the encode
// path can recover the pose a frame was rendered against, either by
// its target timestamp or by matching the submitted view matrix.
package tracking

import (
	"sync"

	"github.com/daggintosh/ALVR/pkg/types"
)

// historyCapacity must cover the client's in-flight tracking frames:
// three seconds at 120Hz.
const historyCapacity = 120 * 3

// HistoryFrame is one recorded pose with its derived rotation.
type HistoryFrame struct {
	TargetTimestamp uint64 // nanoseconds
	Pose            types.Pose
	Rotation        types.Mat3
}

// History is a bounded pose buffer. Safe for concurrent use.
type History struct {
	mu                sync.Mutex
	frames            []HistoryFrame
	transform         types.Mat3
	transformIdentity bool
}

// NewHistory creates an empty pose history with an identity world
// transform.
func NewHistory() *History {
	return &History{
		frames:            make([]HistoryFrame, 0, historyCapacity),
		transform:         types.Identity3(),
		transformIdentity: true,
	}
}

// OnPoseUpdated records a pose for targetTimestamp. Consecutive
// updates for the same target timestamp are deduplicated; the oldest
// entry is evicted once the buffer is full.
func (h *History) OnPoseUpdated(targetTimestamp uint64, pose types.Pose) {
	frame := HistoryFrame{
		TargetTimestamp: targetTimestamp,
		Pose:            pose,
		Rotation:        pose.Orientation.RotationMatrix(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.transformIdentity {
		frame.Rotation = h.transform.Mul(frame.Rotation)
	}

	if n := len(h.frames); n > 0 && h.frames[n-1].TargetTimestamp == targetTimestamp {
		return
	}

	h.frames = append(h.frames, frame)
	if len(h.frames) > historyCapacity {
		h.frames = h.frames[1:]
	}
}

// PoseAt returns the recorded frame for an exact target timestamp,
// searching newest first.
func (h *History) PoseAt(targetTimestamp uint64) (HistoryFrame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.frames) - 1; i >= 0; i-- {
		if h.frames[i].TargetTimestamp == targetTimestamp {
			return h.frames[i], true
		}
	}
	return HistoryFrame{}, false
}

// BestPoseMatch returns the recorded frame whose rotation is closest
// to the given matrix by squared element-wise distance over the 3x3
// block.
func (h *History) BestPoseMatch(rotation types.Mat3) (HistoryFrame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.frames) == 0 {
		return HistoryFrame{}, false
	}

	best := 0
	bestDist := rotationDistance(h.frames[0].Rotation, rotation)
	for i := 1; i < len(h.frames); i++ {
		if d := rotationDistance(h.frames[i].Rotation, rotation); d < bestDist {
			best, bestDist = i, d
		}
	}
	return h.frames[best], true
}

// SetTransform installs a world transform applied to the rotation of
// every subsequently recorded pose.
func (h *History) SetTransform(transform types.Mat3) {
	h.mu.Lock()
	h.transform = transform
	h.transformIdentity = transform.IsIdentity()
	h.mu.Unlock()
}

// Len returns the number of recorded frames.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

func rotationDistance(a, b types.Mat3) float64 {
	var d float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			diff := a[i][j] - b[i][j]
			d += diff * diff
		}
	}
	return d
}
