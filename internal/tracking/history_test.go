package tracking

import (
	"math"
	"testing"

	"github.com/daggintosh/ALVR/pkg/types"
)

func yawQuat(radians float64) types.Quaternion {
	return types.Quaternion{
		W: math.Cos(radians / 2),
		Y: math.Sin(radians / 2),
	}
}

func TestPoseAtExactTimestamp(t *testing.T) {
	h := NewHistory()

	for i := uint64(1); i <= 5; i++ {
		h.OnPoseUpdated(i*1000, types.Pose{
			Orientation: yawQuat(float64(i) * 0.1),
			Position:    types.Vec3{X: float64(i)},
		})
	}

	frame, ok := h.PoseAt(3000)
	if !ok {
		t.Fatal("recorded timestamp not found")
	}
	if frame.Pose.Position.X != 3 {
		t.Fatalf("wrong frame returned: position.X = %v", frame.Pose.Position.X)
	}

	if _, ok := h.PoseAt(9999); ok {
		t.Fatal("lookup of unknown timestamp succeeded")
	}
}

func TestDuplicateTimestampsDeduplicated(t *testing.T) {
	h := NewHistory()

	h.OnPoseUpdated(1000, types.Pose{Orientation: yawQuat(0.1)})
	h.OnPoseUpdated(1000, types.Pose{Orientation: yawQuat(0.2)})

	if h.Len() != 1 {
		t.Fatalf("duplicate timestamp stored: len = %d", h.Len())
	}
}

func TestHistoryBounded(t *testing.T) {
	h := NewHistory()

	total := historyCapacity + 50
	for i := 0; i < total; i++ {
		h.OnPoseUpdated(uint64(i+1), types.Pose{Orientation: yawQuat(0)})
	}

	if h.Len() != historyCapacity {
		t.Fatalf("history not bounded: len = %d, cap = %d", h.Len(), historyCapacity)
	}

	// Oldest entries are the ones evicted.
	if _, ok := h.PoseAt(1); ok {
		t.Fatal("oldest entry survived eviction")
	}
	if _, ok := h.PoseAt(uint64(total)); !ok {
		t.Fatal("newest entry missing")
	}
}

func TestBestPoseMatch(t *testing.T) {
	h := NewHistory()

	angles := []float64{0, 0.5, 1.0, 1.5}
	for i, a := range angles {
		h.OnPoseUpdated(uint64(i+1)*1000, types.Pose{Orientation: yawQuat(a)})
	}

	// Probe with a rotation slightly off the second entry.
	probe := yawQuat(0.52).RotationMatrix()
	frame, ok := h.BestPoseMatch(probe)
	if !ok {
		t.Fatal("no match returned from populated history")
	}
	if frame.TargetTimestamp != 2000 {
		t.Fatalf("matched timestamp %d, want 2000", frame.TargetTimestamp)
	}
}

func TestBestPoseMatchEmpty(t *testing.T) {
	h := NewHistory()
	if _, ok := h.BestPoseMatch(types.Identity3()); ok {
		t.Fatal("match reported from empty history")
	}
}

func TestWorldTransformAppliedOnInsert(t *testing.T) {
	h := NewHistory()

	// Recenter by a quarter turn about Y.
	recenter := yawQuat(math.Pi / 2).RotationMatrix()
	h.SetTransform(recenter)

	h.OnPoseUpdated(1000, types.Pose{Orientation: yawQuat(0)})

	frame, ok := h.PoseAt(1000)
	if !ok {
		t.Fatal("recorded pose not found")
	}

	want := recenter.Mul(yawQuat(0).RotationMatrix())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(frame.Rotation[i][j]-want[i][j]) > 1e-9 {
				t.Fatalf("rotation[%d][%d] = %v, want %v", i, j, frame.Rotation[i][j], want[i][j])
			}
		}
	}
}

func TestIdentityTransformSkipsMultiply(t *testing.T) {
	h := NewHistory()
	h.SetTransform(types.Identity3())

	q := yawQuat(0.7)
	h.OnPoseUpdated(1000, types.Pose{Orientation: q})

	frame, _ := h.PoseAt(1000)
	want := q.RotationMatrix()
	if frame.Rotation != want {
		t.Fatal("identity transform altered the stored rotation")
	}
}
