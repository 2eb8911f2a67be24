package recorder

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/daggintosh/ALVR/internal/h264"
	"github.com/daggintosh/ALVR/pkg/types"
)

func nalUnit(nalType uint8, payload ...byte) []byte {
	out := []byte{0x00, 0x00, 0x00, 0x01, 0x60 | nalType}
	return append(out, payload...)
}

func seededParams(t *testing.T) *h264.ParameterSets {
	t.Helper()
	ps := &h264.ParameterSets{}
	ps.Scan(append(nalUnit(types.NALTypeSPS, 0x64), nalUnit(types.NALTypePPS, 0xEE)...))
	if !ps.Complete() {
		t.Fatal("parameter sets not seeded")
	}
	return ps
}

func recordedFile(t *testing.T, dir string, r *Recorder) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, r.GetStatus().Filename))
	if err != nil {
		t.Fatalf("reading recording: %v", err)
	}
	return data
}

func TestRecorderWaitsForIDR(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, seededParams(t))

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	p := &types.VideoFrame{Data: nalUnit(types.NALTypeSlice, 0x01), FrameNum: 1}
	if r.WriteFrame(p) {
		t.Fatal("non-IDR frame written before first IDR")
	}

	idrData := nalUnit(types.NALTypeIDR, 0x02)
	idr := &types.VideoFrame{Data: idrData, FrameNum: 2, IsIDR: true}
	if !r.WriteFrame(idr) {
		t.Fatal("IDR frame rejected")
	}

	// Later P-frames flow through.
	p2 := &types.VideoFrame{Data: nalUnit(types.NALTypeSlice, 0x03), FrameNum: 3}
	if !r.WriteFrame(p2) {
		t.Fatal("frame after first IDR rejected")
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got := recordedFile(t, dir, r)

	// File must start with the cached SPS.
	sps := nalUnit(types.NALTypeSPS, 0x64)
	if !bytes.HasPrefix(got, sps) {
		t.Fatal("recording does not start with SPS")
	}
	if !bytes.Contains(got, idrData) || !bytes.Contains(got, p2.Data) {
		t.Fatal("recorded frames missing")
	}
}

func TestRecorderStatusCounters(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, seededParams(t))

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.WriteFrame(&types.VideoFrame{Data: nalUnit(types.NALTypeIDR, 0x01), IsIDR: true})
	r.WriteFrame(&types.VideoFrame{Data: nalUnit(types.NALTypeSlice, 0x02)})

	st := r.GetStatus()
	if !st.Recording {
		t.Fatal("status not recording")
	}
	if st.FrameCount != 2 {
		t.Fatalf("frame count = %d, want 2", st.FrameCount)
	}
	if st.BytesWritten == 0 {
		t.Fatal("bytes written not counted")
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if r.IsRecording() {
		t.Fatal("still recording after Stop")
	}
}

func TestRecorderDoubleStart(t *testing.T) {
	r := New(t.TempDir(), seededParams(t))
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	if err := r.Start(); err == nil {
		t.Fatal("second Start should fail")
	}
}

func TestRecorderStopWithoutStart(t *testing.T) {
	r := New(t.TempDir(), seededParams(t))
	if err := r.Stop(); err == nil {
		t.Fatal("Stop without Start should fail")
	}
}

func TestRecorderIgnoresFramesWhenStopped(t *testing.T) {
	r := New(t.TempDir(), seededParams(t))
	if r.WriteFrame(&types.VideoFrame{Data: nalUnit(types.NALTypeIDR, 0x01), IsIDR: true}) {
		t.Fatal("frame accepted while not recording")
	}
}
