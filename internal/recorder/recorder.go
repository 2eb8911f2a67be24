// Package recorder writes the outgoing stream to a raw .h264 file.
// Recording starts at the first IDR so the file is decodable from
// byte zero.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/daggintosh/ALVR/internal/h264"
	"github.com/daggintosh/ALVR/internal/logger"
	"github.com/daggintosh/ALVR/pkg/types"
)

// Recorder is a file sink for encoded frames.
type Recorder struct {
	mu           sync.RWMutex
	file         *os.File
	filename     string
	baseDir      string
	recording    bool
	waitingIDR   bool
	frameCount   uint64
	bytesWritten uint64
	startTime    time.Time

	params *h264.ParameterSets
}

// Status is a snapshot of the recorder state.
type Status struct {
	Recording    bool          `json:"recording"`
	Filename     string        `json:"filename"`
	FrameCount   uint64        `json:"frame_count"`
	BytesWritten uint64        `json:"bytes_written"`
	Duration     time.Duration `json:"duration_ms"`
	StartTime    time.Time     `json:"start_time"`
}

// New creates a recorder writing files under baseDir. params is the
// SPS/PPS cache maintained by the encode loop.
func New(baseDir string, params *h264.ParameterSets) *Recorder {
	return &Recorder{
		baseDir: baseDir,
		params:  params,
	}
}

// Start opens a new timestamped file. Frames are discarded until the
// first IDR arrives.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return fmt.Errorf("already recording to %s", r.filename)
	}

	filename := fmt.Sprintf("stream_%s.h264", time.Now().Format("20060102_150405"))
	path := filepath.Join(r.baseDir, filename)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create recording file: %w", err)
	}

	r.file = file
	r.filename = filename
	r.recording = true
	r.waitingIDR = true
	r.frameCount = 0
	r.bytesWritten = 0
	r.startTime = time.Now()

	logger.Info("Recorder", "Recording to %s", path)
	return nil
}

// Stop finalizes the current file.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return fmt.Errorf("not recording")
	}
	r.recording = false

	if r.file != nil {
		if err := r.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync recording: %w", err)
		}
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("failed to close recording: %w", err)
		}
		r.file = nil
	}

	logger.Info("Recorder", "Recording %s finished (%d frames, %d bytes)",
		r.filename, r.frameCount, r.bytesWritten)
	return nil
}

// WriteFrame appends a frame to the active recording. Returns true if
// the frame was written.
func (r *Recorder) WriteFrame(frame *types.VideoFrame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording || r.file == nil {
		return false
	}

	data := frame.Data
	if r.waitingIDR {
		if !frame.IsIDR {
			return false
		}
		// First written frame: make sure headers precede the IDR even
		// if the compositor only sent them at stream start.
		data = r.params.PrependTo(data)
		r.waitingIDR = false
	}

	n, err := r.file.Write(data)
	if err != nil {
		logger.Error("Recorder", "Write failed: %v", err)
		return false
	}

	r.bytesWritten += uint64(n)
	r.frameCount++
	return true
}

// IsRecording reports whether a recording is active.
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// GetStatus returns the current recorder snapshot.
func (r *Recorder) GetStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var duration time.Duration
	if r.recording {
		duration = time.Since(r.startTime)
	}
	return Status{
		Recording:    r.recording,
		Filename:     r.filename,
		FrameCount:   r.frameCount,
		BytesWritten: r.bytesWritten,
		Duration:     duration,
		StartTime:    r.startTime,
	}
}

// Close stops any active recording.
func (r *Recorder) Close() error {
	if r.IsRecording() {
		return r.Stop()
	}
	return nil
}
