package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	"github.com/daggintosh/ALVR/internal/logger"
	"github.com/daggintosh/ALVR/pkg/types"
)

const (
	previewWidth  = 320
	previewHeight = 180
)

// TestPatternSource synthesizes Annex B access units at the display
// refresh rate. It stands in for the compositor during loopback runs
// and in tests; force-IDR commands take effect on the next frame.
type TestPatternSource struct {
	width     int
	height    int
	interval  time.Duration
	gopFrames uint64

	frames   chan *types.VideoFrame
	forced   atomic.Bool
	frameNum atomic.Uint64

	previewMu sync.RWMutex
	preview   []byte
}

// NewTestPatternSource creates a synthetic source producing frames of
// the given size at the given refresh rate. A keyframe is emitted
// every gopFrames frames in addition to forced ones; gopFrames <= 0
// disables periodic keyframes.
func NewTestPatternSource(width, height, refreshRate int, gopFrames int) *TestPatternSource {
	if refreshRate <= 0 {
		refreshRate = 60
	}
	s := &TestPatternSource{
		width:    width,
		height:   height,
		interval: time.Second / time.Duration(refreshRate),
		frames:   make(chan *types.VideoFrame, 30),
	}
	if gopFrames > 0 {
		s.gopFrames = uint64(gopFrames)
	}
	return s
}

// Start launches the generator loop.
func (s *TestPatternSource) Start(ctx context.Context) error {
	logger.Info("Capture", "Test pattern source: %dx%d every %v", s.width, s.height, s.interval)
	go s.run(ctx)
	return nil
}

func (s *TestPatternSource) run(ctx context.Context) {
	defer close(s.frames)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Roughly one preview per second.
	previewEvery := uint64(time.Second / s.interval)
	if previewEvery == 0 {
		previewEvery = 1
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.frameNum.Add(1)

			isIDR := s.forced.Swap(false)
			if !isIDR && s.gopFrames > 0 && (n-1)%s.gopFrames == 0 {
				isIDR = true
			}

			frame := &types.VideoFrame{
				Data:            s.accessUnit(n, isIDR),
				ReceivedAt:      time.Now(),
				TargetTimestamp: uint64(time.Now().UnixNano()),
				FrameNum:        n,
				IsIDR:           isIDR,
				Width:           s.width,
				Height:          s.height,
			}

			select {
			case s.frames <- frame:
			default:
			}

			if n%previewEvery == 1 {
				s.renderPreview(n)
			}
		}
	}
}

// accessUnit builds a synthetic Annex B unit. The payloads carry a
// moving byte pattern so downstream parsing has realistic input; they
// are not decodable video.
func (s *TestPatternSource) accessUnit(frameNum uint64, idr bool) []byte {
	var buf bytes.Buffer

	writeNALU := func(nalType uint8, payload []byte) {
		buf.Write([]byte{0x00, 0x00, 0x00, 0x01})
		buf.WriteByte(0x60 | nalType)
		buf.Write(payload)
	}

	if idr {
		writeNALU(types.NALTypeSPS, []byte{0x64, 0x00, 0x1F, byte(s.width >> 4), byte(s.height >> 4)})
		writeNALU(types.NALTypePPS, []byte{0xEE, 0x3C, 0x80})
		writeNALU(types.NALTypeIDR, s.slicePayload(frameNum, 256))
		return buf.Bytes()
	}

	writeNALU(types.NALTypeSlice, s.slicePayload(frameNum, 64))
	return buf.Bytes()
}

func (s *TestPatternSource) slicePayload(frameNum uint64, size int) []byte {
	payload := make([]byte, size)
	for i := range payload {
		b := byte(frameNum) + byte(i)
		// Keep emulation-prevention concerns out of the synthetic
		// stream: never produce two consecutive zero bytes.
		if b == 0x00 {
			b = 0x80
		}
		payload[i] = b
	}
	return payload
}

// renderPreview draws the current pattern and stores a downscaled JPEG
// for the monitor.
func (s *TestPatternSource) renderPreview(frameNum uint64) {
	src := image.NewRGBA(image.Rect(0, 0, s.width/4, s.height/4))
	b := src.Bounds()
	shift := uint8(frameNum)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			src.SetRGBA(x, y, color.RGBA{
				R: uint8(x) + shift,
				G: uint8(y) + shift,
				B: uint8(x+y) - shift,
				A: 255,
			})
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, previewWidth, previewHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 70}); err != nil {
		logger.Warn("Capture", "Preview encode failed: %v", err)
		return
	}

	s.previewMu.Lock()
	s.preview = out.Bytes()
	s.previewMu.Unlock()
}

// Frames returns the synthetic frame stream.
func (s *TestPatternSource) Frames() <-chan *types.VideoFrame {
	return s.frames
}

// ForceIDR makes the next generated frame an IDR.
func (s *TestPatternSource) ForceIDR() {
	s.forced.Store(true)
}

// LatestPreview returns the most recent preview JPEG, or nil.
func (s *TestPatternSource) LatestPreview() []byte {
	s.previewMu.RLock()
	defer s.previewMu.RUnlock()
	return s.preview
}

// Close is a no-op; the generator stops with its context.
func (s *TestPatternSource) Close() error {
	return nil
}
