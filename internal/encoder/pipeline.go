// Package encoder runs the per-frame loop between the capture source
// and the delivery sinks. It is the only caller of the keyframe
// scheduler's poll operation: once per produced frame, before the
// frame is forwarded.
package encoder

import (
	"context"
	"sync"

	"github.com/daggintosh/ALVR/internal/capture"
	"github.com/daggintosh/ALVR/internal/h264"
	"github.com/daggintosh/ALVR/internal/idr"
	"github.com/daggintosh/ALVR/internal/logger"
	"github.com/daggintosh/ALVR/internal/metrics"
	"github.com/daggintosh/ALVR/pkg/types"
)

// Pipeline pulls frames from the source, applies the keyframe gate and
// fans frames out to the attached sinks without blocking.
type Pipeline struct {
	source    capture.Source
	scheduler *idr.Scheduler
	metrics   *metrics.Metrics
	params    h264.ParameterSets

	mu    sync.Mutex
	sinks []sink
}

type sink struct {
	name string
	ch   chan<- *types.VideoFrame
}

// New creates a pipeline. Sinks are attached before Run.
func New(source capture.Source, scheduler *idr.Scheduler, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		source:    source,
		scheduler: scheduler,
		metrics:   m,
	}
}

// AttachSink registers an output channel. Frames are delivered with a
// non-blocking send; a full sink drops the frame and is counted.
func (p *Pipeline) AttachSink(name string, ch chan<- *types.VideoFrame) {
	p.mu.Lock()
	p.sinks = append(p.sinks, sink{name: name, ch: ch})
	p.mu.Unlock()
}

// OnStreamStart resets per-session state. Called when the headset
// begins a streaming session, before the first frame is produced.
func (p *Pipeline) OnStreamStart() {
	p.scheduler.OnStreamStart()
	logger.Info("Encoder", "Stream session started, keyframe scheduler reset")
}

// RequestKeyframe records that a keyframe is needed. Callable from any
// goroutine; used by the transport on client join and loss feedback.
func (p *Pipeline) RequestKeyframe() {
	p.scheduler.InsertIDR()
	p.metrics.IDRRequests.Add(1)
}

// ParameterSets exposes the SPS/PPS cache maintained by the loop, for
// sinks that need headers prepended.
func (p *Pipeline) ParameterSets() *h264.ParameterSets {
	return &p.params
}

// Run consumes the source until ctx is cancelled or the source closes
// its frame channel.
func (p *Pipeline) Run(ctx context.Context) {
	logger.Info("Encoder", "Encode loop running")

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-p.source.Frames():
			if !ok {
				logger.Info("Encoder", "Capture source closed, encode loop exiting")
				return
			}
			p.produce(frame)
		}
	}
}

func (p *Pipeline) produce(frame *types.VideoFrame) {
	// One poll per frame production cycle. A grant is forwarded to the
	// upstream encoder before this frame's successor is produced.
	if p.scheduler.CheckIDRInsertion() {
		p.metrics.IDRGrants.Add(1)
		p.source.ForceIDR()
		logger.Debug("Encoder", "Keyframe grant at frame %d", frame.FrameNum)
	}

	p.metrics.FramesIngested.Add(1)
	p.metrics.ObserveIngestLatency(frame.ReceivedAt)

	if p.params.Scan(frame.Data) {
		frame.IsIDR = true
	}

	p.mu.Lock()
	sinks := p.sinks
	p.mu.Unlock()

	for _, s := range sinks {
		select {
		case s.ch <- frame:
		default:
			p.metrics.FramesDropped.Add(1)
			logger.Debug("Encoder", "Sink %s full, dropped frame %d", s.name, frame.FrameNum)
		}
	}
	p.metrics.FramesForwarded.Add(1)
}
