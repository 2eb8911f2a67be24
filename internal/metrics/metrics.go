package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's counters. Hot-path updates are plain
// atomics; prometheus reads them lazily through GaugeFunc adapters on
// scrape.
type Metrics struct {
	// Frame pipeline
	FramesIngested  atomic.Uint64
	FramesForwarded atomic.Uint64
	FramesDropped   atomic.Uint64
	IngestErrors    atomic.Uint64

	// Keyframe scheduling
	IDRRequests atomic.Uint64
	IDRGrants   atomic.Uint64

	// Transport
	SessionFramesSent    atomic.Uint64
	SessionFramesDropped atomic.Uint64
	ActiveSessions       atomic.Uint64
	TotalSessions        atomic.Uint64
	KeyframeFeedback     atomic.Uint64 // PLI/FIR received

	// Recorder
	RecordingActive atomic.Uint64
	RecordingBytes  atomic.Uint64
	RecordingFrames atomic.Uint64

	// Latency
	IngestLatencyMs atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with a private prometheus registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.register()
	return m
}

func (m *Metrics) register() {
	gauges := []struct {
		name string
		help string
		read func() uint64
	}{
		{"streamer_frames_ingested_total", "Frames read from the capture source", m.FramesIngested.Load},
		{"streamer_frames_forwarded_total", "Frames forwarded past the encode gate", m.FramesForwarded.Load},
		{"streamer_frames_dropped_total", "Frames dropped on full pipeline channels", m.FramesDropped.Load},
		{"streamer_ingest_errors_total", "Capture source read errors", m.IngestErrors.Load},
		{"streamer_idr_requests_total", "Keyframe requests raised", m.IDRRequests.Load},
		{"streamer_idr_grants_total", "Keyframe requests granted to the encoder", m.IDRGrants.Load},
		{"streamer_session_frames_sent_total", "Frames handed to viewer sessions", m.SessionFramesSent.Load},
		{"streamer_session_frames_dropped_total", "Frames dropped on slow viewer sessions", m.SessionFramesDropped.Load},
		{"streamer_active_sessions", "Connected viewer sessions", m.ActiveSessions.Load},
		{"streamer_total_sessions", "Viewer sessions since start", m.TotalSessions.Load},
		{"streamer_keyframe_feedback_total", "PLI/FIR feedback packets received", m.KeyframeFeedback.Load},
		{"streamer_recording_active", "Recording active (0 or 1)", m.RecordingActive.Load},
		{"streamer_recording_bytes", "Bytes written to the active recording", m.RecordingBytes.Load},
		{"streamer_recording_frames", "Frames written to the active recording", m.RecordingFrames.Load},
		{"streamer_ingest_latency_ms", "Capture-to-server frame latency", m.IngestLatencyMs.Load},
	}

	for _, g := range gauges {
		read := g.read
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(read()) },
		))
	}
}

// ObserveIngestLatency records how long a frame took to reach us.
func (m *Metrics) ObserveIngestLatency(receivedAt time.Time) {
	m.IngestLatencyMs.Store(uint64(time.Since(receivedAt).Milliseconds()))
}

// Handler returns the scrape handler for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a dedicated metrics listener on addr. Blocks.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
