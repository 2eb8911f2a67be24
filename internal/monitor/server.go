package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/daggintosh/ALVR/internal/capture"
	"github.com/daggintosh/ALVR/internal/logger"
	"github.com/daggintosh/ALVR/internal/metrics"
	"github.com/daggintosh/ALVR/internal/recorder"
	"github.com/daggintosh/ALVR/internal/transport"
)

const previewInterval = time.Second

// Server answers dashboard requests for status and preview.
type Server struct {
	metrics   *metrics.Metrics
	sessions  func() []transport.Stats
	recStatus func() recorder.Status
	previewer capture.Previewer
}

// NewServer creates a monitor backed by the live components.
// previewer may be nil when the capture source cannot render one.
func NewServer(m *metrics.Metrics, sessions func() []transport.Stats,
	recStatus func() recorder.Status, previewer capture.Previewer) *Server {
	return &Server{
		metrics:   m,
		sessions:  sessions,
		recStatus: recStatus,
		previewer: previewer,
	}
}

// Register mounts the monitor endpoints on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/monitor/status", s.handleStatus)
	mux.HandleFunc("/monitor/preview.jpg", s.handlePreview)
	mux.HandleFunc("/monitor/preview", s.handlePreviewStream)
}

func wantsWire(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")
}

// handleStatus serves the current snapshot, protobuf wire format when
// the client asks for it, JSON otherwise.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ev := Snapshot(s.metrics, s.sessions(), s.recStatus())

	if wantsWire(r) {
		w.Header().Set("Content-Type", "application/protobuf")
		w.Write(MarshalWire(ev))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ev); err != nil {
		logger.Warn("Monitor", "Status encode failed: %v", err)
	}
}

// handlePreview serves a single preview JPEG.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	frame := s.previewFrame()
	if frame == nil {
		http.Error(w, "no preview available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(frame)
}

// handlePreviewStream serves an MJPEG stream of preview frames.
func (s *Server) handlePreviewStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	ticker := time.NewTicker(previewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			frame := s.previewFrame()
			if frame == nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, "\r\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) previewFrame() []byte {
	if s.previewer == nil {
		return nil
	}
	return s.previewer.LatestPreview()
}
