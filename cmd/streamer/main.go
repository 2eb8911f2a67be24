package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	_ "net/http/pprof" // pprof endpoints on the debug listener
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/daggintosh/ALVR/internal/capture"
	"github.com/daggintosh/ALVR/internal/config"
	"github.com/daggintosh/ALVR/internal/encoder"
	"github.com/daggintosh/ALVR/internal/idr"
	"github.com/daggintosh/ALVR/internal/logger"
	"github.com/daggintosh/ALVR/internal/metrics"
	"github.com/daggintosh/ALVR/internal/monitor"
	"github.com/daggintosh/ALVR/internal/recorder"
	"github.com/daggintosh/ALVR/internal/tracking"
	"github.com/daggintosh/ALVR/internal/transport"
	"github.com/daggintosh/ALVR/pkg/types"
)

var (
	sessionPath = flag.String("session", "./session.json", "Session config file")
	sourceKind  = flag.String("source", "socket", "Frame source: socket or testpattern")
	httpAddr    = flag.String("http", ":8081", "Signaling/control HTTP address")
	metricsAddr = flag.String("metrics", ":9090", "Metrics HTTP address")
	pprofAddr   = flag.String("pprof", ":6060", "pprof HTTP address")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Colored log output")
)

// Server wires the streaming pipeline together.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cfg        *config.Session
	metrics    *metrics.Metrics
	source     capture.Source
	pipeline   *encoder.Pipeline
	transport  *transport.Manager
	recorder   *recorder.Recorder
	history    *tracking.History
	httpServer *http.Server

	transportChan chan *types.VideoFrame
	recorderChan  chan *types.VideoFrame
}

func main() {
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	cfg, err := config.Load(*sessionPath)
	if err != nil {
		log.Fatalf("Failed to load session config: %v", err)
	}

	if err := os.MkdirAll(cfg.RecordingDir, 0o755); err != nil {
		log.Fatalf("Failed to create recording directory: %v", err)
	}

	srv, err := NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")
	if err := srv.Shutdown(); err != nil {
		logger.Error("Main", "Shutdown error: %v", err)
	}
	logger.Info("Main", "Server stopped")
}

// NewServer assembles the pipeline from the session config.
func NewServer(cfg *config.Session) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	m := metrics.New()

	var source capture.Source
	switch *sourceKind {
	case "socket":
		source = capture.NewSocketSource(cfg.CaptureSocketPath)
	case "testpattern":
		// Loopback mode keyframes every two seconds besides grants.
		source = capture.NewTestPatternSource(
			cfg.RenderWidth(), cfg.RenderHeight(), cfg.RefreshRate, cfg.RefreshRate*2)
	default:
		cancel()
		return nil, fmt.Errorf("unknown source kind %q", *sourceKind)
	}

	scheduler := idr.NewScheduler(cfg.MinimumIDRInterval())
	pipeline := encoder.New(source, scheduler, m)

	mgr := transport.NewManager(cfg.STUNServers, cfg.MaxSessions, cfg.FrameInterval(), pipeline, m)
	rec := recorder.New(cfg.RecordingDir, pipeline.ParameterSets())

	srv := &Server{
		ctx:           ctx,
		cancel:        cancel,
		cfg:           cfg,
		metrics:       m,
		source:        source,
		pipeline:      pipeline,
		transport:     mgr,
		recorder:      rec,
		history:       tracking.NewHistory(),
		transportChan: make(chan *types.VideoFrame, 30),
		recorderChan:  make(chan *types.VideoFrame, 60),
	}

	mux := http.NewServeMux()
	srv.setupRoutes(mux)
	srv.httpServer = &http.Server{Addr: *httpAddr, Handler: mux}

	return srv, nil
}

// Start brings up the listeners and the pipeline goroutines.
func (s *Server) Start() error {
	logger.Info("Main", "Render target: %dx%d @ %dHz, codec %s",
		s.cfg.RenderWidth(), s.cfg.RenderHeight(), s.cfg.RefreshRate, s.cfg.Codec)
	logger.Info("Main", "Keyframe spacing: %v", s.cfg.MinimumIDRInterval())

	go func() {
		logger.Info("Main", "pprof on %s", *pprofAddr)
		if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
			logger.Warn("Main", "pprof server: %v", err)
		}
	}()

	go func() {
		logger.Info("Main", "Metrics on %s", *metricsAddr)
		if err := s.metrics.Serve(*metricsAddr); err != nil {
			logger.Warn("Main", "Metrics server: %v", err)
		}
	}()

	go func() {
		logger.Info("Main", "HTTP on %s", *httpAddr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("Main", "HTTP server: %v", err)
		}
	}()

	if err := s.source.Start(s.ctx); err != nil {
		return fmt.Errorf("failed to start capture source: %w", err)
	}

	s.pipeline.AttachSink("transport", s.transportChan)
	s.pipeline.AttachSink("recorder", s.recorderChan)
	s.pipeline.OnStreamStart()

	s.wg.Add(3)
	go s.runPipeline()
	go s.distributeTransport()
	go s.distributeRecorder()

	logger.Info("Main", "Server started")
	return nil
}

func (s *Server) runPipeline() {
	defer s.wg.Done()
	s.pipeline.Run(s.ctx)
}

func (s *Server) distributeTransport() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.transportChan:
			s.transport.Broadcast(frame)
		}
	}
}

func (s *Server) distributeRecorder() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.recorderChan:
			s.recorder.WriteFrame(frame)

			status := s.recorder.GetStatus()
			if status.Recording {
				s.metrics.RecordingActive.Store(1)
				s.metrics.RecordingBytes.Store(status.BytesWritten)
				s.metrics.RecordingFrames.Store(status.FrameCount)
			} else {
				s.metrics.RecordingActive.Store(0)
			}
		}
	}
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	cors := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("/offer", cors(s.handleOffer))
	mux.HandleFunc("/tracking", cors(s.handleTracking))
	mux.HandleFunc("/record/start", cors(s.handleStartRecording))
	mux.HandleFunc("/record/stop", cors(s.handleStopRecording))
	mux.HandleFunc("/record/status", cors(s.handleRecordStatus))
	mux.HandleFunc("/health", s.handleHealth)

	previewer, _ := s.source.(capture.Previewer)
	mon := monitor.NewServer(s.metrics, s.transport.SessionStats, s.recorder.GetStatus, previewer)
	mon.Register(mux)
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	offerJSON, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	answerJSON, err := s.transport.HandleOffer(offerJSON)
	if err != nil {
		logger.Warn("Main", "Offer rejected: %v", err)
		http.Error(w, fmt.Sprintf("Failed to handle offer: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(answerJSON)
}

// trackingUpdate is one pose report from the headset.
type trackingUpdate struct {
	TargetTimestampNs uint64           `json:"target_timestamp_ns"`
	Orientation       types.Quaternion `json:"orientation"`
	Position          types.Vec3       `json:"position"`
}

func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var update trackingUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Malformed tracking update", http.StatusBadRequest)
		return
	}

	s.history.OnPoseUpdated(update.TargetTimestampNs, types.Pose{
		Orientation: update.Orientation,
		Position:    update.Position,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.recorder.Start(); err != nil {
		http.Error(w, fmt.Sprintf("Failed to start recording: %v", err), http.StatusConflict)
		return
	}

	// Start the file at the earliest decodable point.
	s.pipeline.RequestKeyframe()

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"status":  s.recorder.GetStatus(),
	})
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.recorder.Stop(); err != nil {
		http.Error(w, fmt.Sprintf("Failed to stop recording: %v", err), http.StatusConflict)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"status":  s.recorder.GetStatus(),
	})
}

func (s *Server) handleRecordStatus(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.recorder.GetStatus())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]any{
		"status":        "ok",
		"sessions":      s.transport.SessionCount(),
		"recording":     s.recorder.IsRecording(),
		"has_headers":   s.pipeline.ParameterSets().Complete(),
		"tracked_poses": s.history.Len(),
	})
}

// Shutdown stops the pipeline and closes every component.
func (s *Server) Shutdown() error {
	s.cancel()
	s.wg.Wait()

	if s.recorder.IsRecording() {
		s.recorder.Stop()
	}
	s.recorder.Close()
	s.transport.Close()
	s.source.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
