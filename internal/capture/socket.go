package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/daggintosh/ALVR/internal/logger"
	"github.com/daggintosh/ALVR/pkg/types"
)

const (
	dialRetryInterval = time.Second
	dialTimeout       = 30 * time.Second
)

// SocketSource reads frame records from the compositor's Unix socket.
type SocketSource struct {
	path   string
	frames chan *types.VideoFrame

	mu   sync.Mutex
	conn net.Conn
}

// NewSocketSource creates a source for the socket at path. The
// connection is established in Start.
func NewSocketSource(path string) *SocketSource {
	return &SocketSource{
		path:   path,
		frames: make(chan *types.VideoFrame, 30),
	}
}

// Start connects to the compositor and launches the read loop. It
// retries the dial for up to 30 seconds, matching a compositor that is
// still coming up.
func (s *SocketSource) Start(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go s.readLoop(ctx, conn)
	return nil
}

func (s *SocketSource) dial(ctx context.Context) (net.Conn, error) {
	deadline := time.Now().Add(dialTimeout)
	attempt := 0
	for {
		conn, err := net.Dial("unix", s.path)
		if err == nil {
			logger.Info("Capture", "Connected to compositor socket %s", s.path)
			return conn, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("failed to connect to compositor socket %s: %w", s.path, err)
		}
		if attempt%5 == 0 {
			logger.Info("Capture", "Waiting for compositor socket %s...", s.path)
		}
		attempt++

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialRetryInterval):
		}
	}
}

func (s *SocketSource) readLoop(ctx context.Context, conn net.Conn) {
	defer close(s.frames)

	r := bufio.NewReaderSize(conn, 1<<16)
	for {
		frame, err := ReadFrame(r)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				logger.Info("Capture", "Compositor stream closed")
				return
			}
			logger.Error("Capture", "Frame read failed: %v", err)
			return
		}

		select {
		case s.frames <- frame:
		default:
			// Encode loop is behind; latest-frame-wins is the right
			// policy for a realtime stream.
		}
	}
}

// Frames returns the ingested frame stream. The channel closes when
// the compositor disconnects.
func (s *SocketSource) Frames() <-chan *types.VideoFrame {
	return s.frames
}

// ForceIDR sends the keyframe command upstream. Errors are logged, not
// returned: a lost command is recovered by the next scheduler grant.
func (s *SocketSource) ForceIDR() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return
	}
	if _, err := conn.Write([]byte{ctrlForceIDR}); err != nil {
		logger.Warn("Capture", "Failed to send force-IDR command: %v", err)
	}
}

// Close tears down the socket connection.
func (s *SocketSource) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}
