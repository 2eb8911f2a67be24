// Package transport fans the encoded stream out to WebRTC viewer
// sessions and feeds decoder loss reports back into the keyframe
// scheduler.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/daggintosh/ALVR/internal/logger"
	"github.com/daggintosh/ALVR/internal/metrics"
	"github.com/daggintosh/ALVR/pkg/types"
)

const h264ClockRate = 90000

// KeyframeRequester is where decoder recovery requests go; the encode
// pipeline implements it.
type KeyframeRequester interface {
	RequestKeyframe()
}

// Manager owns the viewer sessions.
type Manager struct {
	sessions    map[string]*Session
	sessionsMu  sync.RWMutex
	config      webrtc.Configuration
	api         *webrtc.API
	maxSessions int

	requester     KeyframeRequester
	metrics       *metrics.Metrics
	frameInterval time.Duration
	feedback      *feedbackFilter
}

// NewManager creates a session manager. frameInterval is the display
// refresh period used as sample duration.
func NewManager(stunServers []string, maxSessions int, frameInterval time.Duration,
	requester KeyframeRequester, m *metrics.Metrics) *Manager {

	iceServers := make([]webrtc.ICEServer, 0, len(stunServers))
	for _, url := range stunServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetDTLSRetransmissionInterval(2 * time.Second)
	settingEngine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeUDP6,
	})

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		logger.Error("Transport", "Failed to register codecs: %v", err)
	}

	return &Manager{
		sessions: make(map[string]*Session),
		config:   webrtc.Configuration{ICEServers: iceServers},
		api: webrtc.NewAPI(
			webrtc.WithSettingEngine(settingEngine),
			webrtc.WithMediaEngine(mediaEngine),
		),
		maxSessions:   maxSessions,
		requester:     requester,
		metrics:       m,
		frameInterval: frameInterval,
		feedback:      newFeedbackFilter(2 * time.Second),
	}
}

// HandleOffer answers a viewer's SDP offer and registers the session.
func (m *Manager) HandleOffer(offerJSON []byte) ([]byte, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(offerJSON, &offer); err != nil {
		return nil, fmt.Errorf("failed to parse offer: %w", err)
	}

	m.sessionsMu.RLock()
	count := len(m.sessions)
	m.sessionsMu.RUnlock()
	if count >= m.maxSessions {
		return nil, fmt.Errorf("maximum sessions reached (%d)", m.maxSessions)
	}

	peerConn, err := m.api.NewPeerConnection(m.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	videoTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeH264,
			ClockRate: h264ClockRate,
		},
		"video", "streamer",
	)
	if err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}

	rtpSender, err := peerConn.AddTrack(videoTrack)
	if err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	sess := &Session{
		id:         uuid.NewString(),
		peerConn:   peerConn,
		videoTrack: videoTrack,
		frameChan:  make(chan *types.VideoFrame, 30),
		closeChan:  make(chan struct{}),
		joinedAt:   time.Now(),
	}
	sess.awaitingIDR.Store(true)

	go m.readFeedback(sess, rtpSender)

	peerConn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("Transport", "Session %s state: %s", sess.id, state)
		switch state {
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			logger.Info("Transport", "Session %s lost (%s)", sess.id, state)
			m.RemoveSession(sess.id)
		}
	})

	if err := peerConn.SetRemoteDescription(offer); err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := peerConn.CreateAnswer(nil)
	if err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(peerConn)
	if err := peerConn.SetLocalDescription(answer); err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}
	<-gatherComplete

	m.sessionsMu.Lock()
	m.sessions[sess.id] = sess
	m.sessionsMu.Unlock()

	m.metrics.TotalSessions.Add(1)
	m.metrics.ActiveSessions.Store(uint64(m.SessionCount()))

	go m.sendLoop(sess)

	// The new decoder has no reference state; ask for a keyframe so it
	// can start as soon as the scheduler allows.
	m.requester.RequestKeyframe()
	logger.Info("Transport", "Session %s joined, keyframe requested", sess.id)

	localDesc := peerConn.LocalDescription()
	if localDesc == nil {
		return nil, errors.New("no local description available")
	}
	return json.Marshal(localDesc)
}

// readFeedback maps decoder loss reports (PLI, FIR) to keyframe
// requests, debounced so a feedback storm raises one request.
func (m *Manager) readFeedback(sess *Session, sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}

		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}

		for _, pkt := range packets {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				m.metrics.KeyframeFeedback.Add(1)
				if m.feedback.allow(time.Now()) {
					logger.Debug("Transport", "Loss feedback from session %s, requesting keyframe", sess.id)
					m.requester.RequestKeyframe()
				}
			}
		}
	}
}

// Broadcast queues a frame for every session. Sessions still waiting
// for their first IDR skip non-IDR frames; slow sessions drop.
func (m *Manager) Broadcast(frame *types.VideoFrame) {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()

	for _, sess := range m.sessions {
		if !sess.wantsFrame(frame) {
			continue
		}
		select {
		case sess.frameChan <- frame:
			sess.framesSent.Add(1)
			m.metrics.SessionFramesSent.Add(1)
		default:
			sess.framesDropped.Add(1)
			m.metrics.SessionFramesDropped.Add(1)
			if frame.IsIDR {
				// The dropped frame was the one this decoder needed.
				sess.awaitingIDR.Store(true)
			}
		}
	}
}

func (m *Manager) sendLoop(sess *Session) {
	for {
		select {
		case <-sess.closeChan:
			return
		case frame, ok := <-sess.frameChan:
			if !ok {
				return
			}
			err := sess.videoTrack.WriteSample(media.Sample{
				Data:     frame.Data,
				Duration: m.frameInterval,
			})
			if err != nil {
				if !errors.Is(err, io.ErrClosedPipe) {
					logger.Warn("Transport", "Write to session %s failed: %v", sess.id, err)
				}
				return
			}
		}
	}
}

// RemoveSession closes and unregisters a session.
func (m *Manager) RemoveSession(id string) {
	m.sessionsMu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.sessionsMu.Unlock()

	if !ok {
		return
	}

	sess.closeOnce.Do(func() {
		close(sess.closeChan)
		sess.peerConn.Close()
	})

	m.metrics.ActiveSessions.Store(uint64(m.SessionCount()))
	logger.Info("Transport", "Session %s removed (sent=%d dropped=%d)",
		id, sess.framesSent.Load(), sess.framesDropped.Load())
}

// SessionCount returns the number of connected sessions.
func (m *Manager) SessionCount() int {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()
	return len(m.sessions)
}

// SessionStats snapshots delivery counters for all sessions.
func (m *Manager) SessionStats() []Stats {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()

	stats := make([]Stats, 0, len(m.sessions))
	for _, sess := range m.sessions {
		stats = append(stats, sess.stats())
	}
	return stats
}

// Close tears down every session.
func (m *Manager) Close() error {
	m.sessionsMu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.sessionsMu.RUnlock()

	for _, id := range ids {
		m.RemoveSession(id)
	}
	return nil
}
