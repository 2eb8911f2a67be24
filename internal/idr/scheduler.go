// Package idr decides when a forced keyframe (Instantaneous Decoder
// Refresh) is inserted into the outgoing video stream. Requests arrive
// from arbitrary goroutines (packet loss recovery, client join); the
// encode loop polls once per frame and consumes at most one grant,
// never closer together than the configured minimum interval.
package idr

import (
	"sync"
	"time"
)

// DefaultMinInterval is the minimum spacing between two forced
// keyframes. Back-to-back IDR frames spike the bitrate, so requests
// arriving faster than this coalesce into a single grant.
const DefaultMinInterval = 100 * time.Millisecond

// Scheduler coalesces keyframe requests and gates them on a minimum
// spacing. All methods are safe for concurrent use.
type Scheduler struct {
	mu          sync.Mutex
	lastGrant   time.Time
	granted     bool // false until the first grant after OnStreamStart
	pending     bool
	minInterval time.Duration
	now         func() time.Time
}

// NewScheduler creates a Scheduler with the given minimum spacing
// between grants. Non-positive values fall back to DefaultMinInterval.
func NewScheduler(minInterval time.Duration) *Scheduler {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Scheduler{
		minInterval: minInterval,
		now:         time.Now,
	}
}

// OnStreamStart resets the scheduler for a new streaming session: no
// request pending, and the next granted request is honored immediately
// regardless of when the previous session last inserted a keyframe.
func (s *Scheduler) OnStreamStart() {
	s.mu.Lock()
	s.pending = false
	s.granted = false
	s.lastGrant = time.Time{}
	s.mu.Unlock()
}

// InsertIDR records that a keyframe is needed. Repeated calls before
// the request is honored coalesce into one grant.
func (s *Scheduler) InsertIDR() {
	s.mu.Lock()
	s.pending = true
	s.mu.Unlock()
}

// CheckIDRInsertion is polled by the encode loop before each frame. It
// returns true exactly when a request is pending and either no keyframe
// has been granted since OnStreamStart or at least the minimum interval
// has elapsed since the last grant. A true return consumes the pending
// request and stamps the grant time; a false return leaves all state
// untouched.
func (s *Scheduler) CheckIDRInsertion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending {
		return false
	}

	now := s.now()
	if s.granted && now.Sub(s.lastGrant) < s.minInterval {
		return false
	}

	s.pending = false
	s.granted = true
	s.lastGrant = now
	return true
}

// MinInterval returns the configured minimum spacing between grants.
func (s *Scheduler) MinInterval() time.Duration {
	return s.minInterval
}
