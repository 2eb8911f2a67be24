package transport

import (
	"sync"
	"time"
)

// feedbackFilter rate-limits keyframe requests raised from RTCP
// feedback. Several viewers reporting the same loss burst should cost
// one request, not one per report.
type feedbackFilter struct {
	mu       sync.Mutex
	window   time.Duration
	lastPass time.Time
}

func newFeedbackFilter(window time.Duration) *feedbackFilter {
	return &feedbackFilter{window: window}
}

// allow reports whether a request at now passes the filter, and if so
// starts a new suppression window.
func (f *feedbackFilter) allow(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.lastPass.IsZero() && now.Sub(f.lastPass) < f.window {
		return false
	}
	f.lastPass = now
	return true
}
