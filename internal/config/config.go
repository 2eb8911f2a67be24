// Package config loads the session configuration the dashboard writes
// as JSON. Missing files and missing fields fall back to defaults so a
// bare server still comes up in loopback mode.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Session mirrors the relevant subset of the dashboard's session file.
type Session struct {
	RefreshRate          int      `json:"refresh_rate"`
	EyeResolutionWidth   int      `json:"eye_resolution_width"`
	EyeResolutionHeight  int      `json:"eye_resolution_height"`
	Codec                string   `json:"codec"`
	BitrateMbps          int      `json:"bitrate_mbps"`
	MinimumIDRIntervalMs int64    `json:"minimum_idr_interval_ms"`
	CaptureSocketPath    string   `json:"capture_socket_path"`
	RecordingDir         string   `json:"recording_dir"`
	STUNServers          []string `json:"stun_servers"`
	MaxSessions          int      `json:"max_sessions"`
}

// Default returns the configuration used when no session file exists.
func Default() *Session {
	return &Session{
		RefreshRate:          72,
		EyeResolutionWidth:   1440,
		EyeResolutionHeight:  1600,
		Codec:                "h264",
		BitrateMbps:          30,
		MinimumIDRIntervalMs: 100,
		CaptureSocketPath:    "/tmp/alvr_capture.sock",
		RecordingDir:         "./recordings",
		STUNServers:          []string{"stun:stun.l.google.com:19302"},
		MaxSessions:          4,
	}
}

// Load reads the session file at path over the defaults. A missing
// file is not an error; a malformed one is.
func Load(path string) (*Session, error) {
	s := Default()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read session config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse session config %s: %w", path, err)
	}

	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid session config %s: %w", path, err)
	}
	return s, nil
}

func (s *Session) validate() error {
	if s.RefreshRate <= 0 {
		return fmt.Errorf("refresh_rate must be positive, got %d", s.RefreshRate)
	}
	if s.EyeResolutionWidth <= 0 || s.EyeResolutionHeight <= 0 {
		return fmt.Errorf("eye resolution must be positive, got %dx%d",
			s.EyeResolutionWidth, s.EyeResolutionHeight)
	}
	if s.Codec != "h264" && s.Codec != "hevc" {
		return fmt.Errorf("unsupported codec %q", s.Codec)
	}
	if s.MinimumIDRIntervalMs < 0 {
		return fmt.Errorf("minimum_idr_interval_ms must not be negative, got %d",
			s.MinimumIDRIntervalMs)
	}
	if s.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be positive, got %d", s.MaxSessions)
	}
	return nil
}

// MinimumIDRInterval returns the keyframe spacing as a duration.
func (s *Session) MinimumIDRInterval() time.Duration {
	return time.Duration(s.MinimumIDRIntervalMs) * time.Millisecond
}

// FrameInterval returns the display refresh period.
func (s *Session) FrameInterval() time.Duration {
	return time.Second / time.Duration(s.RefreshRate)
}

// RenderWidth returns the combined width of both eye views.
func (s *Session) RenderWidth() int {
	return s.EyeResolutionWidth * 2
}

// RenderHeight returns the render target height.
func (s *Session) RenderHeight() int {
	return s.EyeResolutionHeight
}
