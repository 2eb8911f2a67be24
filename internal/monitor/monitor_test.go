package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/daggintosh/ALVR/internal/metrics"
	"github.com/daggintosh/ALVR/internal/recorder"
	"github.com/daggintosh/ALVR/internal/transport"
)

func TestWireRoundTrip(t *testing.T) {
	in := StatusEvent{
		UnixMs:           1723000000123,
		FramesIngested:   1000,
		FramesForwarded:  990,
		FramesDropped:    10,
		IDRRequests:      7,
		IDRGrants:        3,
		ActiveSessions:   2,
		KeyframeFeedback: 5,
		Recording:        true,
		RecordingBytes:   123456,
		RecordingFrames:  321,
	}

	out, err := UnmarshalWire(MarshalWire(in))
	if err != nil {
		t.Fatalf("UnmarshalWire: %v", err)
	}

	// Sessions are JSON-only; everything else must survive.
	in.Sessions = nil
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestUnmarshalWireRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalWire([]byte{0xFF}); err == nil {
		t.Fatal("expected error for truncated message")
	}
}

func newTestServer() *Server {
	m := metrics.New()
	m.FramesIngested.Store(42)
	m.IDRGrants.Store(2)
	return NewServer(m,
		func() []transport.Stats { return []transport.Stats{{ID: "s1", FramesSent: 9}} },
		func() recorder.Status { return recorder.Status{Recording: true, FrameCount: 4} },
		nil,
	)
}

func TestStatusJSON(t *testing.T) {
	srv := newTestServer()
	mux := http.NewServeMux()
	srv.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/monitor/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}

	var ev StatusEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &ev); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if ev.FramesIngested != 42 || ev.IDRGrants != 2 || !ev.Recording {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(ev.Sessions) != 1 || ev.Sessions[0].ID != "s1" {
		t.Fatalf("session detail missing: %+v", ev.Sessions)
	}
}

func TestStatusProtobufNegotiation(t *testing.T) {
	srv := newTestServer()
	mux := http.NewServeMux()
	srv.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/monitor/status", nil)
	req.Header.Set("Accept", "application/x-protobuf")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/protobuf" {
		t.Fatalf("Content-Type = %q", ct)
	}

	ev, err := UnmarshalWire(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("decoding wire body: %v", err)
	}
	if ev.FramesIngested != 42 || ev.RecordingFrames != 4 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestPreviewUnavailable(t *testing.T) {
	srv := newTestServer()
	mux := http.NewServeMux()
	srv.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/monitor/preview.jpg", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
