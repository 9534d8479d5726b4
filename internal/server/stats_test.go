package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestStatsStream(t *testing.T) {
	s := newTestServer(t, testConfig(), Deps{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/stats"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	defer conn.Close()

	// First frame is immediate, the second comes after one interval.
	for i := 0; i < 2; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var snap Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("frame %d: failed to read snapshot: %v", i, err)
		}
		if snap.Goroutines <= 0 {
			t.Errorf("frame %d: expected a positive goroutine count, got %d", i, snap.Goroutines)
		}
		if snap.InFlightBurns != 0 {
			t.Errorf("frame %d: expected no burns in flight, got %d", i, snap.InFlightBurns)
		}
		if snap.Time.IsZero() {
			t.Errorf("frame %d: expected a timestamp", i)
		}
	}
}

func TestStatsStreamClosesOnShutdown(t *testing.T) {
	s := newTestServer(t, testConfig(), Deps{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/stats"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	defer conn.Close()

	s.closeStreams()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Fatalf("expected a going-away close, got %v", err)
			}
			return
		}
	}
}

func TestStatsRejectsPlainHTTP(t *testing.T) {
	s := newTestServer(t, testConfig(), Deps{})

	rec := do(s, http.MethodGet, "/ws/stats")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for a non-upgrade request, got %d", rec.Code)
	}
}
