package loadgen

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunAgainstHealthyTarget(t *testing.T) {
	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("CPU burn complete after 0 seconds!"))
	}))
	defer ts.Close()

	target, err := BurnURL(ts.URL, 0)
	if err != nil {
		t.Fatalf("BurnURL() error = %v", err)
	}

	m, err := Run(context.Background(), Options{
		Target:   target,
		Rate:     20,
		Duration: 500 * time.Millisecond,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if m.Requests == 0 {
		t.Fatal("expected at least one request")
	}
	if m.Success != 1 {
		t.Errorf("expected 100%% success, got %v (status codes %v)", m.Success, m.StatusCodes)
	}
	if got := hits.Load(); got != int64(m.Requests) {
		t.Errorf("server saw %d requests, metrics report %d", got, m.Requests)
	}

	var buf bytes.Buffer
	if err := Report(&buf, m); err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Success") {
		t.Errorf("report is missing the success line:\n%s", buf.String())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	m, err := Run(ctx, Options{Target: ts.URL, Rate: 10, Duration: 30 * time.Second})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a deadline error, got %v", err)
	}
	if m == nil {
		t.Fatal("expected partial metrics after cancel")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run took %v after cancel", elapsed)
	}
}

func TestRunValidatesOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no target", Options{Rate: 1, Duration: time.Second}},
		{"zero rate", Options{Target: "http://localhost", Duration: time.Second}},
		{"zero duration", Options{Target: "http://localhost", Rate: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Run(context.Background(), tt.opts); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestBurnURL(t *testing.T) {
	tests := []struct {
		base    string
		secs    int
		want    string
		wantErr bool
	}{
		{"http://localhost:5000", 30, "http://localhost:5000/cpu-intensive?duration=30", false},
		{"http://localhost:5000/ignored?x=1", -1, "http://localhost:5000/cpu-intensive?duration=-1", false},
		{"localhost:5000", 1, "", true},
		{"://bad", 1, "", true},
	}
	for _, tt := range tests {
		got, err := BurnURL(tt.base, tt.secs)
		if (err != nil) != tt.wantErr {
			t.Errorf("BurnURL(%q) error = %v, wantErr %v", tt.base, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("BurnURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
