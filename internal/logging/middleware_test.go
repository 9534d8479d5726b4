package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/0xReLogic/Furnace/internal/config"
)

func firstLine(b []byte) []byte {
	if idx := bytes.IndexByte(b, '\n'); idx >= 0 {
		return b[:idx]
	}
	return b
}

func TestRequestContextMiddleware_GeneratesIdentifiers(t *testing.T) {
	cfg := config.LoggingConfig{
		RequestID: config.RequestIDConfig{Enabled: true},
		Trace:     config.TraceConfig{Enabled: true},
	}

	var buf bytes.Buffer
	defer Swap(build(&buf, zerolog.InfoLevel, true, false))()

	var gotReq, gotTrace string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = RequestIDFromContext(r.Context())
		gotTrace = TraceIDFromContext(r.Context())
		WithContext(r.Context()).Info().Msg("burn started")
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	RequestContextMiddleware(cfg)(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cpu-intensive", nil))

	if !strings.HasPrefix(gotReq, "req_") {
		t.Fatalf("expected generated request id, got %q", gotReq)
	}
	if !strings.HasPrefix(gotTrace, "trace_") {
		t.Fatalf("expected generated trace id, got %q", gotTrace)
	}
	if got := rr.Header().Get(defaultRequestHeader); got != gotReq {
		t.Fatalf("expected response header request id %q, got %q", gotReq, got)
	}
	if got := rr.Header().Get(defaultTraceHeader); got != gotTrace {
		t.Fatalf("expected response header trace id %q, got %q", gotTrace, got)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(firstLine(buf.Bytes()), &payload); err != nil {
		t.Fatalf("failed to parse log output %q: %v", buf.String(), err)
	}
	if payload["request_id"] != gotReq {
		t.Fatalf("expected log request_id %q, got %v", gotReq, payload["request_id"])
	}
	if payload["trace_id"] != gotTrace {
		t.Fatalf("expected log trace_id %q, got %v", gotTrace, payload["trace_id"])
	}
	if payload["service"] != "furnace" {
		t.Fatalf("expected service field, got %v", payload["service"])
	}
}

func TestRequestContextMiddleware_RespectsHeaders(t *testing.T) {
	cfg := config.LoggingConfig{
		RequestID: config.RequestIDConfig{Enabled: true, Header: "X-Custom-Req"},
		Trace:     config.TraceConfig{Enabled: true, Header: "X-Custom-Trace"},
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestIDFromContext(r.Context()); got != "req-1" {
			t.Errorf("expected request id req-1, got %s", got)
		}
		if got := TraceIDFromContext(r.Context()); got != "trace-1" {
			t.Errorf("expected trace id trace-1, got %s", got)
		}
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Custom-Req", "req-1")
	req.Header.Set("X-Custom-Trace", "trace-1")
	RequestContextMiddleware(cfg)(handler).ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Custom-Req"); got != "req-1" {
		t.Fatalf("expected response header req-1, got %s", got)
	}
	if got := rr.Header().Get("X-Custom-Trace"); got != "trace-1" {
		t.Fatalf("expected response header trace-1, got %s", got)
	}
}

func TestRequestContextMiddleware_Disabled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := RequestIDFromContext(r.Context()); id != "" {
			t.Errorf("expected no request id, got %q", id)
		}
	})

	rr := httptest.NewRecorder()
	RequestContextMiddleware(config.LoggingConfig{})(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rr.Header().Get(defaultRequestHeader); got != "" {
		t.Fatalf("expected no request id header, got %q", got)
	}
}

func TestWithContextFallsBackToIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	defer Swap(build(&buf, zerolog.DebugLevel, true, false))()

	ctx := context.WithValue(context.Background(), requestIDKey, "req-42")
	WithContext(ctx).Debug().Msg("tagged")

	if !strings.Contains(buf.String(), `"request_id":"req-42"`) {
		t.Fatalf("expected request id in log line, got %s", buf.String())
	}
}

func TestLevelOf(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := levelOf(in); got != want {
			t.Errorf("levelOf(%q) = %v, want %v", in, got, want)
		}
	}
}
