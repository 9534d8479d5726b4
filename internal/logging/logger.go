package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xReLogic/Furnace/internal/config"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
	traceIDKey
)

const (
	defaultRequestHeader = "X-Request-ID"
	defaultTraceHeader   = "X-Trace-ID"
)

var (
	base   zerolog.Logger
	baseMu sync.RWMutex
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
	replaceBase(build(os.Stdout, zerolog.InfoLevel, false, false))
}

// Init configures the process logger from configuration values.
func Init(cfg config.LoggingConfig) {
	replaceBase(build(os.Stdout, levelOf(cfg.Level), isJSON(cfg.Format), cfg.IncludeCaller))
}

func levelOf(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func isJSON(format string) bool {
	return strings.EqualFold(strings.TrimSpace(format), "json")
}

func build(w io.Writer, level zerolog.Level, asJSON, withCaller bool) zerolog.Logger {
	out := w
	if !asJSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339Nano, NoColor: true}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp().Str("service", "furnace")
	if withCaller {
		ctx = ctx.CallerWithSkipFrameCount(2)
	}
	return ctx.Logger()
}

func replaceBase(l zerolog.Logger) {
	baseMu.Lock()
	base = l
	baseMu.Unlock()
}

// Swap installs l as the process logger and returns a function that
// restores the previous one.
func Swap(l zerolog.Logger) (restore func()) {
	baseMu.Lock()
	previous := base
	base = l
	baseMu.Unlock()
	return func() { replaceBase(previous) }
}

// L returns a copy of the process logger.
func L() *zerolog.Logger {
	baseMu.RLock()
	l := base
	baseMu.RUnlock()
	return &l
}

// WithContext returns the request logger stored in ctx, or the process
// logger tagged with whatever identifiers ctx carries.
func WithContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return L()
	}
	if l, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return &l
	}

	reqID, traceID := RequestIDFromContext(ctx), TraceIDFromContext(ctx)
	if reqID == "" && traceID == "" {
		return L()
	}
	l := tagged(*L(), reqID, traceID)
	return &l
}

func tagged(l zerolog.Logger, reqID, traceID string) zerolog.Logger {
	c := l.With()
	if reqID != "" {
		c = c.Str("request_id", reqID)
	}
	if traceID != "" {
		c = c.Str("trace_id", traceID)
	}
	return c.Logger()
}

// RequestIDFromContext extracts the request identifier from ctx if present.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// TraceIDFromContext extracts the trace identifier from ctx if present.
func TraceIDFromContext(ctx context.Context) string {
	return stringValue(ctx, traceIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

func headerOr(name, fallback string) string {
	if h := strings.TrimSpace(name); h != "" {
		return h
	}
	return fallback
}

// RequestHeaderName returns the configured request id header.
func RequestHeaderName(cfg config.LoggingConfig) string {
	return headerOr(cfg.RequestID.Header, defaultRequestHeader)
}

// TraceHeaderName returns the configured trace id header.
func TraceHeaderName(cfg config.LoggingConfig) string {
	return headerOr(cfg.Trace.Header, defaultTraceHeader)
}
