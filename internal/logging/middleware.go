package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/0xReLogic/Furnace/internal/config"
)

// RequestContextMiddleware assigns request and trace identifiers, echoes them
// in the response headers and stores a tagged logger in the request context.
func RequestContextMiddleware(cfg config.LoggingConfig) func(http.Handler) http.Handler {
	reqHeader := RequestHeaderName(cfg)
	traceHeader := TraceHeaderName(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var reqID, traceID string
			if cfg.RequestID.Enabled {
				reqID = propagate(w, r, reqHeader, "req")
			}
			if cfg.Trace.Enabled {
				traceID = propagate(w, r, traceHeader, "trace")
			}

			ctx := r.Context()
			if reqID != "" {
				ctx = context.WithValue(ctx, requestIDKey, reqID)
			}
			if traceID != "" {
				ctx = context.WithValue(ctx, traceIDKey, traceID)
			}
			ctx = context.WithValue(ctx, loggerKey, tagged(*L(), reqID, traceID))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// propagate reuses the inbound identifier or mints one, and mirrors it on
// both the request and the response.
func propagate(w http.ResponseWriter, r *http.Request, header, prefix string) string {
	id := strings.TrimSpace(r.Header.Get(header))
	if id == "" {
		id = newID(prefix)
		r.Header.Set(header, id)
	}
	w.Header().Set(header, id)
	return id
}

func newID(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return prefix + "_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return prefix + "_" + hex.EncodeToString(b)
}
