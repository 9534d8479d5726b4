package plugins

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/0xReLogic/Furnace/internal/logging"
)

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Hijack lets the stats websocket upgrade through the access log.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		if sr.status == 0 {
			sr.status = http.StatusSwitchingProtocols
		}
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// The logging plugin writes one access log line per request.
// Settings:
//
//	skip_paths: ["/metrics"]   paths that are not logged
func init() {
	Register("logging", func(settings map[string]interface{}) (Middleware, error) {
		skip, err := toStringSet(settings["skip_paths"])
		if err != nil {
			return nil, err
		}

		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, ok := skip[r.URL.Path]; ok {
					next.ServeHTTP(w, r)
					return
				}

				start := time.Now()
				rec := &statusRecorder{ResponseWriter: w}
				next.ServeHTTP(rec, r)

				status := rec.status
				if status == 0 {
					status = http.StatusOK
				}
				logging.WithContext(r.Context()).Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("query", r.URL.RawQuery).
					Int("status", status).
					Int("bytes", rec.bytes).
					Dur("latency", time.Since(start)).
					Msg("request served")
			})
		}, nil
	})
}

func toStringSet(v interface{}) (map[string]struct{}, error) {
	set := map[string]struct{}{}
	if v == nil {
		return set, nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, errInvalidList
	}
	for _, item := range items {
		s, ok := item.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, errInvalidList
		}
		set[s] = struct{}{}
	}
	return set, nil
}
