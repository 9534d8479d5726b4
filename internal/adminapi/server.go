// Package adminapi serves the operator side listener: health, metrics and
// the burns currently in flight.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/0xReLogic/Furnace/internal/burn"
	"github.com/0xReLogic/Furnace/internal/config"
	"github.com/0xReLogic/Furnace/internal/logging"
	"github.com/0xReLogic/Furnace/internal/metrics"
)

// BurnsResponse is the body of /v1/burns.
type BurnsResponse struct {
	InFlight  int           `json:"in_flight"`
	Completed uint64        `json:"completed"`
	Active    []burn.Ticket `json:"active"`
}

// NewMux creates an HTTP handler for the admin API. When token is not
// empty, /v1/metrics and /v1/burns require it as a bearer token.
func NewMux(tracker *burn.Tracker, token string, mc *metrics.Collector) http.Handler {
	mux := http.NewServeMux()

	auth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || bearer != token {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	mux.HandleFunc("GET /v1/health", mc.HealthHandler())
	mux.Handle("GET /v1/metrics", auth(mc.MetricsHandler()))
	mux.Handle("GET /v1/burns", auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := BurnsResponse{
			InFlight:  tracker.InFlight(),
			Completed: tracker.Completed(),
			Active:    tracker.Active(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})))
	mux.Handle("GET /metrics", mc.PrometheusHandler())

	return mux
}

// NewHandler builds the admin mux behind the configured access list.
func NewHandler(cfg config.AdminConfig, tracker *burn.Tracker, mc *metrics.Collector) (http.Handler, error) {
	acl, err := NewAccessList(cfg.AllowList, cfg.DenyList)
	if err != nil {
		return nil, fmt.Errorf("admin access list: %w", err)
	}
	return acl.Middleware(NewMux(tracker, cfg.AuthToken, mc)), nil
}

// Run serves h on addr until ctx is cancelled, then shuts down within grace.
func Run(ctx context.Context, addr string, h http.Handler, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logging.L().Info().Str("addr", addr).Msg("admin api listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("admin api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin api shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin api: %w", err)
	}
	return nil
}
