// Package server hosts the public demo routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/0xReLogic/Furnace/internal/burn"
	"github.com/0xReLogic/Furnace/internal/circuitbreaker"
	"github.com/0xReLogic/Furnace/internal/config"
	"github.com/0xReLogic/Furnace/internal/logging"
	"github.com/0xReLogic/Furnace/internal/metrics"
	"github.com/0xReLogic/Furnace/internal/plugins"
	"github.com/0xReLogic/Furnace/internal/quotes"
	"github.com/0xReLogic/Furnace/internal/ratelimiter"
)

// Deps are the collaborators a Server needs. Nil fields get defaults.
type Deps struct {
	Metrics *metrics.Collector
	Tracker *burn.Tracker
	Quotes  quotes.Store
	// Rand returns a value in [0, 1); it drives /slow and /error.
	Rand func() float64
}

// Server is the demo HTTP server: construct with New, then Run until the
// context is cancelled.
type Server struct {
	cfg     *config.Config
	engine  *gin.Engine
	handler http.Handler

	burner  *burn.Burner
	metrics *metrics.Collector
	quotes  quotes.Store
	limiter *ratelimiter.TokenBucketRateLimiter
	rand    func() float64
	started time.Time

	closing   chan struct{}
	closeOnce sync.Once
}

// New builds the server and registers its routes.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	clock, err := burn.ClockFor(cfg.Burn.Clock)
	if err != nil {
		return nil, err
	}

	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}
	if deps.Tracker == nil {
		deps.Tracker = burn.NewTracker()
	}
	if deps.Quotes == nil {
		store := quotes.NewMemoryStore()
		_ = store.Seed(context.Background(), quotes.Defaults())
		deps.Quotes = store
	}
	if deps.Rand == nil {
		deps.Rand = rand.Float64
	}

	s := &Server{
		cfg:     cfg,
		burner:  burn.NewBurner(clock, deps.Tracker),
		metrics: deps.Metrics,
		quotes:  guard(deps.Quotes, cfg.CircuitBreaker),
		rand:    deps.Rand,
		started: time.Now(),
		closing: make(chan struct{}),
	}

	s.engine = gin.New()
	s.engine.HandleMethodNotAllowed = true
	s.engine.Use(
		gin.CustomRecoveryWithWriter(io.Discard, recoverPanic),
		s.metrics.GinMiddleware(),
		logBindErrors,
	)
	s.routes()

	if s.handler, err = s.wrap(s.engine); err != nil {
		return nil, err
	}
	return s, nil
}

func guard(store quotes.Store, cfg config.CircuitBreakerConfig) quotes.Store {
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:             "quotes",
		Timeout:          time.Duration(cfg.Timeout) * time.Second,
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			logging.L().Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return quotes.NewGuarded(store, cb)
}

// wrap applies, from the inside out: plugins, the rate limiter, and the
// request context middleware.
func (s *Server) wrap(h http.Handler) (http.Handler, error) {
	h, err := plugins.BuildChain(s.cfg.Plugins, h)
	if err != nil {
		return nil, fmt.Errorf("failed to build plugin chain: %w", err)
	}
	if s.cfg.Plugins.Enabled {
		names := make([]string, 0, len(s.cfg.Plugins.Chain))
		for _, p := range s.cfg.Plugins.Chain {
			names = append(names, p.Name)
		}
		logging.L().Info().Strs("plugins", names).Msg("plugins enabled")
	}

	if s.cfg.RateLimit.Enabled {
		s.limiter = ratelimiter.NewTokenBucketRateLimiter(
			s.cfg.RateLimit.MaxTokens,
			time.Duration(s.cfg.RateLimit.RefillIntervalMs)*time.Millisecond,
		)
		h = ratelimiter.Middleware(s.limiter, func(*http.Request) {
			s.metrics.RecordRateLimitedRequest()
		})(h)
	}

	return logging.RequestContextMiddleware(s.cfg.Logging)(h), nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Burner returns the burner used by /cpu-intensive.
func (s *Server) Burner() *burn.Burner { return s.burner }

// Run listens on the configured port and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln. When ctx is cancelled it stops
// accepting, closes stats streams and waits up to the grace period for
// in-flight requests (burns included). Connections still open after the
// grace period are closed and Serve returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: time.Duration(s.cfg.Server.ReadHeaderTimeout) * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: a default burn holds the response for 30s.
	}
	srv.RegisterOnShutdown(s.closeStreams)

	logger := logging.L()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info().
		Str("addr", ln.Addr().String()).
		Str("clock", s.cfg.Burn.Clock).
		Int("default_duration", s.cfg.Burn.DefaultDuration).
		Msg("furnace listening")

	select {
	case err := <-errCh:
		s.stop()
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	grace := time.Duration(s.cfg.Server.ShutdownGracePeriod) * time.Second
	logger.Info().Dur("grace", grace).Int("burns_in_flight", s.burner.Tracker().InFlight()).Msg("shutting down, draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	defer s.stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Warn().
			Dur("grace", grace).
			Int("burns_in_flight", s.burner.Tracker().InFlight()).
			Msg("grace period expired, closing remaining connections")
		if err := srv.Close(); err != nil {
			return fmt.Errorf("close: %w", err)
		}
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

func (s *Server) closeStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) stop() {
	s.closeStreams()
	if s.limiter != nil {
		s.limiter.Close()
	}
}

func recoverPanic(c *gin.Context, recovered any) {
	logging.WithContext(c.Request.Context()).Error().
		Interface("panic", recovered).
		Str("path", c.Request.URL.Path).
		Msg("handler panicked")
	c.AbortWithStatus(http.StatusInternalServerError)
}

// logBindErrors reports query binding failures; the binding layer has
// already answered 400.
func logBindErrors(c *gin.Context) {
	c.Next()
	for _, e := range c.Errors.ByType(gin.ErrorTypeBind) {
		logging.WithContext(c.Request.Context()).Debug().
			Err(e.Err).
			Str("path", c.Request.URL.Path).
			Str("query", c.Request.URL.RawQuery).
			Msg("request parameter binding failed")
	}
}
