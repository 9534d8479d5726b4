package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/0xReLogic/Furnace/internal/adminapi"
	"github.com/0xReLogic/Furnace/internal/burn"
	"github.com/0xReLogic/Furnace/internal/config"
	"github.com/0xReLogic/Furnace/internal/logging"
	"github.com/0xReLogic/Furnace/internal/metrics"
	"github.com/0xReLogic/Furnace/internal/quotes"
	"github.com/0xReLogic/Furnace/internal/server"
)

const storeTimeout = 10 * time.Second

// run wires the process together and blocks until SIGINT or SIGTERM, or
// until a listener fails.
func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Init(cfg.Logging)
	gin.SetMode(gin.ReleaseMode)
	logStartupInfo(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openQuotes(ctx, cfg.Quotes)
	if err != nil {
		return err
	}
	defer closeQuotes(store)

	tracker := burn.NewTracker()
	collector := metrics.NewCollector()

	srv, err := server.New(cfg, server.Deps{
		Metrics: collector,
		Tracker: tracker,
		Quotes:  store,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if cfg.Admin.Enabled {
		h, err := adminapi.NewHandler(cfg.Admin, tracker, collector)
		if err != nil {
			return err
		}
		addr := fmt.Sprintf(":%d", cfg.Admin.Port)
		grace := time.Duration(cfg.Server.ShutdownGracePeriod) * time.Second
		g.Go(func() error { return adminapi.Run(gctx, addr, h, grace) })
		if cfg.Admin.AuthToken == "" {
			logging.L().Warn().Msg("admin api authentication disabled")
		}
	}

	return g.Wait()
}

func openQuotes(ctx context.Context, cfg config.QuotesConfig) (quotes.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	store, err := quotes.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s quote store: %w", cfg.Backend, err)
	}
	logging.L().Info().Str("backend", cfg.Backend).Msg("quote store ready")
	return store, nil
}

func closeQuotes(store quotes.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		logging.L().Error().Err(err).Msg("error closing quote store")
	}
}

func logStartupInfo(cfg *config.Config) {
	logger := logging.L()
	logger.Info().
		Str("environment", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Int("port", cfg.Server.Port).
		Msg("furnace starting")
	logger.Info().
		Str("clock", cfg.Burn.Clock).
		Int("default_duration", cfg.Burn.DefaultDuration).
		Msg("cpu burn configured")
	if cfg.RateLimit.Enabled {
		logger.Info().
			Int("max_tokens", cfg.RateLimit.MaxTokens).
			Int("refill_interval_ms", cfg.RateLimit.RefillIntervalMs).
			Msg("rate limiting enabled")
	}
	if cfg.Admin.Enabled {
		logger.Info().Int("port", cfg.Admin.Port).Msg("admin api enabled")
	} else {
		logger.Info().Msg("admin api disabled")
	}
}
