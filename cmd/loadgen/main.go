package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0xReLogic/Furnace/internal/config"
	"github.com/0xReLogic/Furnace/internal/loadgen"
	"github.com/0xReLogic/Furnace/internal/logging"
)

func main() {
	target := flag.String("target", "http://localhost:5000", "Base URL of the Furnace server")
	burnSecs := flag.Int("duration-param", 1, "Value sent as the duration query parameter")
	rate := flag.Int("rate", 5, "Requests per second")
	attackFor := flag.Duration("for", 10*time.Second, "How long to keep sending requests")
	timeout := flag.Duration("timeout", 60*time.Second, "Per-request timeout")
	workers := flag.Uint64("workers", 10, "Initial number of attack workers")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logging.Init(config.LoggingConfig{Level: *logLevel, Format: "text"})
	logger := logging.L()

	url, err := loadgen.BurnURL(*target, *burnSecs)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid target")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := loadgen.Run(ctx, loadgen.Options{
		Target:   url,
		Rate:     *rate,
		Duration: *attackFor,
		Timeout:  *timeout,
		Workers:  *workers,
	})
	if m != nil {
		if rerr := loadgen.Report(os.Stdout, m); rerr != nil {
			logger.Error().Err(rerr).Msg("failed to write report")
		}
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("attack failed")
	}
}
