package main

import (
	"flag"

	"github.com/0xReLogic/Furnace/internal/logging"
)

func main() {
	configPath := flag.String("config", "furnace.yaml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logging.L().Fatal().Err(err).Msg("furnace stopped")
	}
}
