package main

import (
	"context"
	"fmt"
	"os"

	"medcmd/internal/config"
	"medcmd/internal/core"
	"medcmd/src"
	"medcmd/src/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// app is what every subcommand needs after startup.
type app struct {
	cfg       *src.Config
	processor *core.Processor
	close     core.Closer
}

var domainConfigPath string

func main() {
	root := &cobra.Command{
		Use:           "medcmd",
		Short:         "Medical command interpretation and slot-filling dialogue engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&domainConfigPath, "config", "", "domain YAML (overrides DOMAIN_CONFIG)")

	root.AddCommand(newServeCmd(), newChatCmd(), newReplayCmd(), newToolCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// startup loads .env, configuration and the logger, then builds the processor.
func startup(ctx context.Context) (*app, error) {
	envErr := godotenv.Load()

	cfg, err := src.LoadConfig()
	if err != nil {
		return nil, err
	}

	if err := logger.InitLogger(cfg.LogConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if envErr != nil {
		logger.Warn().Err(envErr).Msg("No .env file loaded, using process environment")
	}

	path := domainConfigPath
	if path == "" {
		path = cfg.ServerConfig.DomainConfig
	}
	domain, err := config.LoadDomainConfig(path)
	if err != nil {
		return nil, err
	}

	processor, closer, err := core.Build(ctx, cfg, domain)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, processor: processor, close: closer}, nil
}

func (a *app) shutdown() {
	if err := a.close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close resources")
	}
}
