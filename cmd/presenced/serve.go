package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/undercity-games/presence-server/internal/app"
	"github.com/undercity-games/presence-server/internal/config"
	"github.com/undercity-games/presence-server/internal/log"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the presence server",
		Long: `Run the server: the /ws endpoint for players, the internal API for
sibling services, and the heartbeat monitor. A missing config file is
created with defaults on first start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, overrides)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&overrides.Addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides config)")

	return cmd
}

func runServe(configPath string, overrides config.Config) error {
	bootLog := log.New("info")
	cfg, path, err := config.Load(bootLog, configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(overrides)

	logger := log.New(cfg.LogLevel)
	logger.Info().Str("config", path).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if err := application.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
