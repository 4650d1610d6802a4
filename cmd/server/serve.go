package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomcast/internal/app"
	"github.com/vovakirdan/roomcast/internal/config"
	"github.com/vovakirdan/roomcast/internal/log"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLogger := log.New("info")
			cfg, resolved, err := config.Load(bootLogger, configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(overrides)

			logger := log.NewWithFormat(cfg.LogLevel, cfg.LogFormat, cmd.OutOrStdout())
			logger.Info().Str("config", resolved).Str("addr", cfg.Addr).Msg("starting roomcast")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to config.yaml")
	flags.StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	flags.DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	flags.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&overrides.DatabasePath, "db", "", "SQLite database path")
	flags.BoolVar(&overrides.JWTRequired, "jwt-required", false, "require a token in hello")
	flags.DurationVar(&overrides.CommitTimeout, "commit-timeout", 0, "upper bound for a single commit")
	flags.BoolVar(&overrides.CompensateEdits, "compensate-edits", false, "broadcast EditRejected when an edit fails to commit")
	flags.StringVar(&overrides.RedisAddr, "redis", "", "redis address for the presence mirror")
	flags.StringVar(&overrides.AMQPURL, "amqp-url", "", "RabbitMQ URL for the outcome audit stream")
	flags.StringSliceVar(&overrides.KafkaBrokers, "kafka-brokers", nil, "Kafka brokers for the outcome audit stream")

	return cmd
}
