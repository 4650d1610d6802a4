package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/audit"
	"github.com/vovakirdan/roomcast/internal/auth"
	"github.com/vovakirdan/roomcast/internal/config"
	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/presence"
	"github.com/vovakirdan/roomcast/internal/service/messages"
	"github.com/vovakirdan/roomcast/internal/store"
	"github.com/vovakirdan/roomcast/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/roomcast/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	coord           *core.Coordinator
	store           store.Store
	audit           audit.Publisher
	presence        presence.Tracker
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	tracker := newPresence(cfg, logger)
	publisher := audit.New(audit.Config{
		AMQPURL:      cfg.AMQPURL,
		Exchange:     cfg.AMQPExchange,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaTopic:   cfg.KafkaTopic,
	}, logger)
	logger.Info().Str("mode", audit.Mode(publisher)).Str("noop_reason", audit.NoopReason(publisher)).Msg("audit publisher ready")

	msgs := messages.New(st, cfg.MaxBodyRunes)
	conns := core.NewConnections()
	coord := core.NewCoordinator(core.CoordinatorConfig{
		Transport:       conns,
		Identities:      conns,
		Processor:       msgs,
		Presence:        tracker,
		Outcomes:        publisher,
		CommitTimeout:   cfg.CommitTimeout,
		CompensateEdits: cfg.CompensateEdits,
		Logger:          logger,
	})
	if cfg.CompensateEdits {
		logger.Info().Msg("failed edits are retracted with EditRejected")
	}

	server := transporthttp.NewServer(transporthttp.Deps{
		Coordinator: coord,
		Connections: conns,
		Auth:        authService,
		Messages:    msgs,
		Users:       st,
		Presence:    tracker,
	}, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		coord:           coord,
		store:           st,
		audit:           publisher,
		presence:        tracker,
		log:             logger,
	}, nil
}

func newPresence(cfg *config.Config, logger *zerolog.Logger) presence.Tracker {
	if cfg.RedisAddr == "" {
		return presence.NewLocal()
	}
	tracker := presence.NewRedis(cfg.RedisAddr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tracker.Ping(ctx); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, presence mirror will retry per call")
	} else {
		logger.Info().Str("addr", cfg.RedisAddr).Msg("redis presence connected")
	}
	return tracker
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		err := a.server.Shutdown(shutdownCtx)
		if drainErr := a.coord.Drain(shutdownCtx); drainErr != nil {
			a.log.Warn().Err(drainErr).Int64("pending", a.coord.Pending()).Msg("commits still running at shutdown")
		}
		a.cleanup()
		if err != nil {
			return err
		}
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close audit publisher")
		}
	}
	if a.presence != nil {
		if err := a.presence.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close presence tracker")
		}
	}
}
