package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/synctalk/relay/internal/auth"
	"github.com/synctalk/relay/internal/config"
	"github.com/synctalk/relay/internal/relay"
	"github.com/synctalk/relay/internal/store"
	"github.com/synctalk/relay/internal/store/sqlite"
	transporthttp "github.com/synctalk/relay/internal/transport/http"
)

// App wires the relay core, durable store and transport together.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	stop            chan struct{}
	log             *zerolog.Logger
}

// conversationAuthorizer answers relay membership checks from the persisted
// participant lists. Room identifiers on the wire are decimal conversation
// IDs; anything else is simply not a room the user can join.
type conversationAuthorizer struct {
	store store.Store
}

func (a conversationAuthorizer) IsMember(ctx context.Context, userID int64, roomID string) (bool, error) {
	conversationID, err := strconv.ParseInt(roomID, 10, 64)
	if err != nil {
		return false, nil
	}
	return a.store.IsParticipant(ctx, conversationID, userID)
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

	sessions := transporthttp.NewSessionTable(cfg.SessionBuffer, logger)
	rl := relay.New(sessions, conversationAuthorizer{store: st}, logger)

	stop := make(chan struct{})
	server := transporthttp.NewServer(rl, sessions, authService, st, *cfg, stop, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		stop:            stop,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
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
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the store and stops background helpers.
func (a *App) cleanup() {
	close(a.stop)
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
