package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stallpos/auth-service/internal/api"
	"github.com/stallpos/auth-service/internal/api/handler"
	"github.com/stallpos/auth-service/internal/core/credential"
	"github.com/stallpos/auth-service/internal/core/ports"
	"github.com/stallpos/auth-service/internal/core/service"
	"github.com/stallpos/auth-service/internal/infrastructure/db/memory"
	mongodb "github.com/stallpos/auth-service/internal/infrastructure/db/mongo"
	redisdb "github.com/stallpos/auth-service/internal/infrastructure/db/redis"
	"github.com/stallpos/auth-service/internal/infrastructure/email"
	"github.com/stallpos/auth-service/internal/infrastructure/queue"
	"github.com/stallpos/auth-service/internal/pkg/config"
	"github.com/stallpos/auth-service/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authentication API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateServer(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger.Get())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type stores struct {
	users    ports.UserRepository
	sessions ports.SessionRepository
	codes    ports.VerificationRepository
	checks   []handler.ReadinessCheck
	closers  []func(context.Context) error
}

func (s *stores) close(ctx context.Context, log zerolog.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			log.Warn().Err(err).Msg("closing store")
		}
	}
}

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

// openStores connects the backends selected by SESSION_BACKEND. Users and
// codes live in MongoDB unless everything runs in memory.
func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	st := &stores{}
	if cfg.SessionBackend == config.SessionBackendMemory {
		log.Warn().Msg("using in-memory stores; data is lost on restart")
		st.users = memory.NewUserRepository()
		st.sessions = memory.NewSessionRepository()
		st.codes = memory.NewVerificationRepository()
		return st, nil
	}

	client, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, client.Disconnect)

	users := mongodb.NewUserRepository(db)
	codes := mongodb.NewVerificationRepository(db)
	st.users, st.codes = users, codes
	indexed := []indexer{users, codes}
	collections := []string{mongodb.CollectionUsers, mongodb.CollectionVerificationCodes}

	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			st.close(ctx, log)
			return nil, err
		}
		st.checks = append(st.checks, handler.ReadinessCheck{Name: "redis", Check: redisdb.Ready(rdb)})
		st.closers = append(st.closers, func(context.Context) error { return rdb.Close() })
		st.sessions = redisdb.NewSessionRepository(rdb)
	default:
		sessions := mongodb.NewSessionRepository(db)
		st.sessions = sessions
		indexed = append(indexed, sessions)
		collections = append(collections, mongodb.CollectionSessions)
	}
	st.checks = append(st.checks, handler.ReadinessCheck{Name: "mongodb", Check: mongodb.Ready(db, collections...)})

	for _, ix := range indexed {
		if err := ix.EnsureIndexes(ctx); err != nil {
			st.close(ctx, log)
			return nil, fmt.Errorf("ensuring indexes: %w", err)
		}
	}
	return st, nil
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close(context.Background(), log)

	sender, err := email.NewSender(email.Config{
		Provider:      cfg.Email.Provider,
		From:          cfg.Email.From,
		SendGridKey:   cfg.Email.SendGridAPIKey,
		MailgunDomain: cfg.Email.MailgunDomain,
		MailgunKey:    cfg.Email.MailgunAPIKey,
	}, logger.Component("email"))
	if err != nil {
		return err
	}

	toucher := queue.NewActivityToucher(cfg.TouchWorkers, st.sessions, logger.Component("toucher"))
	toucher.Start(ctx)

	hasher := credential.NewHasher(cfg.Auth.BcryptCost)
	tokens := service.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.SessionTTL, cfg.Auth.ResetTokenTTL)
	auth := service.NewAuthService(st.users, st.sessions, toucher, hasher, tokens, logger.Component("auth"))
	recovery := service.NewRecoveryService(st.users, st.codes, sender, hasher, tokens, cfg.Auth.CodeTTL, logger.Component("recovery"))

	if cfg.Bootstrap.AdminUsername != "" {
		admin, created, err := auth.EnsureBootstrapAdmin(ctx, cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			log.Info().Str("username", admin.Username).Msg("bootstrap admin created")
		}
	}

	e := api.NewRouter(api.Dependencies{
		Auth:      auth,
		Recovery:  recovery,
		Readiness: st.checks,
		Log:       logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("session_backend", cfg.SessionBackend).Msg("starting server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	return nil
}
