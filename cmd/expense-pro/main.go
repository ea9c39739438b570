package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Joram-tec/expense-pro/internal/backend"
	"github.com/Joram-tec/expense-pro/internal/config"
	"github.com/Joram-tec/expense-pro/internal/core"
	"github.com/Joram-tec/expense-pro/internal/events"
	apphttp "github.com/Joram-tec/expense-pro/internal/http"
	"github.com/Joram-tec/expense-pro/internal/ledger"
	applog "github.com/Joram-tec/expense-pro/internal/log"
	"github.com/Joram-tec/expense-pro/internal/session"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	factory := backend.NewFactory(logger.Logger)
	result, err := factory.CreateBackend(ctx, backend.Config{
		Type:          backend.BackendType(cfg.DataBackend),
		DataDirectory: cfg.DataDir,
		SQLiteDBPath:  cfg.SQLiteDBPath,
	})
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, applog.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", applog.FieldError, err)
			}
		}()
	}

	// AMQP fan-out is optional. The ledger tolerates a nil publisher.
	var publisher ledger.Publisher
	if cfg.AMQPURL != "" {
		client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without fan-out", applog.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("Initialized AMQP fan-out",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	sessions := session.NewService(result.Store, cfg.BcryptCost, logger)
	tokens := session.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	defer tokens.Stop()
	store := ledger.NewStore(result.Store, publisher, logger)

	// The ledger follows the session: sign-in hydrates, sign-out clears.
	unsubscribe := sessions.Subscribe(func(state session.State, p *core.Principal) {
		hydrateCtx, hydrateCancel := context.WithTimeout(ctx, 30*time.Second)
		defer hydrateCancel()
		if err := store.Hydrate(hydrateCtx, p); err != nil {
			logger.Error("Ledger hydration failed", applog.FieldError, err)
		}
	})
	defer unsubscribe()

	if err := sessions.Init(ctx); err != nil {
		logger.Error("Session probe failed", applog.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:              ":" + cfg.Port,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}, sessions, tokens, store)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting expense-pro server",
		"port", cfg.Port,
		applog.FieldBackend, cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
