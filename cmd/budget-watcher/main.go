package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Joram-tec/expense-pro/internal/backend"
	"github.com/Joram-tec/expense-pro/internal/config"
	"github.com/Joram-tec/expense-pro/internal/events"
	applog "github.com/Joram-tec/expense-pro/internal/log"
	"github.com/Joram-tec/expense-pro/internal/query"
	"github.com/Joram-tec/expense-pro/internal/storage"
)

// budget-watcher tails the ledger event stream and logs a warning every
// time a mutation pushes a category over its monthly budget. It reads
// the same persistence backend as the server but never writes to it.
func main() {
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Component: "budget-watcher"})
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for budget-watcher")
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

	client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	watcher := &watcher{store: result.Store, logger: logger}

	go func() {
		if err := client.Consume(ctx, watcher.handle); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption failed", applog.FieldError, err)
			cancel()
		}
	}()

	logger.Info("budget-watcher started",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		applog.FieldBackend, cfg.DataBackend)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}
}

type watcher struct {
	store  storage.Store
	logger *applog.Logger
}

// handle recomputes the owner's budget report after each committed
// mutation and logs every category running over its limit.
func (w *watcher) handle(ctx context.Context, event *events.LedgerEvent) error {
	if event.Kind != events.KindTransactionCreated && event.Kind != events.KindTransactionDeleted {
		return nil
	}

	loadCtx, loadCancel := context.WithTimeout(ctx, 10*time.Second)
	defer loadCancel()

	txs, err := w.store.LoadTransactions(loadCtx, event.OwnerID)
	if err != nil {
		return err
	}
	budgets, err := w.store.LoadBudgets(loadCtx, event.OwnerID)
	if err != nil {
		return err
	}

	for _, status := range query.BudgetReport(txs, budgets, time.Now()) {
		if !status.Over {
			continue
		}
		w.logger.Warn("Budget exceeded",
			applog.FieldUserID, event.OwnerID,
			applog.FieldCategory, status.Category,
			"limit_cents", status.Limit.Cents,
			"spent_cents", status.Spent.Cents)
	}

	return nil
}
