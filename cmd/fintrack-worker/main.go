package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/rates"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentScheduler)
	log.SetDefault(logger)

	logger.Info("Starting fintrack-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	store, err := storage.Open(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open store", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()

	// AMQP is optional: without it, mutations still commit and reports are
	// maintained incrementally; only the event-driven reconciliation is off.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
		}
	}

	converter := rates.NewConverter(rates.NewFileFetcher(cfg.RatesFilePath), cfg.RatesRefreshInterval)
	reports := services.NewReportService(store, converter)

	var events services.EventPublisher
	if amqpClient != nil {
		events = amqpClient
	}
	ledger := services.NewLedgerService(store, reports, converter, events)
	scheduler := services.NewScheduler(store, ledger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Catch-up worker configured",
		"interval", cfg.CatchUpInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	ticker := time.NewTicker(cfg.CatchUpInterval)
	defer ticker.Stop()

	runCatchUp(ctx, store, scheduler, time.Now())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				runCatchUp(ctx, store, scheduler, now)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())
	cancel()
}

// runCatchUp walks every owner with active rules and materializes their
// elapsed occurrences. Per-owner failures are logged and do not stop the
// sweep.
func runCatchUp(ctx context.Context, store *storage.Store, scheduler *services.Scheduler, now time.Time) {
	owners, err := store.ListOwnersWithActiveRules(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list owners for catch-up", "error", err)
		return
	}

	totalApplied := 0
	for _, owner := range owners {
		result, err := scheduler.CatchUp(ctx, owner, now)
		if err != nil {
			slog.ErrorContext(ctx, "Catch-up failed", "owner_id", owner, "error", err)
			continue
		}
		totalApplied += result.Applied
		for _, ruleErr := range result.Errors {
			slog.WarnContext(ctx, "Rule skipped during catch-up",
				"owner_id", owner,
				"rule_id", ruleErr.RuleID,
				"reason", ruleErr.Message)
		}
	}

	slog.InfoContext(ctx, "Catch-up sweep complete",
		"owners", len(owners),
		"applied", totalApplied)
}
