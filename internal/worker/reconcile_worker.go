// Package worker consumes ledger mutation events and rebuilds the affected
// monthly report snapshots, keeping the incremental report cache honest.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/services"
)

// ReconcileWorker is the reconciliation path made operational: every ledger
// event triggers a from-scratch recompute of the touched month, repairing
// any drift the incremental deltas may have accumulated (e.g. deltas
// skipped while rates were unavailable).
type ReconcileWorker struct {
	reports *services.ReportService
}

func NewReconcileWorker(reports *services.ReportService) *ReconcileWorker {
	return &ReconcileWorker{reports: reports}
}

// HandleLedgerEvent rebuilds the snapshot for the event's month. Rebuilds
// are idempotent, so redelivered events are harmless.
func (w *ReconcileWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	if msg.Year == 0 || msg.Month < 1 || msg.Month > 12 {
		slog.WarnContext(ctx, "Dropping malformed ledger event",
			"owner_id", msg.OwnerID,
			"year", msg.Year,
			"month", msg.Month)
		return nil
	}

	_, err := w.reports.RebuildSnapshot(ctx, msg.OwnerID, msg.Year, msg.Month)
	if err != nil {
		return fmt.Errorf("rebuild snapshot for %s %d-%02d: %w", msg.OwnerID, msg.Year, msg.Month, err)
	}
	return nil
}

// Run consumes events until the context is cancelled.
func (w *ReconcileWorker) Run(ctx context.Context, client *amqp.Client) error {
	return client.ConsumeLedgerEvents(ctx, func(msg *amqp.LedgerEventMessage) error {
		return w.HandleLedgerEvent(ctx, msg)
	})
}
