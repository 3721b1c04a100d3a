package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// CurrencyConverter is the conversion surface the reporting and net-worth
// paths need. Satisfied by rates.Converter.
type CurrencyConverter interface {
	ConvertTo(ctx context.Context, amount core.Money, from, target string) (core.Money, error)
	ConvertAll(ctx context.Context, amounts map[string]core.Money, target string) (core.Money, error)
}

// ReportService keeps the per-(owner, month) snapshot in sync with ledger
// mutations and recomputes it from scratch for reconciliation.
type ReportService struct {
	store     *storage.Store
	converter CurrencyConverter
}

func NewReportService(store *storage.Store, converter CurrencyConverter) *ReportService {
	return &ReportService{
		store:     store,
		converter: converter,
	}
}

// ApplyDelta folds one applied (sign = +1) or retracted (sign = -1) ledger
// effect into the month's snapshot, inside the same transaction as the
// ledger mutation itself.
//
// Conversion trouble degrades: the converter already falls back to the last
// cached rates, and when no rates exist at all the snapshot is left
// unchanged with a logged warning. The triggering ledger mutation is never
// blocked by reporting.
func (r *ReportService) ApplyDelta(ctx context.Context, tx *sqlx.Tx, ownerID string, date core.Date, direction core.Direction, category string, amount core.Money, currency string, sign int) error {
	favorite, err := r.store.FavoriteCurrency(ctx, tx, ownerID)
	if err != nil {
		return err
	}

	snap, err := r.store.GetSnapshot(ctx, tx, ownerID, date.Year(), date.Month())
	if errors.Is(err, core.ErrNotFound) {
		snap = core.ReportSnapshot{
			OwnerID:  ownerID,
			Year:     date.Year(),
			Month:    date.Month(),
			Currency: favorite,
		}
	} else if err != nil {
		return err
	}

	// An existing snapshot keeps the favorite currency it was computed
	// with; mixing targets inside one snapshot would corrupt its totals.
	target := snap.Currency

	converted, err := r.converter.ConvertTo(ctx, amount, currency, target)
	if err != nil {
		slog.WarnContext(ctx, "Report delta skipped: conversion unavailable",
			"owner_id", ownerID,
			"currency", currency,
			"target", target,
			"error", err)
		return nil
	}

	snap.Apply(direction, category, int64(sign)*converted.Cents)

	if err := r.store.SaveSnapshot(ctx, tx, snap, time.Now()); err != nil {
		return err
	}
	return nil
}

// Recompute builds a report over [from, to] directly from the ledger. This
// is the reconciliation path: always exact for its window, and the shape it
// produces is the same ReportSnapshot the incremental path maintains.
// Conversion happens per transaction, like the incremental path, so both
// paths round identically and agree to the cent.
//
// Unlike ApplyDelta this path fails hard on missing rates; a reconciliation
// that silently dropped a currency would be worse than none.
func (r *ReportService) Recompute(ctx context.Context, ownerID string, from, to core.Date) (core.ReportSnapshot, error) {
	favorite, err := r.store.FavoriteCurrency(ctx, r.store.DB(), ownerID)
	if err != nil {
		return core.ReportSnapshot{}, err
	}

	txs, err := r.store.ListTransactions(ctx, ownerID, from, to)
	if err != nil {
		return core.ReportSnapshot{}, err
	}

	snap := core.ReportSnapshot{
		OwnerID:  ownerID,
		Year:     from.Year(),
		Month:    from.Month(),
		Currency: favorite,
	}

	for _, t := range txs {
		converted, err := r.converter.ConvertTo(ctx, t.Amount, t.Currency, favorite)
		if err != nil {
			return core.ReportSnapshot{}, fmt.Errorf("recompute report: %w", err)
		}
		snap.Apply(t.Direction, t.Category, converted.Cents)
	}

	snap.Normalize()
	return snap, nil
}

// RebuildSnapshot recomputes one calendar month and persists the result
// over whatever the incremental path had accumulated, repairing any drift.
func (r *ReportService) RebuildSnapshot(ctx context.Context, ownerID string, year, month int) (core.ReportSnapshot, error) {
	from := core.NewDate(year, month, 1)
	to := core.NewDate(year, month, core.DaysInMonth(year, month))

	snap, err := r.Recompute(ctx, ownerID, from, to)
	if err != nil {
		return core.ReportSnapshot{}, err
	}

	err = r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return r.store.SaveSnapshot(ctx, tx, snap, time.Now())
	})
	if err != nil {
		return core.ReportSnapshot{}, err
	}

	slog.InfoContext(ctx, "Report snapshot rebuilt",
		"owner_id", ownerID,
		"year", year,
		"month", month,
		"total_deposits_cents", snap.TotalDeposits.Cents,
		"total_withdrawals_cents", snap.TotalWithdrawals.Cents)

	return snap, nil
}

// Snapshot returns the stored monthly snapshot without recomputing.
func (r *ReportService) Snapshot(ctx context.Context, ownerID string, year, month int) (core.ReportSnapshot, error) {
	return r.store.GetSnapshot(ctx, r.store.DB(), ownerID, year, month)
}
