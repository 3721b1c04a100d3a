package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"fintrack/internal/core"
)

// GetSnapshot loads the monthly snapshot with its category buckets. Returns
// core.ErrNotFound when the month has never been touched.
func (s *Store) GetSnapshot(ctx context.Context, q sqlx.ExtContext, ownerID string, year, month int) (core.ReportSnapshot, error) {
	var head dbSnapshot
	err := sqlx.GetContext(ctx, q, &head, `
		SELECT * FROM report_snapshots WHERE owner_id = ? AND year = ? AND month = ?`,
		ownerID, year, month)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ReportSnapshot{}, core.ErrNotFound
		}
		return core.ReportSnapshot{}, fmt.Errorf("get snapshot: %w", err)
	}

	var cats []dbReportCategory
	err = sqlx.SelectContext(ctx, q, &cats, `
		SELECT * FROM report_categories
		WHERE owner_id = ? AND year = ? AND month = ?
		ORDER BY amount_cents DESC, category ASC`,
		ownerID, year, month)
	if err != nil {
		return core.ReportSnapshot{}, fmt.Errorf("get snapshot categories: %w", err)
	}

	snap := core.ReportSnapshot{
		OwnerID:          head.OwnerID,
		Year:             head.Year,
		Month:            head.Month,
		Currency:         head.Currency,
		TotalDeposits:    core.Money{Cents: head.TotalDepositsCents},
		TotalWithdrawals: core.Money{Cents: head.TotalWithdrawalsCents},
	}
	for _, c := range cats {
		bucket := core.CategoryAmount{
			Category:   c.Category,
			Amount:     core.Money{Cents: c.AmountCents},
			Percentage: c.Percentage,
		}
		if core.Direction(c.Direction) == core.Withdraw {
			snap.Withdrawals = append(snap.Withdrawals, bucket)
		} else {
			snap.Deposits = append(snap.Deposits, bucket)
		}
	}
	return snap, nil
}

// SaveSnapshot writes the snapshot head and replaces its category buckets.
// Always called inside the transaction of the mutation (or rebuild) that
// produced the new state.
func (s *Store) SaveSnapshot(ctx context.Context, q sqlx.ExtContext, snap core.ReportSnapshot, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO report_snapshots (owner_id, year, month, currency, total_deposits_cents, total_withdrawals_cents, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, year, month) DO UPDATE SET
			currency = excluded.currency,
			total_deposits_cents = excluded.total_deposits_cents,
			total_withdrawals_cents = excluded.total_withdrawals_cents,
			updated_at = excluded.updated_at`,
		snap.OwnerID, snap.Year, snap.Month, snap.Currency,
		snap.TotalDeposits.Cents, snap.TotalWithdrawals.Cents,
		now.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		DELETE FROM report_categories WHERE owner_id = ? AND year = ? AND month = ?`,
		snap.OwnerID, snap.Year, snap.Month)
	if err != nil {
		return fmt.Errorf("clear snapshot categories: %w", err)
	}

	insert := func(direction core.Direction, buckets []core.CategoryAmount) error {
		for _, b := range buckets {
			_, err := q.ExecContext(ctx, `
				INSERT INTO report_categories (owner_id, year, month, direction, category, amount_cents, percentage)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				snap.OwnerID, snap.Year, snap.Month, string(direction),
				b.Category, b.Amount.Cents, b.Percentage)
			if err != nil {
				return fmt.Errorf("insert snapshot category: %w", err)
			}
		}
		return nil
	}
	if err := insert(core.Deposit, snap.Deposits); err != nil {
		return err
	}
	return insert(core.Withdraw, snap.Withdrawals)
}
