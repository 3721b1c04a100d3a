package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"fintrack/internal/core"
)

// GetBalance returns the running total for (owner, currency). A missing row
// reads as zero; rows are created lazily on the first deposit.
func (s *Store) GetBalance(ctx context.Context, q sqlx.ExtContext, ownerID, currency string) (core.Balance, error) {
	var row dbBalance
	err := sqlx.GetContext(ctx, q, &row, `
		SELECT owner_id, currency, total_cents FROM balances
		WHERE owner_id = ? AND currency = ?`, ownerID, currency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Balance{OwnerID: ownerID, Currency: currency}, nil
		}
		return core.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return core.Balance{OwnerID: row.OwnerID, Currency: row.Currency, Total: core.Money{Cents: row.TotalCents}}, nil
}

// AdjustBalance applies deltaCents to the (owner, currency) total. The
// guard lives in the statement itself so a concurrent mutation can never
// slip a balance below zero between read and write: a decrement only lands
// when the resulting total stays non-negative, and a decrement against a
// missing row matches no rows at all. Both cases return ErrInsufficientFunds;
// callers translate to ErrCannotDelete where the retraction framing fits.
func (s *Store) AdjustBalance(ctx context.Context, q sqlx.ExtContext, ownerID, currency string, deltaCents int64) error {
	if deltaCents >= 0 {
		_, err := q.ExecContext(ctx, `
			INSERT INTO balances (owner_id, currency, total_cents) VALUES (?, ?, ?)
			ON CONFLICT (owner_id, currency)
			DO UPDATE SET total_cents = balances.total_cents + excluded.total_cents`,
			ownerID, currency, deltaCents)
		if err != nil {
			return fmt.Errorf("adjust balance: %w", err)
		}
		return nil
	}

	res, err := q.ExecContext(ctx, `
		UPDATE balances SET total_cents = total_cents + ?
		WHERE owner_id = ? AND currency = ? AND total_cents + ? >= 0`,
		deltaCents, ownerID, currency, deltaCents)
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust balance rows: %w", err)
	}
	if n == 0 {
		return core.ErrInsufficientFunds
	}
	return nil
}

// ListBalances returns every balance row an owner has, including zero ones.
func (s *Store) ListBalances(ctx context.Context, ownerID string) ([]core.Balance, error) {
	var rows []dbBalance
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT owner_id, currency, total_cents FROM balances
		WHERE owner_id = ? ORDER BY currency`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	out := make([]core.Balance, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.Balance{OwnerID: r.OwnerID, Currency: r.Currency, Total: core.Money{Cents: r.TotalCents}})
	}
	return out, nil
}
