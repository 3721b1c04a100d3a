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

// InsertTransaction appends a ledger entry. q is either the database handle
// or an open transaction; mutation paths always pass the latter.
func (s *Store) InsertTransaction(ctx context.Context, q sqlx.ExtContext, t core.Transaction) error {
	row := toDBTransaction(t)
	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (id, owner_id, date, amount_cents, currency, direction, category, details, link, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.OwnerID, row.Date, row.AmountCents, row.Currency,
		row.Direction, row.Category, row.Details, row.Link, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, q sqlx.ExtContext, id string) (core.Transaction, error) {
	var row dbTransaction
	err := sqlx.GetContext(ctx, q, &row, `SELECT * FROM transactions WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, core.ErrNotFound
		}
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return row.toCore()
}

func (s *Store) UpdateTransaction(ctx context.Context, q sqlx.ExtContext, t core.Transaction) error {
	row := toDBTransaction(t)
	res, err := q.ExecContext(ctx, `
		UPDATE transactions
		SET date = ?, amount_cents = ?, currency = ?, direction = ?, category = ?, details = ?, link = ?
		WHERE id = ?`,
		row.Date, row.AmountCents, row.Currency, row.Direction,
		row.Category, row.Details, row.Link, row.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// MoveToTrash moves a ledger entry into the trash store in one statement
// pair; the entry stays recoverable until purged.
func (s *Store) MoveToTrash(ctx context.Context, q sqlx.ExtContext, id string, now time.Time) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO trash_transactions (id, owner_id, date, amount_cents, currency, direction, category, details, link, created_at, trashed_at)
		SELECT id, owner_id, date, amount_cents, currency, direction, category, details, link, created_at, ?
		FROM transactions WHERE id = ?`,
		now.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("copy transaction to trash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("trash rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete trashed transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTrashedTransaction(ctx context.Context, q sqlx.ExtContext, id string) (core.Transaction, error) {
	var row dbTrashTransaction
	err := sqlx.GetContext(ctx, q, &row, `SELECT * FROM trash_transactions WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, core.ErrNotFound
		}
		return core.Transaction{}, fmt.Errorf("get trashed transaction: %w", err)
	}
	return row.dbTransaction.toCore()
}

func (s *Store) DeleteFromTrash(ctx context.Context, q sqlx.ExtContext, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM trash_transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete from trash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("trash delete rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) ListTrash(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	var rows []dbTrashTransaction
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT * FROM trash_transactions WHERE owner_id = ? ORDER BY trashed_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, r := range rows {
		t, err := r.dbTransaction.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// PurgeTrash hard-deletes every trashed entry for an owner.
func (s *Store) PurgeTrash(ctx context.Context, ownerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trash_transactions WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("purge trash: %w", err)
	}
	return res.RowsAffected()
}

// ListTransactions returns an owner's ledger entries with date inside
// [from, to], oldest first.
func (s *Store) ListTransactions(ctx context.Context, ownerID string, from, to core.Date) ([]core.Transaction, error) {
	var rows []dbTransaction
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT * FROM transactions
		WHERE owner_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, created_at ASC`,
		ownerID, encodeDate(from), encodeDate(to))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, r := range rows {
		t, err := r.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
