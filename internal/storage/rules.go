package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"fintrack/internal/core"
)

func (s *Store) InsertRule(ctx context.Context, rule core.RecurringRule) error {
	lastApplied := sql.NullString{}
	if rule.LastApplied != nil {
		lastApplied = sql.NullString{String: encodeDate(*rule.LastApplied), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recurring_rules (id, owner_id, day_of_month, amount_cents, currency, direction, category, details, active, last_applied)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.OwnerID, rule.DayOfMonth, rule.Amount.Cents, rule.Currency,
		string(rule.Direction), rule.Category, rule.Details, rule.Active, lastApplied)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

func (s *Store) GetRule(ctx context.Context, q sqlx.ExtContext, id string) (core.RecurringRule, error) {
	var row dbRecurringRule
	err := sqlx.GetContext(ctx, q, &row, `SELECT * FROM recurring_rules WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.RecurringRule{}, core.ErrNotFound
		}
		return core.RecurringRule{}, fmt.Errorf("get rule: %w", err)
	}
	return row.toCore()
}

// UpdateRule persists edited rule fields. The watermark is not touched
// here; only the catch-up path advances it.
func (s *Store) UpdateRule(ctx context.Context, rule core.RecurringRule) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recurring_rules
		SET day_of_month = ?, amount_cents = ?, currency = ?, direction = ?, category = ?, details = ?, active = ?
		WHERE id = ?`,
		rule.DayOfMonth, rule.Amount.Cents, rule.Currency, string(rule.Direction),
		rule.Category, rule.Details, rule.Active, rule.ID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rule rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) SetRuleActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE recurring_rules SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("set rule active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set rule active rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// AdvanceRuleWatermark moves last_applied forward. The WHERE clause keeps
// the watermark monotone even if two catch-up runs race past the
// singleflight gate: an older date can never overwrite a newer one.
func (s *Store) AdvanceRuleWatermark(ctx context.Context, q sqlx.ExtContext, id string, applied core.Date) error {
	_, err := q.ExecContext(ctx, `
		UPDATE recurring_rules SET last_applied = ?
		WHERE id = ? AND (last_applied IS NULL OR last_applied < ?)`,
		encodeDate(applied), id, encodeDate(applied))
	if err != nil {
		return fmt.Errorf("advance rule watermark: %w", err)
	}
	return nil
}

// ListActiveRules returns an owner's active rules inside the transaction
// driving a catch-up run.
func (s *Store) ListActiveRules(ctx context.Context, q sqlx.ExtContext, ownerID string) ([]core.RecurringRule, error) {
	var rows []dbRecurringRule
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT * FROM recurring_rules WHERE owner_id = ? AND active = 1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	out := make([]core.RecurringRule, 0, len(rows))
	for _, r := range rows {
		rule, err := r.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func (s *Store) ListRules(ctx context.Context, ownerID string) ([]core.RecurringRule, error) {
	var rows []dbRecurringRule
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT * FROM recurring_rules WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	out := make([]core.RecurringRule, 0, len(rows))
	for _, r := range rows {
		rule, err := r.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// ListOwnersWithActiveRules feeds the periodic catch-up worker.
func (s *Store) ListOwnersWithActiveRules(ctx context.Context) ([]string, error) {
	var owners []string
	err := sqlx.SelectContext(ctx, s.db, &owners, `
		SELECT DISTINCT owner_id FROM recurring_rules WHERE active = 1 ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("list owners with active rules: %w", err)
	}
	return owners, nil
}
