package storage

import (
	"database/sql"
	"time"

	"fintrack/internal/core"
)

// Dates are stored as ISO text so SQLite range queries compare correctly.
const dateLayout = "2006-01-02"

type dbTransaction struct {
	ID         string `db:"id"`
	OwnerID    string `db:"owner_id"`
	Date       string `db:"date"`
	AmountCents int64 `db:"amount_cents"`
	Currency   string `db:"currency"`
	Direction  string `db:"direction"`
	Category   string `db:"category"`
	Details    string `db:"details"`
	Link       string `db:"link"`
	CreatedAt  string `db:"created_at"`
}

type dbTrashTransaction struct {
	dbTransaction
	TrashedAt string `db:"trashed_at"`
}

type dbRecurringRule struct {
	ID          string         `db:"id"`
	OwnerID     string         `db:"owner_id"`
	DayOfMonth  int            `db:"day_of_month"`
	AmountCents int64          `db:"amount_cents"`
	Currency    string         `db:"currency"`
	Direction   string         `db:"direction"`
	Category    string         `db:"category"`
	Details     string         `db:"details"`
	Active      bool           `db:"active"`
	LastApplied sql.NullString `db:"last_applied"`
}

type dbBalance struct {
	OwnerID    string `db:"owner_id"`
	Currency   string `db:"currency"`
	TotalCents int64  `db:"total_cents"`
}

type dbSnapshot struct {
	OwnerID               string `db:"owner_id"`
	Year                  int    `db:"year"`
	Month                 int    `db:"month"`
	Currency              string `db:"currency"`
	TotalDepositsCents    int64  `db:"total_deposits_cents"`
	TotalWithdrawalsCents int64  `db:"total_withdrawals_cents"`
	UpdatedAt             string `db:"updated_at"`
}

type dbReportCategory struct {
	OwnerID     string  `db:"owner_id"`
	Year        int     `db:"year"`
	Month       int     `db:"month"`
	Direction   string  `db:"direction"`
	Category    string  `db:"category"`
	AmountCents int64   `db:"amount_cents"`
	Percentage  float64 `db:"percentage"`
}

func encodeDate(d core.Date) string {
	return d.Format(dateLayout)
}

func decodeDate(s string) (core.Date, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return core.Date{}, err
	}
	return core.Date{Time: t}, nil
}

func toDBTransaction(t core.Transaction) dbTransaction {
	return dbTransaction{
		ID:          t.ID,
		OwnerID:     t.OwnerID,
		Date:        encodeDate(t.Date),
		AmountCents: t.Amount.Cents,
		Currency:    t.Currency,
		Direction:   string(t.Direction),
		Category:    t.Category,
		Details:     t.Details,
		Link:        t.Link,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (r dbTransaction) toCore() (core.Transaction, error) {
	date, err := decodeDate(r.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	createdAt, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Date:      date,
		Amount:    core.Money{Cents: r.AmountCents},
		Currency:  r.Currency,
		Direction: core.Direction(r.Direction),
		Category:  r.Category,
		Details:   r.Details,
		Link:      r.Link,
		CreatedAt: createdAt,
	}, nil
}

func (r dbRecurringRule) toCore() (core.RecurringRule, error) {
	rule := core.RecurringRule{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		DayOfMonth: r.DayOfMonth,
		Amount:     core.Money{Cents: r.AmountCents},
		Currency:   r.Currency,
		Direction:  core.Direction(r.Direction),
		Category:   r.Category,
		Details:    r.Details,
		Active:     r.Active,
	}
	if r.LastApplied.Valid && r.LastApplied.String != "" {
		d, err := decodeDate(r.LastApplied.String)
		if err != nil {
			return core.RecurringRule{}, err
		}
		rule.LastApplied = &d
	}
	return rule, nil
}
