package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Deposit  Direction = "deposit"
	Withdraw Direction = "withdraw"
)

type (
	Direction string

	// Transaction is a single ledger entry. Entries are immutable once
	// created except through the explicit edit path.
	Transaction struct {
		ID        string
		OwnerID   string
		Date      Date
		Amount    Money
		Currency  string
		Direction Direction
		Category  string
		Details   string
		Link      string
		CreatedAt time.Time
	}

	// Balance is the running total for one (owner, currency) pair. Total
	// must always equal the sum of non-trashed deposits minus withdrawals
	// for that pair.
	Balance struct {
		OwnerID  string
		Currency string
		Total    Money
	}

	// RecurringRule is a template for a transaction that recurs monthly on
	// a given day. LastApplied is the occurrence date most recently
	// materialized into the ledger; it only ever advances.
	RecurringRule struct {
		ID          string
		OwnerID     string
		DayOfMonth  int
		Amount      Money
		Currency    string
		Direction   Direction
		Category    string
		Details     string
		Active      bool
		LastApplied *Date
	}
)

var (
	ErrInvalidCurrency       = errors.New("invalid currency")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidDirection      = errors.New("invalid direction")
	ErrInvalidDay            = errors.New("invalid day of month")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrCannotDelete          = errors.New("cannot delete: balance already spent")
	ErrNotFound              = errors.New("not found")
	ErrConversionUnavailable = errors.New("currency conversion unavailable")
)

// Currencies is the allow-list checked at creation time. Historical entries
// may retain a currency later removed from this set; there is no
// retroactive validation.
var Currencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "EGP": true,
	"SAR": true, "AED": true, "CAD": true, "AUD": true, "CHF": true,
	"CNY": true, "INR": true, "TRY": true, "SEK": true, "NOK": true,
	"DKK": true, "KWD": true, "QAR": true, "JOD": true, "MAD": true,
}

func ValidCurrency(code string) bool {
	return Currencies[strings.ToUpper(strings.TrimSpace(code))]
}

func (d Direction) Validate() error {
	switch d {
	case Deposit, Withdraw:
		return nil
	default:
		return ErrInvalidDirection
	}
}

// Signed returns cents with the direction applied: positive for a deposit,
// negative for a withdrawal.
func (d Direction) Signed(m Money) int64 {
	if d == Withdraw {
		return -m.Cents
	}
	return m.Cents
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !ValidCurrency(t.Currency) {
		return ErrInvalidCurrency
	}
	if err := t.Direction.Validate(); err != nil {
		return err
	}
	if len(t.Details) > 500 {
		return errors.New("details too long (max 500 characters)")
	}
	return nil
}

func (r RecurringRule) Validate() error {
	if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
		return ErrInvalidDay
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if !ValidCurrency(r.Currency) {
		return ErrInvalidCurrency
	}
	if err := r.Direction.Validate(); err != nil {
		return err
	}
	if len(r.Details) > 500 {
		return errors.New("details too long (max 500 characters)")
	}
	return nil
}
