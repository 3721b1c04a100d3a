// Package services holds the business logic of the ledger: the atomic
// mutation path, the recurring-rule catch-up scheduler and the report cache
// maintainer.
package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// EventPublisher is the post-commit notification hook, satisfied by
// amqp.Client. Publishing is best effort; failures are logged, never
// surfaced to the mutation caller.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ownerID string, year, month int) error
}

// LedgerService is the single entry point for creating, editing, deleting
// and restoring transactions. Every path pairs the ledger write with its
// balance adjustment and report delta in one database transaction; no
// partial state is ever observable.
type LedgerService struct {
	store     *storage.Store
	reports   *ReportService
	converter CurrencyConverter
	events    EventPublisher
}

func NewLedgerService(store *storage.Store, reports *ReportService, converter CurrencyConverter, events EventPublisher) *LedgerService {
	return &LedgerService{
		store:     store,
		reports:   reports,
		converter: converter,
		events:    events,
	}
}

// CreateParams carries the caller-supplied fields of a new transaction.
// OwnerID comes from the authenticated caller; the core never
// authenticates.
type CreateParams struct {
	OwnerID   string
	Date      core.Date
	Amount    core.Money
	Currency  string
	Direction core.Direction
	Category  string
	Details   string
	Link      string
}

// Create validates and appends a ledger entry, adjusting the (owner,
// currency) balance in the same unit. A withdrawal exceeding the current
// balance fails with ErrInsufficientFunds and changes nothing; a withdrawal
// against a currency the owner has no balance in is insufficient by
// definition.
func (s *LedgerService) Create(ctx context.Context, p CreateParams) (core.Transaction, error) {
	t := core.Transaction{
		ID:        uuid.NewString(),
		OwnerID:   p.OwnerID,
		Date:      p.Date,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Direction: p.Direction,
		Category:  p.Category,
		Details:   p.Details,
		Link:      p.Link,
		CreatedAt: time.Now(),
	}

	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.createInTx(ctx, tx, t)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	s.publishEvent(ctx, t.OwnerID, t.Date.Year(), t.Date.Month())
	return t, nil
}

// createInTx is the shared creation path: manual entry, catch-up
// materialization and restore all come through here so every entry gets the
// same validation and balance guard.
func (s *LedgerService) createInTx(ctx context.Context, tx *sqlx.Tx, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.store.AdjustBalance(ctx, tx, t.OwnerID, t.Currency, t.Direction.Signed(t.Amount)); err != nil {
		return err
	}
	if err := s.store.InsertTransaction(ctx, tx, t); err != nil {
		return err
	}
	return s.reports.ApplyDelta(ctx, tx, t.OwnerID, t.Date, t.Direction, t.Category, t.Amount, t.Currency, +1)
}

// EditParams carries the replacement fields of an edit. An edit is modeled
// as retract-old then apply-new, not an in-place patch, so category, month
// and even currency changes cannot drift the balance or the report.
type EditParams struct {
	Date      core.Date
	Amount    core.Money
	Currency  string
	Direction core.Direction
	Category  string
	Details   string
	Link      string
}

func (s *LedgerService) Edit(ctx context.Context, transactionID string, p EditParams) (core.Transaction, error) {
	var updated core.Transaction
	var oldYear, oldMonth int

	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		old, err := s.store.GetTransaction(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		oldYear, oldMonth = old.Date.Year(), old.Date.Month()

		updated = core.Transaction{
			ID:        old.ID,
			OwnerID:   old.OwnerID,
			Date:      p.Date,
			Amount:    p.Amount,
			Currency:  p.Currency,
			Direction: p.Direction,
			Category:  p.Category,
			Details:   p.Details,
			Link:      p.Link,
			CreatedAt: old.CreatedAt,
		}
		if err := updated.Validate(); err != nil {
			return err
		}

		// Reverse the old effect, then apply the new one. Either step can
		// hit the balance floor; the rollback leaves both balances
		// untouched in that case.
		if err := s.store.AdjustBalance(ctx, tx, old.OwnerID, old.Currency, -old.Direction.Signed(old.Amount)); err != nil {
			return err
		}
		if err := s.store.AdjustBalance(ctx, tx, updated.OwnerID, updated.Currency, updated.Direction.Signed(updated.Amount)); err != nil {
			return err
		}
		if err := s.store.UpdateTransaction(ctx, tx, updated); err != nil {
			return err
		}

		if err := s.reports.ApplyDelta(ctx, tx, old.OwnerID, old.Date, old.Direction, old.Category, old.Amount, old.Currency, -1); err != nil {
			return err
		}
		return s.reports.ApplyDelta(ctx, tx, updated.OwnerID, updated.Date, updated.Direction, updated.Category, updated.Amount, updated.Currency, +1)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	// A cross-month edit changed two snapshots; both months need an event.
	s.publishEvent(ctx, updated.OwnerID, updated.Date.Year(), updated.Date.Month())
	if oldYear != updated.Date.Year() || oldMonth != updated.Date.Month() {
		s.publishEvent(ctx, updated.OwnerID, oldYear, oldMonth)
	}
	return updated, nil
}

// Delete reverses the transaction's balance effect and moves it to trash.
// Reversing a deposit whose funds were already spent elsewhere would drive
// the balance negative; that fails with ErrCannotDelete and changes
// nothing. Deleting a transaction that funded a wishlist purchase flips the
// item back to pending.
func (s *LedgerService) Delete(ctx context.Context, transactionID string) error {
	var owner string
	var year, month int

	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		t, err := s.store.GetTransaction(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		owner, year, month = t.OwnerID, t.Date.Year(), t.Date.Month()

		if err := s.store.AdjustBalance(ctx, tx, t.OwnerID, t.Currency, -t.Direction.Signed(t.Amount)); err != nil {
			if errors.Is(err, core.ErrInsufficientFunds) {
				return core.ErrCannotDelete
			}
			return err
		}
		if err := s.store.MoveToTrash(ctx, tx, t.ID, time.Now()); err != nil {
			return err
		}

		released, err := s.store.ReleaseWishlistPurchase(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if released > 0 {
			slog.InfoContext(ctx, "Wishlist purchase released back to pending",
				"transaction_id", t.ID,
				"items", released)
		}

		return s.reports.ApplyDelta(ctx, tx, t.OwnerID, t.Date, t.Direction, t.Category, t.Amount, t.Currency, -1)
	})
	if err != nil {
		return err
	}

	s.publishEvent(ctx, owner, year, month)
	return nil
}

// Restore re-applies a trashed transaction through the same creation path
// as a manual entry, then removes it from the trash.
func (s *LedgerService) Restore(ctx context.Context, trashedID string) (core.Transaction, error) {
	var restored core.Transaction

	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		t, err := s.store.GetTrashedTransaction(ctx, tx, trashedID)
		if err != nil {
			return err
		}
		restored = t

		if err := s.createInTx(ctx, tx, t); err != nil {
			return err
		}
		return s.store.DeleteFromTrash(ctx, tx, t.ID)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	s.publishEvent(ctx, restored.OwnerID, restored.Date.Year(), restored.Date.Month())
	return restored, nil
}

// NetWorth is the owner's balances rolled up into the favorite currency.
// When no rates are available the per-currency balances are still returned
// with Converted unset.
type NetWorth struct {
	Balances  []core.Balance
	Currency  string
	Total     core.Money
	Converted bool
}

func (s *LedgerService) NetWorth(ctx context.Context, ownerID string) (NetWorth, error) {
	balances, err := s.store.ListBalances(ctx, ownerID)
	if err != nil {
		return NetWorth{}, err
	}
	favorite, err := s.store.FavoriteCurrency(ctx, s.store.DB(), ownerID)
	if err != nil {
		return NetWorth{}, err
	}

	nw := NetWorth{Balances: balances, Currency: favorite}

	amounts := make(map[string]core.Money, len(balances))
	for _, b := range balances {
		amounts[b.Currency] = b.Total
	}

	total, err := s.converter.ConvertAll(ctx, amounts, favorite)
	if err != nil {
		slog.WarnContext(ctx, "Net worth conversion unavailable",
			"owner_id", ownerID,
			"target", favorite,
			"error", err)
		return nw, nil
	}

	nw.Total = total
	nw.Converted = true
	return nw, nil
}

// ListTransactions exposes the date-range ledger read.
func (s *LedgerService) ListTransactions(ctx context.Context, ownerID string, from, to core.Date) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, ownerID, from, to)
}

// Balance returns the running total for one currency.
func (s *LedgerService) Balance(ctx context.Context, ownerID, currency string) (core.Balance, error) {
	return s.store.GetBalance(ctx, s.store.DB(), ownerID, currency)
}

func (s *LedgerService) publishEvent(ctx context.Context, ownerID string, year, month int) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, ownerID, year, month); err != nil {
		slog.WarnContext(ctx, "Failed to publish ledger event",
			"owner_id", ownerID,
			"year", year,
			"month", month,
			"error", err)
	}
}
