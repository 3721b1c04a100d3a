package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestTransaction(ownerID string) core.Transaction {
	return core.Transaction{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Date:      core.NewDate(2024, 6, 15),
		Amount:    core.Money{Cents: 2500},
		Currency:  "USD",
		Direction: core.Withdraw,
		Category:  "Groceries",
		Details:   "weekly shop",
		CreatedAt: time.Now().UTC(),
	}
}

func TestReopenDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(path)
	require.NoError(t, err)
	tr := newTestTransaction("owner-1")
	require.NoError(t, store.InsertTransaction(ctx, store.DB(), tr))
	require.NoError(t, store.Close())

	// Reopening runs the migrations again (no-op) and must release
	// everything the first open held.
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetTransaction(ctx, reopened.DB(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.ID)
}

func TestTransactionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := newTestTransaction("owner-1")
	require.NoError(t, store.InsertTransaction(ctx, store.DB(), want))

	got, err := store.GetTransaction(ctx, store.DB(), want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.OwnerID, got.OwnerID)
	assert.Equal(t, want.Amount, got.Amount)
	assert.Equal(t, want.Direction, got.Direction)
	assert.True(t, got.Date.Equal(want.Date))

	_, err = store.GetTransaction(ctx, store.DB(), "no-such-id")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpdateTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tr := newTestTransaction("owner-1")
	require.NoError(t, store.InsertTransaction(ctx, store.DB(), tr))

	tr.Amount = core.Money{Cents: 9900}
	tr.Category = "Dining"
	require.NoError(t, store.UpdateTransaction(ctx, store.DB(), tr))

	got, err := store.GetTransaction(ctx, store.DB(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9900), got.Amount.Cents)
	assert.Equal(t, "Dining", got.Category)

	missing := newTestTransaction("owner-1")
	assert.ErrorIs(t, store.UpdateTransaction(ctx, store.DB(), missing), core.ErrNotFound)
}

func TestTrashLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tr := newTestTransaction("owner-1")
	require.NoError(t, store.InsertTransaction(ctx, store.DB(), tr))
	require.NoError(t, store.MoveToTrash(ctx, store.DB(), tr.ID, time.Now()))

	// Gone from the ledger, recoverable from the trash.
	_, err := store.GetTransaction(ctx, store.DB(), tr.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	trashed, err := store.GetTrashedTransaction(ctx, store.DB(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.Amount, trashed.Amount)

	listed, err := store.ListTrash(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, store.DeleteFromTrash(ctx, store.DB(), tr.ID))
	_, err = store.GetTrashedTransaction(ctx, store.DB(), tr.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.ErrorIs(t, store.MoveToTrash(ctx, store.DB(), "no-such-id", time.Now()), core.ErrNotFound)
}

func TestPurgeTrash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for range 3 {
		tr := newTestTransaction("owner-1")
		require.NoError(t, store.InsertTransaction(ctx, store.DB(), tr))
		require.NoError(t, store.MoveToTrash(ctx, store.DB(), tr.ID, time.Now()))
	}
	other := newTestTransaction("owner-2")
	require.NoError(t, store.InsertTransaction(ctx, store.DB(), other))
	require.NoError(t, store.MoveToTrash(ctx, store.DB(), other.ID, time.Now()))

	purged, err := store.PurgeTrash(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)

	// The other owner's trash is untouched.
	left, err := store.ListTrash(ctx, "owner-2")
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestListTransactionsRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dates := []core.Date{
		core.NewDate(2024, 5, 31),
		core.NewDate(2024, 6, 1),
		core.NewDate(2024, 6, 30),
		core.NewDate(2024, 7, 1),
	}
	for _, d := range dates {
		tr := newTestTransaction("owner-1")
		tr.Date = d
		require.NoError(t, store.InsertTransaction(ctx, store.DB(), tr))
	}

	got, err := store.ListTransactions(ctx, "owner-1", core.NewDate(2024, 6, 1), core.NewDate(2024, 6, 30))
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Oldest first, range endpoints included.
	assert.True(t, got[0].Date.Equal(core.NewDate(2024, 6, 1)))
	assert.True(t, got[1].Date.Equal(core.NewDate(2024, 6, 30)))
}

func TestAdjustBalance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Missing row reads as zero.
	bal, err := store.GetBalance(ctx, store.DB(), "owner-1", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Total.Cents)

	require.NoError(t, store.AdjustBalance(ctx, store.DB(), "owner-1", "USD", 10000))
	require.NoError(t, store.AdjustBalance(ctx, store.DB(), "owner-1", "USD", -4000))

	bal, err = store.GetBalance(ctx, store.DB(), "owner-1", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(6000), bal.Total.Cents)

	// Overdraw leaves the total untouched.
	err = store.AdjustBalance(ctx, store.DB(), "owner-1", "USD", -7000)
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)
	bal, err = store.GetBalance(ctx, store.DB(), "owner-1", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(6000), bal.Total.Cents)

	// Decrement against a missing row fails the same way.
	err = store.AdjustBalance(ctx, store.DB(), "owner-1", "EUR", -100)
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)

	// Draining to exactly zero is allowed.
	require.NoError(t, store.AdjustBalance(ctx, store.DB(), "owner-1", "USD", -6000))

	balances, err := store.ListBalances(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, int64(0), balances[0].Total.Cents)
}

func TestRuleWatermark(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := core.RecurringRule{
		ID:         uuid.NewString(),
		OwnerID:    "owner-1",
		DayOfMonth: 1,
		Amount:     core.Money{Cents: 120000},
		Currency:   "USD",
		Direction:  core.Withdraw,
		Category:   "Rent",
		Active:     true,
	}
	require.NoError(t, store.InsertRule(ctx, rule))

	got, err := store.GetRule(ctx, store.DB(), rule.ID)
	require.NoError(t, err)
	require.Nil(t, got.LastApplied)

	require.NoError(t, store.AdvanceRuleWatermark(ctx, store.DB(), rule.ID, core.NewDate(2024, 6, 1)))
	got, err = store.GetRule(ctx, store.DB(), rule.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastApplied)
	assert.True(t, got.LastApplied.Equal(core.NewDate(2024, 6, 1)))

	// An older date never overwrites a newer watermark.
	require.NoError(t, store.AdvanceRuleWatermark(ctx, store.DB(), rule.ID, core.NewDate(2024, 4, 1)))
	got, err = store.GetRule(ctx, store.DB(), rule.ID)
	require.NoError(t, err)
	assert.True(t, got.LastApplied.Equal(core.NewDate(2024, 6, 1)))
}

func TestRuleListing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	active := core.RecurringRule{
		ID: uuid.NewString(), OwnerID: "owner-1", DayOfMonth: 1,
		Amount: core.Money{Cents: 100}, Currency: "USD", Direction: core.Deposit, Active: true,
	}
	inactive := core.RecurringRule{
		ID: uuid.NewString(), OwnerID: "owner-1", DayOfMonth: 15,
		Amount: core.Money{Cents: 200}, Currency: "USD", Direction: core.Withdraw, Active: false,
	}
	require.NoError(t, store.InsertRule(ctx, active))
	require.NoError(t, store.InsertRule(ctx, inactive))

	all, err := store.ListRules(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyActive, err := store.ListActiveRules(ctx, store.DB(), "owner-1")
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, active.ID, onlyActive[0].ID)

	owners, err := store.ListOwnersWithActiveRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner-1"}, owners)

	require.NoError(t, store.SetRuleActive(ctx, active.ID, false))
	owners, err = store.ListOwnersWithActiveRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, owners)
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	snap := core.ReportSnapshot{
		OwnerID:  "owner-1",
		Year:     2024,
		Month:    6,
		Currency: "USD",
		Withdrawals: []core.CategoryAmount{
			{Category: "Rent", Amount: core.Money{Cents: 120000}, Percentage: 80},
			{Category: "Groceries", Amount: core.Money{Cents: 30000}, Percentage: 20},
		},
		TotalWithdrawals: core.Money{Cents: 150000},
		TotalDeposits:    core.Money{Cents: 0},
	}
	err := store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return store.SaveSnapshot(ctx, tx, snap, time.Now())
	})
	require.NoError(t, err)

	got, err := store.GetSnapshot(ctx, store.DB(), "owner-1", 2024, 6)
	require.NoError(t, err)
	assert.Equal(t, "USD", got.Currency)
	assert.Equal(t, int64(150000), got.TotalWithdrawals.Cents)
	require.Len(t, got.Withdrawals, 2)
	assert.Equal(t, "Rent", got.Withdrawals[0].Category)

	// Saving again replaces categories instead of accumulating them.
	snap.Withdrawals = snap.Withdrawals[:1]
	snap.TotalWithdrawals = core.Money{Cents: 120000}
	err = store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return store.SaveSnapshot(ctx, tx, snap, time.Now())
	})
	require.NoError(t, err)

	got, err = store.GetSnapshot(ctx, store.DB(), "owner-1", 2024, 6)
	require.NoError(t, err)
	assert.Len(t, got.Withdrawals, 1)

	_, err = store.GetSnapshot(ctx, store.DB(), "owner-1", 2024, 7)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestWithTxRollback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tr := newTestTransaction("owner-1")
	err := store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := store.InsertTransaction(ctx, tx, tr); err != nil {
			return err
		}
		return core.ErrInsufficientFunds
	})
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)

	_, err = store.GetTransaction(ctx, store.DB(), tr.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestFavoriteCurrency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.FavoriteCurrency(ctx, store.DB(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, DefaultCurrency, got)

	require.NoError(t, store.SetFavoriteCurrency(ctx, "owner-1", "EUR"))
	got, err = store.FavoriteCurrency(ctx, store.DB(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "EUR", got)

	require.NoError(t, store.SetFavoriteCurrency(ctx, "owner-1", "GBP"))
	got, err = store.FavoriteCurrency(ctx, store.DB(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "GBP", got)
}

func TestWishlistRelease(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tr := newTestTransaction("owner-1")
	require.NoError(t, store.InsertTransaction(ctx, store.DB(), tr))

	item := WishlistItem{
		ID:            uuid.NewString(),
		OwnerID:       "owner-1",
		Name:          "camera",
		PriceCents:    45000,
		Currency:      "USD",
		Status:        WishlistPurchased,
		TransactionID: tr.ID,
	}
	require.NoError(t, store.InsertWishlistItem(ctx, item))

	n, err := store.ReleaseWishlistPurchase(ctx, store.DB(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetWishlistItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, WishlistPending, got.Status)
	assert.Empty(t, got.TransactionID)

	// Releasing an unlinked transaction touches nothing.
	n, err = store.ReleaseWishlistPurchase(ctx, store.DB(), "no-such-id")
	require.NoError(t, err)
	assert.Zero(t, n)
}
