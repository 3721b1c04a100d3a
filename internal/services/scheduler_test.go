package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func newTestScheduler(t *testing.T) (testEnv, *Scheduler) {
	t.Helper()
	env := newTestEnv(t, fixedRates)
	return env, NewScheduler(env.store, env.ledger)
}

func monthlyRule(owner string, day int, cents int64, direction core.Direction) core.RecurringRule {
	return core.RecurringRule{
		OwnerID:    owner,
		DayOfMonth: day,
		Amount:     core.Money{Cents: cents},
		Currency:   "USD",
		Direction:  direction,
		Category:   "Recurring",
		Active:     true,
	}
}

func asOf(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 12, 0, 0, 0, time.UTC)
}

func TestCatchUpFirstRun(t *testing.T) {
	env, sched := newTestScheduler(t)
	ctx := context.Background()

	rule, err := sched.CreateRule(ctx, monthlyRule("owner-1", 1, 5000, core.Deposit))
	require.NoError(t, err)

	// A fresh rule owes only the current month's occurrence.
	result, err := sched.CatchUp(ctx, "owner-1", asOf(2024, 6, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Empty(t, result.Errors)

	got, err := env.store.GetRule(ctx, env.store.DB(), rule.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastApplied)
	assert.True(t, got.LastApplied.Equal(core.NewDate(2024, 6, 1)))

	bal, err := env.ledger.Balance(ctx, "owner-1", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), bal.Total.Cents)
}

func TestCatchUpMultipleMonths(t *testing.T) {
	env, sched := newTestScheduler(t)
	ctx := context.Background()

	rule, err := sched.CreateRule(ctx, monthlyRule("owner-1", 1, 5000, core.Deposit))
	require.NoError(t, err)
	require.NoError(t, env.store.AdvanceRuleWatermark(ctx, env.store.DB(), rule.ID, core.NewDate(2024, 3, 1)))

	// Watermark at March 1, now mid-June: April, May and June are owed.
	result, err := sched.CatchUp(ctx, "owner-1", asOf(2024, 6, 15))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Applied)

	listed, err := env.ledger.ListTransactions(ctx, "owner-1", core.NewDate(2024, 4, 1), core.NewDate(2024, 6, 30))
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.True(t, listed[0].Date.Equal(core.NewDate(2024, 4, 1)))
	assert.True(t, listed[1].Date.Equal(core.NewDate(2024, 5, 1)))
	assert.True(t, listed[2].Date.Equal(core.NewDate(2024, 6, 1)))

	// Each touched month got its own snapshot entry.
	for month := 4; month <= 6; month++ {
		snap, err := env.reports.Snapshot(ctx, "owner-1", 2024, month)
		require.NoError(t, err)
		assert.Equal(t, int64(5000), snap.TotalDeposits.Cents, "month %d", month)
	}
}

func TestCatchUpIsIdempotent(t *testing.T) {
	env, sched := newTestScheduler(t)
	ctx := context.Background()

	_, err := sched.CreateRule(ctx, monthlyRule("owner-1", 1, 5000, core.Deposit))
	require.NoError(t, err)

	first, err := sched.CatchUp(ctx, "owner-1", asOf(2024, 6, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Applied)

	second, err := sched.CatchUp(ctx, "owner-1", asOf(2024, 6, 15))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Applied)

	bal, err := env.ledger.Balance(ctx, "owner-1", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), bal.Total.Cents)
}

func TestCatchUpDayClampsToMonthEnd(t *testing.T) {
	tests := []struct {
		name     string
		lastYear int
		now      time.Time
		wantFeb  core.Date
	}{
		{
			name:     "leap February",
			lastYear: 2024,
			now:      asOf(2024, 3, 31),
			wantFeb:  core.NewDate(2024, 2, 29),
		},
		{
			name:     "non-leap February",
			lastYear: 2023,
			now:      asOf(2023, 3, 31),
			wantFeb:  core.NewDate(2023, 2, 28),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, sched := newTestScheduler(t)
			ctx := context.Background()

			rule, err := sched.CreateRule(ctx, monthlyRule("owner-1", 31, 5000, core.Deposit))
			require.NoError(t, err)
			require.NoError(t, env.store.AdvanceRuleWatermark(ctx, env.store.DB(), rule.ID, core.NewDate(tt.lastYear, 1, 31)))

			result, err := sched.CatchUp(ctx, "owner-1", tt.now)
			require.NoError(t, err)
			assert.Equal(t, 2, result.Applied)

			listed, err := env.ledger.ListTransactions(ctx, "owner-1",
				core.NewDate(tt.lastYear, 2, 1), core.NewDate(tt.lastYear, 3, 31))
			require.NoError(t, err)
			require.Len(t, listed, 2)
			assert.True(t, listed[0].Date.Equal(tt.wantFeb))
			assert.True(t, listed[1].Date.Equal(core.NewDate(tt.lastYear, 3, 31)))
		})
	}
}

func TestCatchUpSkipsFutureOccurrence(t *testing.T) {
	env, sched := newTestScheduler(t)
	ctx := context.Background()

	rule, err := sched.CreateRule(ctx, monthlyRule("owner-1", 20, 5000, core.Deposit))
	require.NoError(t, err)

	// The 20th has not arrived yet; nothing is owed.
	result, err := sched.CatchUp(ctx, "owner-1", asOf(2024, 6, 15))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Applied)

	got, err := env.store.GetRule(ctx, env.store.DB(), rule.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastApplied)
}

func TestCatchUpInsufficientFundsStopsRule(t *testing.T) {
	env, sched := newTestScheduler(t)
	ctx := context.Background()

	depositRule, err := sched.CreateRule(ctx, monthlyRule("owner-1", 1, 10000, core.Deposit))
	require.NoError(t, err)
	// Withdrawal larger than anything the deposit rule can fund this run.
	withdrawRule, err := sched.CreateRule(ctx, monthlyRule("owner-1", 1, 50000, core.Withdraw))
	require.NoError(t, err)

	result, err := sched.CatchUp(ctx, "owner-1", asOf(2024, 6, 15))
	require.NoError(t, err)

	// The deposit rule applied; the withdrawal reported a soft failure and
	// kept its watermark so the occurrence is retried next run.
	assert.Equal(t, 1, result.Applied)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, withdrawRule.ID, result.Errors[0].RuleID)

	got, err := env.store.GetRule(ctx, env.store.DB(), depositRule.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastApplied)

	got, err = env.store.GetRule(ctx, env.store.DB(), withdrawRule.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastApplied)
}

func TestCatchUpStopsMidRuleOnInsufficientFunds(t *testing.T) {
	env, sched := newTestScheduler(t)
	ctx := context.Background()

	// 100 in the bank, rule withdraws 40 per month, three months owed:
	// April and May land, June stops the rule.
	_, err := env.ledger.Create(ctx, CreateParams{
		OwnerID: "owner-1", Date: core.NewDate(2024, 3, 15),
		Amount: core.Money{Cents: 10000}, Currency: "USD",
		Direction: core.Deposit, Category: "Salary",
	})
	require.NoError(t, err)

	rule, err := sched.CreateRule(ctx, monthlyRule("owner-1", 1, 4000, core.Withdraw))
	require.NoError(t, err)
	require.NoError(t, env.store.AdvanceRuleWatermark(ctx, env.store.DB(), rule.ID, core.NewDate(2024, 3, 1)))

	result, err := sched.CatchUp(ctx, "owner-1", asOf(2024, 6, 15))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, rule.ID, result.Errors[0].RuleID)

	got, err := env.store.GetRule(ctx, env.store.DB(), rule.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastApplied)
	assert.True(t, got.LastApplied.Equal(core.NewDate(2024, 5, 1)))

	bal, err := env.ledger.Balance(ctx, "owner-1", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), bal.Total.Cents)
}

func TestCatchUpSkipsInvalidRule(t *testing.T) {
	env, sched := newTestScheduler(t)
	ctx := context.Background()

	// A rule whose currency was valid once but no longer is; it reaches the
	// store without passing CreateRule validation.
	bad := monthlyRule("owner-1", 1, 5000, core.Deposit)
	bad.ID = uuid.NewString()
	bad.Currency = "XXX"
	require.NoError(t, env.store.InsertRule(ctx, bad))

	result, err := sched.CatchUp(ctx, "owner-1", asOf(2024, 6, 15))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Applied)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, bad.ID, result.Errors[0].RuleID)

	got, err := env.store.GetRule(ctx, env.store.DB(), bad.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastApplied)
}

func TestCatchUpIgnoresInactiveRules(t *testing.T) {
	env, sched := newTestScheduler(t)
	ctx := context.Background()

	rule, err := sched.CreateRule(ctx, monthlyRule("owner-1", 1, 5000, core.Deposit))
	require.NoError(t, err)
	require.NoError(t, sched.SetRuleActive(ctx, rule.ID, false))

	result, err := sched.CatchUp(ctx, "owner-1", asOf(2024, 6, 15))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Applied)

	bal, err := env.ledger.Balance(ctx, "owner-1", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Total.Cents)
}

func TestCreateRuleValidation(t *testing.T) {
	_, sched := newTestScheduler(t)
	ctx := context.Background()

	bad := monthlyRule("owner-1", 0, 5000, core.Deposit)
	_, err := sched.CreateRule(ctx, bad)
	assert.ErrorIs(t, err, core.ErrInvalidDay)

	bad = monthlyRule("owner-1", 1, 0, core.Deposit)
	_, err = sched.CreateRule(ctx, bad)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestUpdateRuleKeepsWatermark(t *testing.T) {
	env, sched := newTestScheduler(t)
	ctx := context.Background()

	rule, err := sched.CreateRule(ctx, monthlyRule("owner-1", 1, 5000, core.Deposit))
	require.NoError(t, err)
	_, err = sched.CatchUp(ctx, "owner-1", asOf(2024, 6, 15))
	require.NoError(t, err)

	rule.Amount = core.Money{Cents: 7500}
	require.NoError(t, sched.UpdateRule(ctx, rule))

	got, err := env.store.GetRule(ctx, env.store.DB(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), got.Amount.Cents)
	require.NotNil(t, got.LastApplied)
	assert.True(t, got.LastApplied.Equal(core.NewDate(2024, 6, 1)))
}
