package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// Scheduler owns the recurring rules and materializes every elapsed monthly
// occurrence into the ledger. Catch-up is invoked by the client (typically
// once per session), so it is built to be safe under repeated and
// concurrent calls.
type Scheduler struct {
	store  *storage.Store
	ledger *LedgerService
	group  singleflight.Group
}

func NewScheduler(store *storage.Store, ledger *LedgerService) *Scheduler {
	return &Scheduler{
		store:  store,
		ledger: ledger,
	}
}

// RuleError is a per-rule soft failure from a catch-up run. These are
// results, not errors: the run still commits.
type RuleError struct {
	RuleID  string
	Message string
}

// CatchUpResult aggregates a catch-up run: how many occurrences were
// materialized across all rules, and which rules reported soft failures.
type CatchUpResult struct {
	Applied int
	Errors  []RuleError
}

// CatchUp walks every active rule of the owner and materializes every
// occurrence that has elapsed since the rule's watermark, in chronological
// order, through the same creation path as manual entry.
//
// Concurrent calls for the same owner are collapsed into one execution, so
// two racing invocations cannot apply the same occurrence twice. The whole
// run is one database transaction: an unexpected failure rolls back every
// rule's occurrences, while the accumulated per-rule soft failures
// (insufficient funds, invalid rule definition) commit alongside the rules
// that succeeded.
func (s *Scheduler) CatchUp(ctx context.Context, ownerID string, now time.Time) (CatchUpResult, error) {
	v, err, _ := s.group.Do(ownerID, func() (any, error) {
		return s.catchUp(ctx, ownerID, now)
	})
	if err != nil {
		return CatchUpResult{}, err
	}
	return v.(CatchUpResult), nil
}

func (s *Scheduler) catchUp(ctx context.Context, ownerID string, now time.Time) (CatchUpResult, error) {
	var result CatchUpResult
	today := core.DateOf(now)
	touched := make(map[[2]int]bool)

	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		rules, err := s.store.ListActiveRules(ctx, tx, ownerID)
		if err != nil {
			return err
		}

		// One rule's failure never blocks catch-up for the others.
		for _, rule := range rules {
			applied, ruleErr, err := s.catchUpRule(ctx, tx, rule, today, touched)
			if err != nil {
				return fmt.Errorf("rule %s: %w", rule.ID, err)
			}
			result.Applied += applied
			if ruleErr != nil {
				result.Errors = append(result.Errors, *ruleErr)
			}
		}
		return nil
	})
	if err != nil {
		return CatchUpResult{}, err
	}

	for ym := range touched {
		s.ledger.publishEvent(ctx, ownerID, ym[0], ym[1])
	}

	slog.InfoContext(ctx, "Recurring catch-up complete",
		"owner_id", ownerID,
		"applied", result.Applied,
		"rule_errors", len(result.Errors))

	return result, nil
}

// catchUpRule walks one rule month by month. The three-way return mirrors
// the failure taxonomy: a soft per-rule problem comes back as a RuleError,
// an infrastructure failure as an error that aborts the whole run.
func (s *Scheduler) catchUpRule(ctx context.Context, tx *sqlx.Tx, rule core.RecurringRule, today core.Date, touched map[[2]int]bool) (int, *RuleError, error) {
	if err := rule.Validate(); err != nil {
		// Bad rule definition: skip the rule entirely, apply nothing.
		return 0, &RuleError{RuleID: rule.ID, Message: err.Error()}, nil
	}

	year, month := startMonth(rule, today)
	applied := 0

	for core.MonthLTE(year, month, today.Year(), today.Month()) {
		occurrence := core.OccurrenceDate(year, month, rule.DayOfMonth)
		if occurrence.After(today) {
			// Nothing more to catch up yet.
			break
		}

		err := s.ledger.createInTx(ctx, tx, core.Transaction{
			ID:        uuid.NewString(),
			OwnerID:   rule.OwnerID,
			Date:      occurrence,
			Amount:    rule.Amount,
			Currency:  rule.Currency,
			Direction: rule.Direction,
			Category:  rule.Category,
			Details:   rule.Details,
			CreatedAt: time.Now(),
		})
		if errors.Is(err, core.ErrInsufficientFunds) {
			// Stop this rule without advancing the watermark. Skipping the
			// occurrence and continuing would apply later months out of
			// order against a balance that never absorbed this one.
			return applied, &RuleError{RuleID: rule.ID, Message: "Insufficient funds"}, nil
		}
		if err != nil {
			return applied, nil, err
		}

		if err := s.store.AdvanceRuleWatermark(ctx, tx, rule.ID, occurrence); err != nil {
			return applied, nil, err
		}

		applied++
		touched[[2]int{occurrence.Year(), occurrence.Month()}] = true
		year, month = core.NextMonth(year, month)
	}

	return applied, nil, nil
}

// startMonth is the first month a rule might owe an occurrence for: the
// month after the watermark when one exists, otherwise the current month.
func startMonth(rule core.RecurringRule, today core.Date) (int, int) {
	if rule.LastApplied != nil {
		return core.NextMonth(rule.LastApplied.Year(), rule.LastApplied.Month())
	}
	return today.Year(), today.Month()
}

// CreateRule validates and stores a new recurring rule. The watermark
// starts unset; the first catch-up applies the current month's occurrence
// once it arrives.
func (s *Scheduler) CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	rule.ID = uuid.NewString()
	rule.LastApplied = nil
	if err := rule.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	if err := s.store.InsertRule(ctx, rule); err != nil {
		return core.RecurringRule{}, err
	}
	return rule, nil
}

// UpdateRule replaces a rule's definition. The watermark is untouched so
// already-materialized occurrences are never re-applied.
func (s *Scheduler) UpdateRule(ctx context.Context, rule core.RecurringRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return s.store.UpdateRule(ctx, rule)
}

// SetRuleActive toggles a rule. Deactivated rules are skipped by catch-up
// but never deleted.
func (s *Scheduler) SetRuleActive(ctx context.Context, ruleID string, active bool) error {
	return s.store.SetRuleActive(ctx, ruleID, active)
}

// Rules lists all of an owner's rules, active or not.
func (s *Scheduler) Rules(ctx context.Context, ownerID string) ([]core.RecurringRule, error) {
	return s.store.ListRules(ctx, ownerID)
}
