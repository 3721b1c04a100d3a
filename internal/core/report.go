package core

import "sort"

// Uncategorized is the bucket used when a transaction carries no category.
const Uncategorized = "Uncategorized"

type (
	// CategoryAmount is one bucket of a report: a category, its converted
	// amount, and its share of the direction total.
	CategoryAmount struct {
		Category   string
		Amount     Money
		Percentage float64
	}

	// ReportSnapshot is the denormalized monthly report for one owner.
	// All amounts are expressed in Currency, the owner's favorite currency
	// at the time of computation. The same structure is produced by both
	// the incremental delta path and the from-scratch recompute path.
	ReportSnapshot struct {
		OwnerID          string
		Month            int
		Year             int
		Currency         string
		Deposits         []CategoryAmount
		Withdrawals      []CategoryAmount
		TotalDeposits    Money
		TotalWithdrawals Money
	}
)

// Apply adds deltaCents (already converted to the snapshot currency, signed
// by retraction) to the bucket for category under direction, then restores
// the snapshot invariants: buckets whose running total drops to or below
// zero are removed, direction totals are clamped to zero, and every
// percentage is recomputed against the new total.
func (s *ReportSnapshot) Apply(direction Direction, category string, deltaCents int64) {
	if category == "" {
		category = Uncategorized
	}

	buckets, total := s.side(direction)
	found := false
	for i := range buckets {
		if buckets[i].Category == category {
			buckets[i].Amount.Cents += deltaCents
			found = true
			break
		}
	}
	if !found && deltaCents > 0 {
		buckets = append(buckets, CategoryAmount{Category: category, Amount: Money{Cents: deltaCents}})
	}
	total.Cents += deltaCents

	// A fully retracted category disappears rather than lingering at zero.
	kept := buckets[:0]
	for _, b := range buckets {
		if b.Amount.Cents > 0 {
			kept = append(kept, b)
		}
	}
	buckets = kept

	// A run of retractions must never leave a negative displayed total.
	if total.Cents < 0 {
		total.Cents = 0
	}

	recomputePercentages(buckets, total.Cents)
	sortBuckets(buckets)
	s.setSide(direction, buckets)
}

func (s *ReportSnapshot) side(direction Direction) ([]CategoryAmount, *Money) {
	if direction == Withdraw {
		return s.Withdrawals, &s.TotalWithdrawals
	}
	return s.Deposits, &s.TotalDeposits
}

func (s *ReportSnapshot) setSide(direction Direction, buckets []CategoryAmount) {
	if direction == Withdraw {
		s.Withdrawals = buckets
		return
	}
	s.Deposits = buckets
}

// Normalize recomputes percentages and ordering on both sides. Used after
// loading a snapshot or rebuilding one from the ledger.
func (s *ReportSnapshot) Normalize() {
	recomputePercentages(s.Deposits, s.TotalDeposits.Cents)
	recomputePercentages(s.Withdrawals, s.TotalWithdrawals.Cents)
	sortBuckets(s.Deposits)
	sortBuckets(s.Withdrawals)
}

func recomputePercentages(buckets []CategoryAmount, totalCents int64) {
	for i := range buckets {
		if totalCents <= 0 {
			buckets[i].Percentage = 0
			continue
		}
		buckets[i].Percentage = float64(buckets[i].Amount.Cents) / float64(totalCents) * 100
	}
}

// Largest bucket first; ties break by name so both report paths order
// identically.
func sortBuckets(buckets []CategoryAmount) {
	sort.SliceStable(buckets, func(i, j int) bool {
		if buckets[i].Amount.Cents != buckets[j].Amount.Cents {
			return buckets[i].Amount.Cents > buckets[j].Amount.Cents
		}
		return buckets[i].Category < buckets[j].Category
	})
}
