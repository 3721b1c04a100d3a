// Package rates implements the currency conversion service: a cached rate
// table per base currency, refreshed at most once per refresh interval, and
// pure conversion over the table.
//
// The actual rate-fetching HTTP client is an external collaborator supplied
// through the Fetcher interface.
package rates

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
)

// Fetcher retrieves a fresh rate table for a base currency: a map of
// currency code to units of that currency per one unit of base. The base
// itself maps to 1.
type Fetcher interface {
	Fetch(ctx context.Context, base string) (map[string]float64, error)
}

// Converter caches rate tables per base currency. Between refreshes the
// cached table is reused as-is; when a refresh fails the stale table keeps
// serving. Only a base with no cached table at all is unavailable.
type Converter struct {
	fetcher Fetcher
	cache   *cache.TTLCache[map[string]float64]
}

// DefaultRefreshInterval matches the "at most once per day" contract.
const DefaultRefreshInterval = 24 * time.Hour

func NewConverter(fetcher Fetcher, refreshEvery time.Duration) *Converter {
	if refreshEvery <= 0 {
		refreshEvery = DefaultRefreshInterval
	}
	return &Converter{
		fetcher: fetcher,
		cache:   cache.NewTTLCache[map[string]float64](refreshEvery),
	}
}

// Rates returns the rate table for base. A fresh cached table is returned
// without touching the fetcher; an expired one triggers a refresh, falling
// back to the stale table if the fetch fails. ErrConversionUnavailable is
// returned only when no table has ever been cached for base.
func (c *Converter) Rates(ctx context.Context, base string) (map[string]float64, error) {
	base = strings.ToUpper(base)

	if table, ok := c.cache.Get(base); ok {
		return table, nil
	}

	table, err := c.fetcher.Fetch(ctx, base)
	if err == nil {
		c.cache.Set(base, table)
		return table, nil
	}

	if stale, storedAt, ok := c.cache.GetStale(base); ok {
		slog.WarnContext(ctx, "Rate refresh failed, reusing stale rates",
			"base", base,
			"stored_at", storedAt.Format(time.RFC3339),
			"error", err)
		return stale, nil
	}

	slog.WarnContext(ctx, "No rates available", "base", base, "error", err)
	return nil, fmt.Errorf("fetch rates for %s: %w", base, core.ErrConversionUnavailable)
}

// Convert is a pure function over a rate table: it sums a set of
// per-currency amounts into the table's base currency. A missing rate for
// any input currency propagates ErrConversionUnavailable.
func Convert(amounts map[string]core.Money, table map[string]float64, base string) (core.Money, error) {
	base = strings.ToUpper(base)
	var total float64
	for currency, amount := range amounts {
		currency = strings.ToUpper(currency)
		if currency == base {
			total += amount.Float()
			continue
		}
		rate, ok := table[currency]
		if !ok || rate == 0 {
			return core.Money{}, fmt.Errorf("no rate for %s: %w", currency, core.ErrConversionUnavailable)
		}
		total += amount.Float() / rate
	}
	return core.Money{Cents: int64(math.Round(total * 100))}, nil
}

// ConvertTo converts one amount into the target currency using the cached
// table for that target.
func (c *Converter) ConvertTo(ctx context.Context, amount core.Money, from, target string) (core.Money, error) {
	if strings.EqualFold(from, target) {
		return amount, nil
	}
	table, err := c.Rates(ctx, target)
	if err != nil {
		return core.Money{}, err
	}
	return Convert(map[string]core.Money{from: amount}, table, target)
}

// ConvertAll rolls a set of per-currency totals (e.g. every balance an
// owner holds) into the target currency.
func (c *Converter) ConvertAll(ctx context.Context, amounts map[string]core.Money, target string) (core.Money, error) {
	table, err := c.Rates(ctx, target)
	if err != nil {
		return core.Money{}, err
	}
	return Convert(amounts, table, target)
}
