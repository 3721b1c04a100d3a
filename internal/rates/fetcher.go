package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, base string) (map[string]float64, error)

func (f FetcherFunc) Fetch(ctx context.Context, base string) (map[string]float64, error) {
	return f(ctx, base)
}

// FileFetcher reads rate tables from a JSON file of the shape
// {"USD": {"EUR": 0.92, ...}, "EUR": {...}}. It exists for deployments
// where the external rate API client is wired elsewhere and rates arrive on
// disk; the workers use it so they can run standalone.
type FileFetcher struct {
	path string
}

func NewFileFetcher(path string) *FileFetcher {
	return &FileFetcher{path: path}
}

func (f *FileFetcher) Fetch(_ context.Context, base string) (map[string]float64, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read rates file: %w", err)
	}

	var tables map[string]map[string]float64
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("parse rates file: %w", err)
	}

	table, ok := tables[strings.ToUpper(base)]
	if !ok {
		return nil, fmt.Errorf("rates file has no table for base %s", base)
	}
	return table, nil
}
