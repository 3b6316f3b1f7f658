// Package marketdata adapts external bar sources to the simulation engine.
// Providers fetch candles for one symbol and interval; the Client walks an
// ordered provider chain and returns the first usable series.
package marketdata

import (
	"context"
	"sort"
	"time"

	"github.com/emb-labs/tradesim/internal/types"
)

// Provider fetches historical bars from one source.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string
	// Supports reports whether the provider can serve the symbol at all.
	// A false return skips the provider without counting as a failure.
	Supports(symbol string) bool
	// Fetch returns bars for the symbol in [start, end], ascending by time.
	// An empty slice with a nil error means the provider has no data for the
	// range, which the chain treats as a miss rather than a failure.
	Fetch(ctx context.Context, symbol string, interval types.Interval, start time.Time, end time.Time) ([]types.MarketData, error)
}

// normalizeBars sorts bars ascending, drops duplicate timestamps keeping the
// first occurrence, and clips to [start, end].
func normalizeBars(bars []types.MarketData, start time.Time, end time.Time) []types.MarketData {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	normalized := make([]types.MarketData, 0, len(bars))

	var lastTime time.Time

	for _, bar := range bars {
		if bar.Time.Before(start) || bar.Time.After(end) {
			continue
		}

		if len(normalized) > 0 && bar.Time.Equal(lastTime) {
			continue
		}

		normalized = append(normalized, bar)
		lastTime = bar.Time
	}

	return normalized
}
