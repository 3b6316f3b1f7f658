// Package indicator computes trailing technical indicators over a bar
// sequence at a given index. All functions are pure: no state is retained
// between calls and values are recomputed fresh per call, which is acceptable
// for typical backtest sizes.
package indicator

import (
	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

// SMA returns the arithmetic mean of closes over the period bars ending at
// index i. Values become available once i >= period; earlier indexes return
// an InsufficientDataError.
func SMA(bars []types.MarketData, i int, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "sma period must be positive, got %d", period)
	}

	if i < 0 || i >= len(bars) {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "sma index %d out of range [0,%d)", i, len(bars))
	}

	if i < period {
		return 0, errors.NewInsufficientDataErrorf(period+1, i+1, barSymbol(bars),
			"sma(%d) requires %d bars, have %d", period, period+1, i+1)
	}

	sum := 0.0
	for j := i - period + 1; j <= i; j++ {
		sum += bars[j].Close
	}

	return sum / float64(period), nil
}

// RSI returns the Wilder-style relative strength index computed from simple
// average gain and loss over the trailing period closes ending at index i.
// A window with zero average loss returns 100. It returns an
// InsufficientDataError while the window is warming up: the first close change
// needs one extra bar, so period+1 bars must be available.
func RSI(bars []types.MarketData, i int, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "rsi period must be positive, got %d", period)
	}

	if i < 0 || i >= len(bars) {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "rsi index %d out of range [0,%d)", i, len(bars))
	}

	if i < period {
		return 0, errors.NewInsufficientDataErrorf(period+1, i+1, barSymbol(bars),
			"rsi(%d) requires %d bars, have %d", period, period+1, i+1)
	}

	avgGain := 0.0
	avgLoss := 0.0

	for j := i - period + 1; j <= i; j++ {
		change := bars[j].Close - bars[j-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}

	avgGain /= float64(period)
	avgLoss /= float64(period)

	if avgLoss == 0 {
		return 100, nil // Perfect uptrend
	}

	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))

	return rsi, nil
}

// AverageVolume returns the mean volume over the period bars ending at index i.
// It returns an InsufficientDataError while the window is warming up.
func AverageVolume(bars []types.MarketData, i int, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "average volume period must be positive, got %d", period)
	}

	if i < 0 || i >= len(bars) {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "average volume index %d out of range [0,%d)", i, len(bars))
	}

	if i < period {
		return 0, errors.NewInsufficientDataErrorf(period+1, i+1, barSymbol(bars),
			"average volume(%d) requires %d bars, have %d", period, period+1, i+1)
	}

	sum := 0.0
	for j := i - period + 1; j <= i; j++ {
		sum += bars[j].Volume
	}

	return sum / float64(period), nil
}

func barSymbol(bars []types.MarketData) string {
	if len(bars) == 0 {
		return ""
	}

	return bars[0].Symbol
}
