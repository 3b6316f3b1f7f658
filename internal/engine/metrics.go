package engine

import (
	"math"

	"github.com/emb-labs/tradesim/internal/types"
)

// stepsPerYear is the annualization convention for the Sharpe ratio.
const stepsPerYear = 252

// ComputeMetrics reduces a trade log and equity curve into aggregate
// statistics. Every division is guarded so no NaN or infinity can reach the
// result.
func ComputeMetrics(initialCapital float64, trades []types.Trade, equity []types.EquityPoint) types.Metrics {
	metrics := types.Metrics{
		PercentReturn:    0,
		WinRate:          0,
		MaxDrawdown:      0,
		ProfitFactor:     0,
		TotalTrades:      len(trades),
		SharpeRatio:      0,
		BuyAndHoldReturn: 0,
		TotalFees:        0,
	}

	for _, trade := range trades {
		metrics.TotalFees += trade.Fee
	}

	finalEquity := initialCapital
	if len(equity) > 0 {
		finalEquity = equity[len(equity)-1].Value
	}

	if initialCapital > 0 {
		metrics.PercentReturn = (finalEquity - initialCapital) / initialCapital * 100
	}

	metrics.WinRate, metrics.ProfitFactor = winRateAndProfitFactor(trades)
	metrics.MaxDrawdown = maxDrawdown(equity)
	metrics.SharpeRatio = sharpeRatio(equity)

	return metrics
}

func winRateAndProfitFactor(trades []types.Trade) (winRate float64, profitFactor float64) {
	var (
		closed    int
		wins      int
		winSum    float64
		lossCount int
		lossSum   float64
	)

	for _, trade := range trades {
		if !trade.IsClose() {
			continue
		}

		closed++

		if trade.PnL > 0 {
			wins++
			winSum += trade.PnL
		} else if trade.PnL < 0 {
			lossCount++
			lossSum += trade.PnL
		}
	}

	if closed == 0 {
		return 0, 0
	}

	winRate = float64(wins) / float64(closed) * 100

	if wins == 0 {
		return winRate, 0
	}

	if lossCount == 0 {
		return winRate, types.ProfitFactorUnbounded
	}

	avgWin := winSum / float64(wins)
	avgLoss := lossSum / float64(lossCount)

	return winRate, avgWin / math.Abs(avgLoss)
}

func maxDrawdown(equity []types.EquityPoint) float64 {
	var (
		peak     float64
		drawdown float64
	)

	for _, point := range equity {
		if point.Value > peak {
			peak = point.Value
		}

		if peak <= 0 {
			continue
		}

		current := (peak - point.Value) / peak * 100
		// A short gapping through its stop can drag equity below zero;
		// drawdown still reports at most a full loss of the peak.
		if current > 100 {
			current = 100
		}

		if current > drawdown {
			drawdown = current
		}
	}

	return drawdown
}

func sharpeRatio(equity []types.EquityPoint) float64 {
	if len(equity) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(equity)-1)

	for i := 1; i < len(equity); i++ {
		previous := equity[i-1].Value
		if previous == 0 {
			continue
		}

		returns = append(returns, (equity[i].Value-previous)/previous)
	}

	if len(returns) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}

	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}

	variance /= float64(len(returns))

	risk := math.Sqrt(variance) * math.Sqrt(stepsPerYear)
	if risk == 0 {
		return 0
	}

	annualizedReturn := mean * stepsPerYear

	return annualizedReturn / risk
}

// buyAndHoldReturn is the percent return of buying the first bar's close and
// holding through the last bar. Used as a benchmark in the result metrics.
func buyAndHoldReturn(bars []types.MarketData) float64 {
	if len(bars) == 0 || bars[0].Close == 0 {
		return 0
	}

	first := bars[0].Close
	last := bars[len(bars)-1].Close

	return (last - first) / first * 100
}
