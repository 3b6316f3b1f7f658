package types

import "time"

// Metrics are the aggregate statistics of one completed run.
// Every field is guaranteed finite: divisions are guarded in the calculator
// and the no-loss profit factor is reported as ProfitFactorUnbounded.
type Metrics struct {
	// PercentReturn is (final equity - initial capital) / initial capital * 100.
	PercentReturn float64 `yaml:"percent_return" json:"percent_return"`
	// WinRate is the percentage of closed trades with positive pnl.
	WinRate float64 `yaml:"win_rate" json:"win_rate"`
	// MaxDrawdown is the largest percentage decline from a running equity peak.
	MaxDrawdown float64 `yaml:"max_drawdown" json:"max_drawdown"`
	// ProfitFactor is avg win / |avg loss|.
	ProfitFactor float64 `yaml:"profit_factor" json:"profit_factor"`
	// TotalTrades counts every trade record, entries and exits.
	TotalTrades int `yaml:"total_trades" json:"total_trades"`
	// SharpeRatio is annualized return over annualized volatility of per-step returns.
	SharpeRatio float64 `yaml:"sharpe_ratio" json:"sharpe_ratio"`
	// BuyAndHoldReturn is the percent return of holding the first symbol for the whole run.
	BuyAndHoldReturn float64 `yaml:"buy_and_hold_return" json:"buy_and_hold_return"`
	// TotalFees is the sum of all fees paid during the run.
	TotalFees float64 `yaml:"total_fees" json:"total_fees"`
}

// ProfitFactorUnbounded is reported when a run has winners and no losers.
// A finite sentinel keeps serialized results well-defined.
const ProfitFactorUnbounded = 1e9

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Time  time.Time `yaml:"time" json:"time"`
	Value float64   `yaml:"value" json:"value"`
}

// BacktestResult is the terminal, read-only output of one run.
type BacktestResult struct {
	ID      string         `yaml:"id" json:"id"`
	Config  BacktestConfig `yaml:"config" json:"config"`
	Metrics Metrics        `yaml:"metrics" json:"metrics"`
	Equity  []EquityPoint  `yaml:"equity" json:"equity"`
	Trades  []Trade        `yaml:"trades" json:"trades"`
}

// OptimizationEntry pairs one parameter combination with the metrics it produced.
type OptimizationEntry struct {
	Params  map[string]any `yaml:"params" json:"params"`
	Metrics Metrics        `yaml:"metrics" json:"metrics"`
}

// OptimizationResult is the ranked outcome of a grid search, sorted descending
// by the ranking metric.
type OptimizationResult struct {
	Ranking string              `yaml:"ranking" json:"ranking"`
	Entries []OptimizationEntry `yaml:"entries" json:"entries"`
}
