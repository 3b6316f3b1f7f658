// Package engine owns the backtest simulation loop: it replays historical
// bars in timestamp order, applies strategy signals to a virtual portfolio
// with stop-loss/take-profit/position-limit rules, and reduces the outcome
// into aggregate metrics. The engine keeps no state between runs; every run
// allocates its own Portfolio.
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emb-labs/tradesim/internal/logger"
	"github.com/emb-labs/tradesim/internal/strategy"
	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

const (
	// confidenceFloor is the minimum signal confidence required to open a position.
	confidenceFloor = 0.6
	// minPositionValue is the smallest viable entry in currency units.
	minPositionValue = 10.0
)

// Engine runs backtests. It is safe to share one Engine across concurrent
// runs because all mutable simulation state lives in per-run Portfolios.
type Engine struct {
	log *logger.Logger
}

// NewEngine creates an engine logging through the given logger. A nil logger
// falls back to a no-op logger.
func NewEngine(log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Engine{log: log}
}

// Run executes one backtest of config against the given per-symbol bar
// series. Bars must be ascending by time; series gaps are allowed. The run
// either completes fully and returns a terminal result or fails with an
// error; no partial result is ever returned.
func (e *Engine) Run(ctx context.Context, config types.BacktestConfig, series map[string][]types.MarketData) (types.BacktestResult, error) {
	if err := config.Validate(); err != nil {
		return types.BacktestResult{}, err
	}

	for _, symbol := range config.Symbols {
		if len(series[symbol]) == 0 {
			return types.BacktestResult{}, errors.Newf(errors.ErrCodeDataUnavailable, "no historical data for symbol %s", symbol)
		}
	}

	strat, err := strategy.New(config.Strategy)
	if err != nil {
		return types.BacktestResult{}, err
	}

	portfolio := NewPortfolio(config.InitialCapital, config.FeePct)
	timeline := mergeTimeline(config.Symbols, series)
	cursors := make(map[string]int, len(config.Symbols))
	lastPrices := make(map[string]float64, len(config.Symbols))

	e.log.Debug("Backtest started",
		zap.Strings("symbols", config.Symbols),
		zap.String("strategy", string(config.Strategy)),
		zap.Int("steps", len(timeline)),
	)

	for _, now := range timeline {
		if err := ctx.Err(); err != nil {
			return types.BacktestResult{}, errors.Wrap(errors.ErrCodeSimulation, "backtest cancelled", err)
		}

		prices := make(map[string]float64, len(config.Symbols))

		for _, symbol := range config.Symbols {
			bars := series[symbol]
			cursor := cursors[symbol]

			// A bar missing for this symbol at this step is skipped: open
			// positions stay open and the equity snapshot omits the symbol.
			if cursor >= len(bars) || !bars[cursor].Time.Equal(now) {
				continue
			}

			cursors[symbol] = cursor + 1
			bar := bars[cursor]
			prices[symbol] = bar.Close
			lastPrices[symbol] = bar.Close

			if err := e.processBar(portfolio, strat, config, bars, cursor); err != nil {
				e.log.Error("Simulation invariant violated",
					zap.String("symbol", symbol),
					zap.Time("bar_time", bar.Time),
					zap.Float64("cash", portfolio.Cash()),
					zap.Int("open_positions", portfolio.OpenPositionCount()),
					zap.Error(err),
				)

				return types.BacktestResult{}, errors.Wrap(errors.ErrCodeSimulation, "simulation failed", err)
			}
		}

		portfolio.SnapshotEquity(now, prices)
	}

	// Force-close everything still open at the last known price.
	if len(timeline) > 0 {
		endTime := timeline[len(timeline)-1]

		for _, symbol := range portfolio.OpenSymbols() {
			price, ok := lastPrices[symbol]
			if !ok {
				continue
			}

			if _, err := portfolio.ClosePosition(symbol, price, endTime, types.TradeReasonBacktestEnd); err != nil {
				return types.BacktestResult{}, errors.Wrap(errors.ErrCodeSimulation, "failed to close position at end of run", err)
			}
		}

		portfolio.rewriteLastEquity()
	}

	metrics := ComputeMetrics(config.InitialCapital, portfolio.Trades(), portfolio.Equity())
	metrics.BuyAndHoldReturn = buyAndHoldReturn(series[config.Symbols[0]])

	e.log.Debug("Backtest finished",
		zap.Float64("percent_return", metrics.PercentReturn),
		zap.Int("total_trades", metrics.TotalTrades),
	)

	return types.BacktestResult{
		ID:      uuid.New().String(),
		Config:  config,
		Metrics: metrics,
		Equity:  portfolio.Equity(),
		Trades:  portfolio.Trades(),
	}, nil
}

// processBar advances one symbol by one bar: exit rules first, then the
// strategy signal.
func (e *Engine) processBar(portfolio *Portfolio, strat strategy.Strategy, config types.BacktestConfig, bars []types.MarketData, i int) error {
	bar := bars[i]

	// Stop-loss and take-profit are checked against the close before any new
	// signal is considered, stop-loss first.
	if position, ok := portfolio.Position(bar.Symbol); ok {
		switch {
		case position.StopLossBreached(bar.Close):
			if _, err := portfolio.ClosePosition(bar.Symbol, bar.Close, bar.Time, types.TradeReasonStopLoss); err != nil {
				return err
			}
		case position.TakeProfitBreached(bar.Close):
			if _, err := portfolio.ClosePosition(bar.Symbol, bar.Close, bar.Time, types.TradeReasonTakeProfit); err != nil {
				return err
			}
		}
	}

	signal, err := strat.Evaluate(bars, i)
	if err != nil {
		return err
	}

	if signal.IsNone() {
		return nil
	}

	return e.applySignal(portfolio, config, signal.Unwrap())
}

// applySignal closes an opposing position or, when the symbol is flat,
// attempts an entry through the gate rules. A signal either closes or opens
// on a given bar, never both.
func (e *Engine) applySignal(portfolio *Portfolio, config types.BacktestConfig, signal types.Signal) error {
	if position, ok := portfolio.Position(signal.Symbol); ok {
		opposing := (signal.Type == types.SignalTypeSell && position.Side == types.PositionSideLong) ||
			(signal.Type == types.SignalTypeBuy && position.Side == types.PositionSideShort)
		if !opposing {
			return nil
		}

		_, err := portfolio.ClosePosition(signal.Symbol, signal.Price, signal.Time, types.TradeReasonStrategy)

		return err
	}

	if signal.Confidence < confidenceFloor {
		return nil
	}

	side := types.PositionSideLong
	if signal.Type == types.SignalTypeSell {
		if !config.AllowShorts {
			return nil
		}

		side = types.PositionSideShort
	}

	if portfolio.OpenPositionCount() >= config.MaxOpenTrades {
		return nil
	}

	value := portfolio.Cash() * config.TradeSize
	if value < minPositionValue {
		return nil
	}

	stopLoss, takeProfit := exitLevels(signal.Price, side, config.StopLossPct, config.TakeProfitPct)

	err := portfolio.OpenPosition(signal.Symbol, side, signal.Price, value, stopLoss, takeProfit, signal.Time, signal.Strategy)
	if err != nil && errors.HasCode(err, errors.ErrCodeInsufficientCash) {
		// Not an invariant violation: the entry is simply rejected.
		e.log.Debug("Entry rejected for insufficient cash",
			zap.String("symbol", signal.Symbol),
			zap.Float64("value", value),
		)

		return nil
	}

	return err
}

// exitLevels computes stop-loss and take-profit prices from the entry price,
// mirrored for shorts.
func exitLevels(price float64, side types.PositionSide, stopLossPct float64, takeProfitPct float64) (stopLoss float64, takeProfit float64) {
	if side == types.PositionSideShort {
		return price * (1 + stopLossPct/100), price * (1 - takeProfitPct/100)
	}

	return price * (1 - stopLossPct/100), price * (1 + takeProfitPct/100)
}

// mergeTimeline returns the ascending union of bar timestamps across symbols.
func mergeTimeline(symbols []string, series map[string][]types.MarketData) []time.Time {
	seen := make(map[int64]time.Time)

	for _, symbol := range symbols {
		for _, bar := range series[symbol] {
			seen[bar.Time.UnixNano()] = bar.Time
		}
	}

	timeline := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		timeline = append(timeline, t)
	}

	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Before(timeline[j]) })

	return timeline
}
