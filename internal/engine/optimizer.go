package engine

import (
	"context"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

// RankingMetric selects which metric orders optimizer results.
type RankingMetric string

const (
	RankByPercentReturn RankingMetric = "percent_return"
	RankByWinRate       RankingMetric = "win_rate"
	RankBySharpeRatio   RankingMetric = "sharpe_ratio"
	RankByProfitFactor  RankingMetric = "profit_factor"
)

// OnOptimizeProgress reports combinations completed out of the total.
type OnOptimizeProgress func(completed int, total int)

// OptimizeOptions tunes a grid search. The zero value ranks by percent
// return, runs one combination per CPU, and returns every combination.
type OptimizeOptions struct {
	// Parallelism bounds the worker pool. Values < 1 mean NumCPU.
	Parallelism int
	// TopN truncates the ranked result. Values < 1 mean no truncation.
	TopN int
	// Ranking selects the sort metric. Empty means percent return.
	Ranking RankingMetric
	// OnProgress, when set, is called after each combination finishes.
	OnProgress optional.Option[OnOptimizeProgress]
}

// Optimize expands ranges into the full Cartesian product of parameter
// combinations, runs one independent backtest per combination against the
// given series, and returns every surviving result sorted descending by the
// ranking metric. Failed combinations are dropped, not fatal. Empty ranges
// run exactly one combination: the base config itself.
//
// This is deliberately the brute-force grid search: callers with large
// ranges should expect the product of all range sizes in backtest runs.
func (e *Engine) Optimize(ctx context.Context, baseConfig types.BacktestConfig, ranges map[string][]any, series map[string][]types.MarketData, opts OptimizeOptions) (types.OptimizationResult, error) {
	if err := baseConfig.Validate(); err != nil {
		return types.OptimizationResult{}, err
	}

	combinations, err := expandGrid(ranges)
	if err != nil {
		return types.OptimizationResult{}, err
	}

	ranking := opts.Ranking
	if ranking == "" {
		ranking = RankByPercentReturn
	}

	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = runtime.NumCPU()
	}

	e.log.Info("Optimization started",
		zap.Int("combinations", len(combinations)),
		zap.Int("parallelism", parallelism),
		zap.String("ranking", string(ranking)),
	)

	// One slot per combination; failed runs leave their slot nil.
	results := make([]*types.OptimizationEntry, len(combinations))

	var completed atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(parallelism)

	for i, params := range combinations {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			config, err := applyParams(baseConfig, params)
			if err != nil {
				return err
			}

			result, err := e.Run(groupCtx, config, series)
			if err == nil {
				results[i] = &types.OptimizationEntry{
					Params:  params,
					Metrics: result.Metrics,
				}
			} else {
				// Per-combination failures are isolated from the batch.
				e.log.Warn("Optimization combination failed",
					zap.Any("params", params),
					zap.Error(err),
				)
			}

			done := int(completed.Add(1))
			if opts.OnProgress.IsSome() {
				opts.OnProgress.Unwrap()(done, len(combinations))
			}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return types.OptimizationResult{}, err
	}

	entries := make([]types.OptimizationEntry, 0, len(results))
	for _, entry := range results {
		if entry != nil {
			entries = append(entries, *entry)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return rankingValue(entries[i].Metrics, ranking) > rankingValue(entries[j].Metrics, ranking)
	})

	if opts.TopN > 0 && len(entries) > opts.TopN {
		entries = entries[:opts.TopN]
	}

	return types.OptimizationResult{
		Ranking: string(ranking),
		Entries: entries,
	}, nil
}

func rankingValue(metrics types.Metrics, ranking RankingMetric) float64 {
	switch ranking {
	case RankByWinRate:
		return metrics.WinRate
	case RankBySharpeRatio:
		return metrics.SharpeRatio
	case RankByProfitFactor:
		return metrics.ProfitFactor
	default:
		return metrics.PercentReturn
	}
}

// expandGrid builds the Cartesian product of all ranges depth-first.
// Parameter names are visited in sorted order so the expansion is
// deterministic.
func expandGrid(ranges map[string][]any) ([]map[string]any, error) {
	names := make([]string, 0, len(ranges))

	for name, values := range ranges {
		if len(values) == 0 {
			return nil, errors.Newf(errors.ErrCodeEmptyGrid, "parameter %s has no candidate values", name)
		}

		names = append(names, name)
	}

	sort.Strings(names)

	var combinations []map[string]any

	current := make(map[string]any, len(names))

	var expand func(depth int)
	expand = func(depth int) {
		if depth == len(names) {
			combination := make(map[string]any, len(current))
			for name, value := range current {
				combination[name] = value
			}

			combinations = append(combinations, combination)

			return
		}

		name := names[depth]
		for _, value := range ranges[name] {
			current[name] = value
			expand(depth + 1)
		}

		delete(current, name)
	}

	expand(0)

	return combinations, nil
}

// applyParams merges one parameter combination onto a copy of the base config.
func applyParams(base types.BacktestConfig, params map[string]any) (types.BacktestConfig, error) {
	config := base
	config.Symbols = append([]string(nil), base.Symbols...)

	for name, value := range params {
		switch name {
		case "initial_capital":
			number, err := asFloat(name, value)
			if err != nil {
				return types.BacktestConfig{}, err
			}

			config.InitialCapital = number
		case "trade_size":
			number, err := asFloat(name, value)
			if err != nil {
				return types.BacktestConfig{}, err
			}

			config.TradeSize = number
		case "stop_loss_pct":
			number, err := asFloat(name, value)
			if err != nil {
				return types.BacktestConfig{}, err
			}

			config.StopLossPct = number
		case "take_profit_pct":
			number, err := asFloat(name, value)
			if err != nil {
				return types.BacktestConfig{}, err
			}

			config.TakeProfitPct = number
		case "fee_pct":
			number, err := asFloat(name, value)
			if err != nil {
				return types.BacktestConfig{}, err
			}

			config.FeePct = number
		case "max_open_trades":
			number, err := asFloat(name, value)
			if err != nil {
				return types.BacktestConfig{}, err
			}

			config.MaxOpenTrades = int(number)
		case "strategy":
			text, ok := value.(string)
			if !ok {
				return types.BacktestConfig{}, errors.Newf(errors.ErrCodeUnknownRangeKey, "parameter strategy expects a string, got %T", value)
			}

			config.Strategy = types.StrategyType(text)
		case "allow_shorts":
			flag, ok := value.(bool)
			if !ok {
				return types.BacktestConfig{}, errors.Newf(errors.ErrCodeUnknownRangeKey, "parameter allow_shorts expects a bool, got %T", value)
			}

			config.AllowShorts = flag
		case "interval":
			text, ok := value.(string)
			if !ok {
				return types.BacktestConfig{}, errors.Newf(errors.ErrCodeUnknownRangeKey, "parameter interval expects a string, got %T", value)
			}

			config.Interval = types.Interval(text)
		default:
			return types.BacktestConfig{}, errors.Newf(errors.ErrCodeUnknownRangeKey, "unknown optimization parameter: %s", name)
		}
	}

	return config, nil
}

func asFloat(name string, value any) (float64, error) {
	switch number := value.(type) {
	case float64:
		return number, nil
	case float32:
		return float64(number), nil
	case int:
		return float64(number), nil
	case int64:
		return float64(number), nil
	default:
		return 0, errors.Newf(errors.ErrCodeUnknownRangeKey, "parameter %s expects a number, got %T", name, value)
	}
}
