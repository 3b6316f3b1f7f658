package engine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

type OptimizerTestSuite struct {
	suite.Suite

	engine *Engine
	series map[string][]types.MarketData
}

func TestOptimizerSuite(t *testing.T) {
	suite.Run(t, new(OptimizerTestSuite))
}

func (suite *OptimizerTestSuite) SetupTest() {
	suite.engine = NewEngine(nil)
	suite.series = map[string][]types.MarketData{"BTCUSDT": risingSeries("BTCUSDT", 90)}
}

func (suite *OptimizerTestSuite) optimizerConfig() types.BacktestConfig {
	config := baseConfig("BTCUSDT")
	config.Strategy = types.StrategySMACrossover

	return config
}

func (suite *OptimizerTestSuite) TestEmptyRangesRunBaseConfigOnce() {
	result, err := suite.engine.Optimize(context.Background(), suite.optimizerConfig(), nil, suite.series, OptimizeOptions{})
	suite.NoError(err)

	suite.Len(result.Entries, 1)
	suite.Empty(result.Entries[0].Params)
	suite.Equal(string(RankByPercentReturn), result.Ranking)
}

func (suite *OptimizerTestSuite) TestGridCardinality() {
	ranges := map[string][]any{
		"stop_loss_pct":   {3.0, 5.0, 8.0},
		"take_profit_pct": {10.0, 20.0},
		"trade_size":      {0.1, 0.25},
	}

	result, err := suite.engine.Optimize(context.Background(), suite.optimizerConfig(), ranges, suite.series, OptimizeOptions{})
	suite.NoError(err)
	suite.Len(result.Entries, 12)

	// Every combination is distinct.
	seen := make(map[[3]float64]bool)
	for _, entry := range result.Entries {
		key := [3]float64{
			entry.Params["stop_loss_pct"].(float64),
			entry.Params["take_profit_pct"].(float64),
			entry.Params["trade_size"].(float64),
		}
		suite.False(seen[key])
		seen[key] = true
	}
}

func (suite *OptimizerTestSuite) TestEntriesSortedDescending() {
	ranges := map[string][]any{
		"trade_size": {0.05, 0.1, 0.25, 0.5},
	}

	result, err := suite.engine.Optimize(context.Background(), suite.optimizerConfig(), ranges, suite.series, OptimizeOptions{
		Ranking: RankByPercentReturn,
	})
	suite.NoError(err)
	suite.Len(result.Entries, 4)

	for i := 1; i < len(result.Entries); i++ {
		suite.GreaterOrEqual(result.Entries[i-1].Metrics.PercentReturn, result.Entries[i].Metrics.PercentReturn)
	}
}

func (suite *OptimizerTestSuite) TestTopNTruncates() {
	ranges := map[string][]any{
		"trade_size": {0.05, 0.1, 0.25, 0.5},
	}

	result, err := suite.engine.Optimize(context.Background(), suite.optimizerConfig(), ranges, suite.series, OptimizeOptions{
		TopN: 2,
	})
	suite.NoError(err)
	suite.Len(result.Entries, 2)
}

func (suite *OptimizerTestSuite) TestFailedCombinationIsDropped() {
	// A negative initial capital fails that combination's config validation
	// inside Run without touching its siblings.
	ranges := map[string][]any{
		"initial_capital": {10000.0, -1.0},
	}

	result, err := suite.engine.Optimize(context.Background(), suite.optimizerConfig(), ranges, suite.series, OptimizeOptions{})
	suite.NoError(err)

	suite.Len(result.Entries, 1)
	suite.Equal(10000.0, result.Entries[0].Params["initial_capital"])
}

func (suite *OptimizerTestSuite) TestUnknownParameterName() {
	ranges := map[string][]any{
		"no_such_knob": {1.0},
	}

	_, err := suite.engine.Optimize(context.Background(), suite.optimizerConfig(), ranges, suite.series, OptimizeOptions{})
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownRangeKey))
}

func (suite *OptimizerTestSuite) TestEmptyValueList() {
	ranges := map[string][]any{
		"trade_size": {},
	}

	_, err := suite.engine.Optimize(context.Background(), suite.optimizerConfig(), ranges, suite.series, OptimizeOptions{})
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeEmptyGrid))
}

func (suite *OptimizerTestSuite) TestInvalidBaseConfigFailsFast() {
	config := suite.optimizerConfig()
	config.InitialCapital = 0

	_, err := suite.engine.Optimize(context.Background(), config, nil, suite.series, OptimizeOptions{})
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfig))
}

func (suite *OptimizerTestSuite) TestProgressCallback() {
	ranges := map[string][]any{
		"trade_size": {0.1, 0.2, 0.3},
	}

	var calls atomic.Int64
	var lastTotal atomic.Int64

	progress := OnOptimizeProgress(func(completed, total int) {
		calls.Add(1)
		lastTotal.Store(int64(total))
	})

	_, err := suite.engine.Optimize(context.Background(), suite.optimizerConfig(), ranges, suite.series, OptimizeOptions{
		Parallelism: 1,
		OnProgress:  optional.Some(progress),
	})
	suite.NoError(err)

	suite.Equal(int64(3), calls.Load())
	suite.Equal(int64(3), lastTotal.Load())
}

func (suite *OptimizerTestSuite) TestExpandGridDeterministic() {
	ranges := map[string][]any{
		"stop_loss_pct": {3.0, 5.0},
		"trade_size":    {0.1, 0.2},
	}

	first, err := expandGrid(ranges)
	suite.NoError(err)

	second, err := expandGrid(ranges)
	suite.NoError(err)

	suite.Equal(first, second)
	suite.Len(first, 4)

	// Sorted names means stop_loss_pct is the outer loop.
	suite.Equal(3.0, first[0]["stop_loss_pct"])
	suite.Equal(0.1, first[0]["trade_size"])
	suite.Equal(3.0, first[1]["stop_loss_pct"])
	suite.Equal(0.2, first[1]["trade_size"])
	suite.Equal(5.0, first[2]["stop_loss_pct"])
}

func (suite *OptimizerTestSuite) TestApplyParamsLeavesBaseUntouched() {
	base := suite.optimizerConfig()
	baseSize := base.TradeSize

	config, err := applyParams(base, map[string]any{
		"trade_size": 0.42,
		"strategy":   "rsi_overbought_oversold",
	})
	suite.NoError(err)

	suite.Equal(0.42, config.TradeSize)
	suite.Equal(types.StrategyRSIOverbought, config.Strategy)
	suite.Equal(baseSize, base.TradeSize)
}

func (suite *OptimizerTestSuite) TestApplyParamsTypeMismatch() {
	_, err := applyParams(suite.optimizerConfig(), map[string]any{
		"trade_size": "lots",
	})
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownRangeKey))
}

func (suite *OptimizerTestSuite) TestRankingBySharpe() {
	ranges := map[string][]any{
		"trade_size": {0.1, 0.3},
	}

	result, err := suite.engine.Optimize(context.Background(), suite.optimizerConfig(), ranges, suite.series, OptimizeOptions{
		Ranking: RankBySharpeRatio,
	})
	suite.NoError(err)
	suite.Equal(string(RankBySharpeRatio), result.Ranking)

	for i := 1; i < len(result.Entries); i++ {
		suite.GreaterOrEqual(result.Entries[i-1].Metrics.SharpeRatio, result.Entries[i].Metrics.SharpeRatio)
	}
}
