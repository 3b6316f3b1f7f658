// Package strategy maps per-bar indicator state to trade signals.
//
// Strategies are stateless: position and portfolio management is handled by
// the simulator, and a strategy only inspects the bar history for one symbol
// up to the current index.
package strategy

import (
	"github.com/moznion/go-optional"

	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

// Strategy evaluates one symbol's bar history at one index.
type Strategy interface {
	// Name returns the strategy identifier.
	Name() types.StrategyType
	// Evaluate inspects bars[:i+1] and returns a signal for bar i, or None
	// when the bar has insufficient history or no condition fires.
	Evaluate(bars []types.MarketData, i int) (optional.Option[types.Signal], error)
}

// New constructs the built-in strategy registered under the given identifier.
func New(strategyType types.StrategyType) (Strategy, error) {
	switch strategyType {
	case types.StrategySMACrossover:
		return NewSMACrossover(), nil
	case types.StrategyRSIOverbought:
		return NewRSIOverboughtOversold(), nil
	case types.StrategyAIConsensus:
		return NewAIConsensus(), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidStrategy, "unknown strategy: %s", string(strategyType))
	}
}

func signalAt(bars []types.MarketData, i int, strategyType types.StrategyType, signalType types.SignalType, confidence float64, reason string) optional.Option[types.Signal] {
	return optional.Some(types.Signal{
		Symbol:     bars[i].Symbol,
		Type:       signalType,
		Price:      bars[i].Close,
		Time:       bars[i].Time,
		Confidence: confidence,
		Reason:     reason,
		Strategy:   strategyType,
	})
}
