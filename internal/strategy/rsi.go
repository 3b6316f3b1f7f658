package strategy

import (
	"fmt"

	"github.com/moznion/go-optional"

	"github.com/emb-labs/tradesim/internal/indicator"
	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

// RSIOverboughtOversold buys oversold bars and sells overbought bars.
type RSIOverboughtOversold struct {
	period         int
	lowerThreshold float64
	upperThreshold float64
	confidence     float64
}

// NewRSIOverboughtOversold creates the RSI strategy with the standard
// 14-period window and 30/70 thresholds.
func NewRSIOverboughtOversold() *RSIOverboughtOversold {
	return &RSIOverboughtOversold{
		period:         14,
		lowerThreshold: 30,
		upperThreshold: 70,
		confidence:     0.8,
	}
}

// Name returns the strategy identifier.
func (r *RSIOverboughtOversold) Name() types.StrategyType {
	return types.StrategyRSIOverbought
}

// Evaluate implements Strategy.
func (r *RSIOverboughtOversold) Evaluate(bars []types.MarketData, i int) (optional.Option[types.Signal], error) {
	rsiValue, err := indicator.RSI(bars, i, r.period)
	if err != nil {
		if errors.IsInsufficientDataError(err) {
			return optional.None[types.Signal](), nil
		}

		return optional.None[types.Signal](), err
	}

	switch {
	case rsiValue < r.lowerThreshold:
		reason := fmt.Sprintf("RSI oversold (value=%.2f)", rsiValue)

		return signalAt(bars, i, r.Name(), types.SignalTypeBuy, r.confidence, reason), nil
	case rsiValue > r.upperThreshold:
		reason := fmt.Sprintf("RSI overbought (value=%.2f)", rsiValue)

		return signalAt(bars, i, r.Name(), types.SignalTypeSell, r.confidence, reason), nil
	default:
		return optional.None[types.Signal](), nil
	}
}
