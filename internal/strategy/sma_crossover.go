package strategy

import (
	"fmt"

	"github.com/moznion/go-optional"

	"github.com/emb-labs/tradesim/internal/indicator"
	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

// SMACrossover buys when the short moving average sits above the long moving
// average on the current bar and sells when it sits below.
type SMACrossover struct {
	shortPeriod int
	longPeriod  int
	confidence  float64
}

// NewSMACrossover creates the crossover strategy with its standard 20/50 windows.
func NewSMACrossover() *SMACrossover {
	return &SMACrossover{
		shortPeriod: 20,
		longPeriod:  50,
		confidence:  0.7,
	}
}

// Name returns the strategy identifier.
func (s *SMACrossover) Name() types.StrategyType {
	return types.StrategySMACrossover
}

// Evaluate implements Strategy.
func (s *SMACrossover) Evaluate(bars []types.MarketData, i int) (optional.Option[types.Signal], error) {
	shortMA, err := indicator.SMA(bars, i, s.shortPeriod)
	if err != nil {
		if errors.IsInsufficientDataError(err) {
			return optional.None[types.Signal](), nil
		}

		return optional.None[types.Signal](), err
	}

	longMA, err := indicator.SMA(bars, i, s.longPeriod)
	if err != nil {
		if errors.IsInsufficientDataError(err) {
			return optional.None[types.Signal](), nil
		}

		return optional.None[types.Signal](), err
	}

	switch {
	case shortMA > longMA:
		reason := fmt.Sprintf("SMA(%d)=%.4f above SMA(%d)=%.4f", s.shortPeriod, shortMA, s.longPeriod, longMA)

		return signalAt(bars, i, s.Name(), types.SignalTypeBuy, s.confidence, reason), nil
	case shortMA < longMA:
		reason := fmt.Sprintf("SMA(%d)=%.4f below SMA(%d)=%.4f", s.shortPeriod, shortMA, s.longPeriod, longMA)

		return signalAt(bars, i, s.Name(), types.SignalTypeSell, s.confidence, reason), nil
	default:
		return optional.None[types.Signal](), nil
	}
}
