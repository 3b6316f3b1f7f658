package strategy

import (
	"fmt"

	"github.com/moznion/go-optional"

	"github.com/emb-labs/tradesim/internal/indicator"
	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

// AIConsensus is a deterministic momentum-plus-volume heuristic standing in
// for a richer consensus model. It buys when the intrabar return exceeds the
// momentum threshold on above-average volume while RSI still has headroom,
// and sells on the mirrored condition.
type AIConsensus struct {
	rsiPeriod         int
	volumePeriod      int
	momentumThreshold float64
	rsiCeiling        float64
	rsiFloor          float64
	confidence        float64
}

// NewAIConsensus creates the consensus strategy with its default thresholds.
func NewAIConsensus() *AIConsensus {
	return &AIConsensus{
		rsiPeriod:         14,
		volumePeriod:      20,
		momentumThreshold: 0.02,
		rsiCeiling:        70,
		rsiFloor:          30,
		confidence:        0.75,
	}
}

// Name returns the strategy identifier.
func (a *AIConsensus) Name() types.StrategyType {
	return types.StrategyAIConsensus
}

// Evaluate implements Strategy.
func (a *AIConsensus) Evaluate(bars []types.MarketData, i int) (optional.Option[types.Signal], error) {
	rsiValue, err := indicator.RSI(bars, i, a.rsiPeriod)
	if err != nil {
		if errors.IsInsufficientDataError(err) {
			return optional.None[types.Signal](), nil
		}

		return optional.None[types.Signal](), err
	}

	avgVolume, err := indicator.AverageVolume(bars, i, a.volumePeriod)
	if err != nil {
		if errors.IsInsufficientDataError(err) {
			return optional.None[types.Signal](), nil
		}

		return optional.None[types.Signal](), err
	}

	bar := bars[i]
	if bar.Open == 0 {
		return optional.None[types.Signal](), nil
	}

	intrabarReturn := (bar.Close - bar.Open) / bar.Open
	volumeSpike := bar.Volume > avgVolume

	if intrabarReturn > a.momentumThreshold && volumeSpike && rsiValue < a.rsiCeiling {
		reason := fmt.Sprintf("momentum %.2f%% on %.0f vs avg %.0f volume, RSI %.1f",
			intrabarReturn*100, bar.Volume, avgVolume, rsiValue)

		return signalAt(bars, i, a.Name(), types.SignalTypeBuy, a.confidence, reason), nil
	}

	if intrabarReturn < -a.momentumThreshold && volumeSpike && rsiValue > a.rsiFloor {
		reason := fmt.Sprintf("momentum %.2f%% on %.0f vs avg %.0f volume, RSI %.1f",
			intrabarReturn*100, bar.Volume, avgVolume, rsiValue)

		return signalAt(bars, i, a.Name(), types.SignalTypeSell, a.confidence, reason), nil
	}

	return optional.None[types.Signal](), nil
}
