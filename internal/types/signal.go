package types

import "time"

type SignalType string

const (
	// SignalTypeBuy tells the simulator to open a long position (or cover a short).
	SignalTypeBuy SignalType = "buy"
	// SignalTypeSell tells the simulator to close a long position (or open a short).
	SignalTypeSell SignalType = "sell"
)

// StrategyType identifies one of the built-in strategy variants.
type StrategyType string

const (
	StrategyAIConsensus   StrategyType = "ai_consensus"
	StrategySMACrossover  StrategyType = "sma_crossover"
	StrategyRSIOverbought StrategyType = "rsi_overbought_oversold"
)

// AllStrategies lists every built-in strategy.
var AllStrategies = []StrategyType{StrategyAIConsensus, StrategySMACrossover, StrategyRSIOverbought}

// Signal is a transient per-bar trade recommendation produced by a strategy.
// It is consumed by the simulator on the step that produced it and never persisted.
type Signal struct {
	// Symbol is the instrument the signal applies to.
	Symbol string
	// Type is the recommended action.
	Type SignalType
	// Price is the bar close the signal was computed from.
	Price float64
	// Time is the bar time of the signal.
	Time time.Time
	// Confidence is the strategy's conviction in [0,1]. The simulator
	// rejects entries below its confidence floor.
	Confidence float64
	// Reason is a human-readable explanation of the signal.
	Reason string
	// Strategy is the strategy that produced the signal.
	Strategy StrategyType
}
