package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Position is the open holding for one symbol. A symbol holds at most one
// open position at a time; the position is removed when it closes.
type Position struct {
	Symbol          string       `yaml:"symbol" json:"symbol"`
	Side            PositionSide `yaml:"side" json:"side"`
	EntryPrice      float64      `yaml:"entry_price" json:"entry_price"`
	Quantity        float64      `yaml:"quantity" json:"quantity"`
	StopLossPrice   float64      `yaml:"stop_loss_price" json:"stop_loss_price"`
	TakeProfitPrice float64      `yaml:"take_profit_price" json:"take_profit_price"`
	OpenTime        time.Time    `yaml:"open_time" json:"open_time"`
	// Strategy is the strategy that opened this position.
	Strategy StrategyType `yaml:"strategy" json:"strategy"`
}

// MarketValue returns the mark-to-market value of the position at the given price.
func (p *Position) MarketValue(price float64) float64 {
	value, _ := decimal.NewFromFloat(p.Quantity).Mul(decimal.NewFromFloat(price)).Float64()

	return value
}

// UnrealizedPnL returns the sign-adjusted open profit at the given price.
// For shorts the pnl is the opposite of longs: a price above entry is a loss.
func (p *Position) UnrealizedPnL(price float64) float64 {
	entry := decimal.NewFromFloat(p.EntryPrice).Mul(decimal.NewFromFloat(p.Quantity))
	mark := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(p.Quantity))

	var pnl decimal.Decimal
	if p.Side == PositionSideShort {
		pnl = entry.Sub(mark)
	} else {
		pnl = mark.Sub(entry)
	}

	result, _ := pnl.Float64()

	return result
}

// StopLossBreached reports whether the given price crosses the stop level.
func (p *Position) StopLossBreached(price float64) bool {
	if p.Side == PositionSideShort {
		return price >= p.StopLossPrice
	}

	return price <= p.StopLossPrice
}

// TakeProfitBreached reports whether the given price crosses the take-profit level.
func (p *Position) TakeProfitBreached(price float64) bool {
	if p.Side == PositionSideShort {
		return price <= p.TakeProfitPrice
	}

	return price >= p.TakeProfitPrice
}

// TradeAction distinguishes entry records from exit records in the trade log.
type TradeAction string

const (
	TradeActionOpen  TradeAction = "open"
	TradeActionClose TradeAction = "close"
)

const (
	TradeReasonStrategy    string = "strategy"
	TradeReasonStopLoss    string = "stop_loss"
	TradeReasonTakeProfit  string = "take_profit"
	TradeReasonBacktestEnd string = "backtest_end"
)

// Trade is an immutable audit record appended whenever a position opens or closes.
// Trades carry no synthetic identity: rerunning the same config over the same
// bars reproduces the log exactly.
type Trade struct {
	Symbol   string       `yaml:"symbol" json:"symbol" csv:"symbol"`
	Side     PositionSide `yaml:"side" json:"side" csv:"side"`
	Action   TradeAction  `yaml:"action" json:"action" csv:"action"`
	Price    float64      `yaml:"price" json:"price" csv:"price"`
	Quantity float64      `yaml:"quantity" json:"quantity" csv:"quantity"`
	Value    float64      `yaml:"value" json:"value" csv:"value"`
	Fee      float64      `yaml:"fee" json:"fee" csv:"fee"`
	// PnL is the realized profit for close records. Always zero on open records.
	PnL float64 `yaml:"pnl" json:"pnl" csv:"pnl"`
	// HoldingTime is how long the position was open. Set on close records only.
	HoldingTime time.Duration `yaml:"holding_time" json:"holding_time" csv:"holding_time"`
	Time        time.Time     `yaml:"time" json:"time" csv:"time"`
	Reason      string        `yaml:"reason" json:"reason" csv:"reason"`
}

// IsClose reports whether this record closed a position.
func (t *Trade) IsClose() bool {
	return t.Action == TradeActionClose
}

// IsWin reports whether this record is a closing trade with positive realized pnl.
func (t *Trade) IsWin() bool {
	return t.IsClose() && t.PnL > 0
}
