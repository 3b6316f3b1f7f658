package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

// Portfolio is the mutable state of one simulation run: cash, open positions,
// the append-only trade log, and the equity curve. Each run owns its own
// Portfolio instance, which is what makes optimizer combinations safe to run
// in parallel without locking.
type Portfolio struct {
	cash      float64
	positions map[string]types.Position
	trades    []types.Trade
	equity    []types.EquityPoint
	feePct    float64
}

// NewPortfolio creates a portfolio holding the given starting cash.
func NewPortfolio(initialCapital float64, feePct float64) *Portfolio {
	return &Portfolio{
		cash:      initialCapital,
		positions: make(map[string]types.Position),
		trades:    nil,
		equity:    nil,
		feePct:    feePct,
	}
}

// Cash returns the current uncommitted cash.
func (p *Portfolio) Cash() float64 {
	return p.cash
}

// Position returns the open position for the symbol, if any.
func (p *Portfolio) Position(symbol string) (types.Position, bool) {
	position, ok := p.positions[symbol]

	return position, ok
}

// OpenPositionCount returns the number of currently open positions.
func (p *Portfolio) OpenPositionCount() int {
	return len(p.positions)
}

// OpenSymbols returns the symbols with an open position, sorted so callers
// iterating over them produce the same trade order on every run.
func (p *Portfolio) OpenSymbols() []string {
	symbols := make([]string, 0, len(p.positions))
	for symbol := range p.positions {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	return symbols
}

// Trades returns the trade log recorded so far.
func (p *Portfolio) Trades() []types.Trade {
	return p.trades
}

// Equity returns the equity curve recorded so far.
func (p *Portfolio) Equity() []types.EquityPoint {
	return p.equity
}

// OpenPosition opens a new position for the symbol and appends the entry trade.
// Long entries deduct the position value plus the entry fee from cash; short
// entries deduct only the fee (collateral accounting is intentionally
// simplified, not margin-correct).
func (p *Portfolio) OpenPosition(symbol string, side types.PositionSide, price float64, value float64, stopLoss float64, takeProfit float64, at time.Time, strategy types.StrategyType) error {
	if _, ok := p.positions[symbol]; ok {
		return errors.Newf(errors.ErrCodePositionDuplicate, "position already open for symbol %s", symbol)
	}

	if price <= 0 {
		return errors.Newf(errors.ErrCodeSimulation, "cannot open %s at non-positive price %f", symbol, price)
	}

	quantity, _ := decimal.NewFromFloat(value).Div(decimal.NewFromFloat(price)).Float64()
	fee := value * p.feePct / 100

	if side == types.PositionSideLong {
		if value+fee > p.cash {
			return errors.Newf(errors.ErrCodeInsufficientCash, "entry cost %.2f exceeds cash %.2f", value+fee, p.cash)
		}

		p.cash -= value + fee
	} else {
		if fee > p.cash {
			return errors.Newf(errors.ErrCodeInsufficientCash, "entry fee %.2f exceeds cash %.2f", fee, p.cash)
		}

		p.cash -= fee
	}

	p.positions[symbol] = types.Position{
		Symbol:          symbol,
		Side:            side,
		EntryPrice:      price,
		Quantity:        quantity,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		OpenTime:        at,
		Strategy:        strategy,
	}

	p.trades = append(p.trades, types.Trade{
		Symbol:   symbol,
		Side:     side,
		Action:   types.TradeActionOpen,
		Price:    price,
		Quantity: quantity,
		Value:    value,
		Fee:      fee,
		Time:     at,
		Reason:   types.TradeReasonStrategy,
	})

	return nil
}

// ClosePosition closes the open position for the symbol at the given price,
// credits cash, and appends the closing trade with its realized, sign-adjusted
// pnl. Closing a symbol without an open position is an invariant violation.
func (p *Portfolio) ClosePosition(symbol string, price float64, at time.Time, reason string) (types.Trade, error) {
	position, ok := p.positions[symbol]
	if !ok {
		return types.Trade{}, errors.Newf(errors.ErrCodePositionNotFound, "no open position for symbol %s", symbol)
	}

	exitValue := position.MarketValue(price)
	pnl := position.UnrealizedPnL(price)
	fee := exitValue * p.feePct / 100

	if position.Side == types.PositionSideLong {
		p.cash += exitValue - fee
	} else {
		// Shorts never committed the position value, so only the realized
		// pnl and the exit fee move cash.
		p.cash += pnl - fee
	}

	delete(p.positions, symbol)

	trade := types.Trade{
		Symbol:      symbol,
		Side:        position.Side,
		Action:      types.TradeActionClose,
		Price:       price,
		Quantity:    position.Quantity,
		Value:       exitValue,
		Fee:         fee,
		PnL:         pnl,
		HoldingTime: at.Sub(position.OpenTime),
		Time:        at,
		Reason:      reason,
	}
	p.trades = append(p.trades, trade)

	return trade, nil
}

// MarkToMarket returns cash plus the equity contribution of every open
// position priced by the given map. Longs contribute their market value,
// shorts their unrealized pnl (no collateral was committed at entry).
// A position whose symbol is missing from prices contributes nothing for
// this step.
func (p *Portfolio) MarkToMarket(prices map[string]float64) float64 {
	equity := p.cash

	for symbol, position := range p.positions {
		price, ok := prices[symbol]
		if !ok {
			continue
		}

		if position.Side == types.PositionSideShort {
			equity += position.UnrealizedPnL(price)
		} else {
			equity += position.MarketValue(price)
		}
	}

	return equity
}

// SnapshotEquity appends one equity-curve point valued at the given prices.
func (p *Portfolio) SnapshotEquity(at time.Time, prices map[string]float64) {
	p.equity = append(p.equity, types.EquityPoint{
		Time:  at,
		Value: p.MarkToMarket(prices),
	})
}

// rewriteLastEquity replaces the value of the most recent equity point.
// Used after end-of-run forced closes so the final point reflects exit fees.
func (p *Portfolio) rewriteLastEquity() {
	if len(p.equity) == 0 {
		return
	}

	p.equity[len(p.equity)-1].Value = p.cash
}
