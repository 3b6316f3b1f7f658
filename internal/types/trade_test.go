package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type TradeTestSuite struct {
	suite.Suite
}

func TestTradeSuite(t *testing.T) {
	suite.Run(t, new(TradeTestSuite))
}

func (suite *TradeTestSuite) TestUnrealizedPnL() {
	tests := []struct {
		name     string
		position Position
		price    float64
		expected float64
	}{
		{
			name: "Long position in profit",
			position: Position{
				Symbol:     "BTCUSDT",
				Side:       PositionSideLong,
				EntryPrice: 100,
				Quantity:   2,
			},
			price:    110,
			expected: 20,
		},
		{
			name: "Long position in loss",
			position: Position{
				Symbol:     "BTCUSDT",
				Side:       PositionSideLong,
				EntryPrice: 100,
				Quantity:   2,
			},
			price:    95,
			expected: -10,
		},
		{
			name: "Short position profits when price falls",
			position: Position{
				Symbol:     "ETHUSDT",
				Side:       PositionSideShort,
				EntryPrice: 100,
				Quantity:   3,
			},
			price:    90,
			expected: 30,
		},
		{
			name: "Short position loses when price rises",
			position: Position{
				Symbol:     "ETHUSDT",
				Side:       PositionSideShort,
				EntryPrice: 100,
				Quantity:   3,
			},
			price:    105,
			expected: -15,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			suite.InDelta(tt.expected, tt.position.UnrealizedPnL(tt.price), 1e-9)
		})
	}
}

func (suite *TradeTestSuite) TestMarketValue() {
	position := Position{
		Symbol:     "SOLUSDT",
		Side:       PositionSideLong,
		EntryPrice: 20,
		Quantity:   12.5,
	}

	suite.InDelta(275.0, position.MarketValue(22), 1e-9)
}

func (suite *TradeTestSuite) TestStopLossBreached() {
	long := Position{Side: PositionSideLong, StopLossPrice: 95}
	suite.True(long.StopLossBreached(94))
	suite.True(long.StopLossBreached(95))
	suite.False(long.StopLossBreached(96))

	short := Position{Side: PositionSideShort, StopLossPrice: 105}
	suite.True(short.StopLossBreached(106))
	suite.True(short.StopLossBreached(105))
	suite.False(short.StopLossBreached(104))
}

func (suite *TradeTestSuite) TestTakeProfitBreached() {
	long := Position{Side: PositionSideLong, TakeProfitPrice: 110}
	suite.True(long.TakeProfitBreached(111))
	suite.False(long.TakeProfitBreached(109))

	short := Position{Side: PositionSideShort, TakeProfitPrice: 90}
	suite.True(short.TakeProfitBreached(89))
	suite.False(short.TakeProfitBreached(91))
}

func (suite *TradeTestSuite) TestTradeIsCloseAndIsWin() {
	open := Trade{
		Symbol: "BTCUSDT",
		Side:   PositionSideLong,
		Action: TradeActionOpen,
		Time:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Reason: TradeReasonStrategy,
	}
	suite.False(open.IsClose())
	suite.False(open.IsWin())

	win := Trade{
		Symbol: "BTCUSDT",
		Side:   PositionSideLong,
		Action: TradeActionClose,
		PnL:    42.5,
		Reason: TradeReasonTakeProfit,
	}
	suite.True(win.IsClose())
	suite.True(win.IsWin())

	loss := Trade{
		Symbol: "BTCUSDT",
		Side:   PositionSideLong,
		Action: TradeActionClose,
		PnL:    -10,
		Reason: TradeReasonStopLoss,
	}
	suite.True(loss.IsClose())
	suite.False(loss.IsWin())
}
