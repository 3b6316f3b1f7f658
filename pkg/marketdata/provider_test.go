package marketdata

import (
	"testing"
	"time"

	"github.com/polygon-io/client-go/rest/models"
	"github.com/stretchr/testify/suite"

	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

type ProviderTestSuite struct {
	suite.Suite
}

func TestProviderSuite(t *testing.T) {
	suite.Run(t, new(ProviderTestSuite))
}

func (suite *ProviderTestSuite) TestNormalizeBarsSortsAndClips() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)

	bars := []types.MarketData{
		{Symbol: "BTCUSDT", Time: start.Add(2 * time.Hour), Close: 3},
		{Symbol: "BTCUSDT", Time: start.Add(-time.Hour), Close: 0}, // before range
		{Symbol: "BTCUSDT", Time: start.Add(time.Hour), Close: 2},
		{Symbol: "BTCUSDT", Time: start.Add(4 * time.Hour), Close: 9}, // after range
		{Symbol: "BTCUSDT", Time: start, Close: 1},
	}

	normalized := normalizeBars(bars, start, end)

	suite.Len(normalized, 3)
	suite.Equal(1.0, normalized[0].Close)
	suite.Equal(2.0, normalized[1].Close)
	suite.Equal(3.0, normalized[2].Close)
}

func (suite *ProviderTestSuite) TestNormalizeBarsDropsDuplicateTimestamps() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	bars := []types.MarketData{
		{Symbol: "BTCUSDT", Time: start, Close: 1},
		{Symbol: "BTCUSDT", Time: start, Close: 99},
		{Symbol: "BTCUSDT", Time: start.Add(time.Hour), Close: 2},
	}

	normalized := normalizeBars(bars, start, start.Add(time.Hour))

	suite.Len(normalized, 2)
	// The first occurrence wins.
	suite.Equal(1.0, normalized[0].Close)
}

func (suite *ProviderTestSuite) TestNormalizeBarsEmpty() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	normalized := normalizeBars(nil, start, start.Add(time.Hour))
	suite.Empty(normalized)
}

func (suite *ProviderTestSuite) TestBinanceSupportsQuoteAssets() {
	provider := NewBinanceProvider()

	suite.True(provider.Supports("BTCUSDT"))
	suite.True(provider.Supports("ETHBTC"))
	suite.False(provider.Supports("AAPL"))
	suite.False(provider.Supports("USDT")) // a bare quote asset is not a pair
}

func (suite *ProviderTestSuite) TestPolygonRequiresAPIKey() {
	_, err := NewPolygonProvider("")
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	provider, err := NewPolygonProvider("key")
	suite.NoError(err)
	suite.True(provider.Supports("AAPL"))
}

func (suite *ProviderTestSuite) TestPolygonAggregation() {
	tests := []struct {
		interval   types.Interval
		multiplier int
		timespan   models.Timespan
	}{
		{types.Interval15m, 15, models.Minute},
		{types.Interval30m, 30, models.Minute},
		{types.Interval1h, 1, models.Hour},
		{types.Interval4h, 4, models.Hour},
		{types.Interval1d, 1, models.Day},
	}

	for _, test := range tests {
		multiplier, timespan, err := polygonAggregation(test.interval)
		suite.NoError(err)
		suite.Equal(test.multiplier, multiplier)
		suite.Equal(test.timespan, timespan)
	}

	_, _, err := polygonAggregation(types.Interval("7m"))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInterval))
}
