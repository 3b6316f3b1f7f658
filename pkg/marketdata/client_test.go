package marketdata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

// fakeProvider scripts one provider in the chain: a fixed answer, an error
// sequence, or an unsupported symbol set.
type fakeProvider struct {
	mu sync.Mutex

	name        string
	unsupported map[string]bool
	bars        []types.MarketData
	errs        []error
	calls       int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Supports(symbol string) bool {
	return !f.unsupported[symbol]
}

func (f *fakeProvider) Fetch(_ context.Context, _ string, _ types.Interval, _ time.Time, _ time.Time) ([]types.MarketData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := f.calls
	f.calls++

	if call < len(f.errs) && f.errs[call] != nil {
		return nil, f.errs[call]
	}

	return f.bars, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func barsAt(symbol string, times ...time.Time) []types.MarketData {
	bars := make([]types.MarketData, len(times))
	for i, t := range times {
		bars[i] = types.MarketData{Symbol: symbol, Time: t, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}
	}

	return bars
}

type ClientTestSuite struct {
	suite.Suite

	start time.Time
	end   time.Time
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (suite *ClientTestSuite) SetupTest() {
	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	suite.end = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
}

func (suite *ClientTestSuite) params(symbol string) FetchParams {
	return FetchParams{
		Symbol:   symbol,
		Interval: types.Interval1h,
		Start:    suite.start,
		End:      suite.end,
	}
}

func (suite *ClientTestSuite) newClient(providers ...Provider) *Client {
	client, err := NewClient(nil, nil, providers...)
	suite.Require().NoError(err)

	client.retryInterval = time.Millisecond

	return client
}

func (suite *ClientTestSuite) TestRequiresProviders() {
	_, err := NewClient(nil, nil)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *ClientTestSuite) TestFirstProviderWins() {
	first := &fakeProvider{name: "first", bars: barsAt("BTCUSDT", suite.start.Add(time.Hour))}
	second := &fakeProvider{name: "second", bars: barsAt("BTCUSDT", suite.start.Add(2*time.Hour))}

	client := suite.newClient(first, second)

	bars, err := client.Fetch(context.Background(), suite.params("BTCUSDT"))
	suite.NoError(err)
	suite.Len(bars, 1)
	suite.Equal(1, first.callCount())
	suite.Equal(0, second.callCount())
}

func (suite *ClientTestSuite) TestUnsupportedSymbolSkipsProvider() {
	first := &fakeProvider{name: "first", unsupported: map[string]bool{"AAPL": true}}
	second := &fakeProvider{name: "second", bars: barsAt("AAPL", suite.start.Add(time.Hour))}

	client := suite.newClient(first, second)

	bars, err := client.Fetch(context.Background(), suite.params("AAPL"))
	suite.NoError(err)
	suite.Len(bars, 1)
	suite.Equal(0, first.callCount())
}

func (suite *ClientTestSuite) TestEmptyResultFallsThrough() {
	empty := &fakeProvider{name: "empty"}
	full := &fakeProvider{name: "full", bars: barsAt("BTCUSDT", suite.start.Add(time.Hour))}

	client := suite.newClient(empty, full)

	bars, err := client.Fetch(context.Background(), suite.params("BTCUSDT"))
	suite.NoError(err)
	suite.Len(bars, 1)
	suite.Equal(1, empty.callCount())
}

func (suite *ClientTestSuite) TestFailureFallsThrough() {
	broken := &fakeProvider{
		name: "broken",
		errs: []error{errors.New(errors.ErrCodeFetchFailed, "upstream down")},
	}
	full := &fakeProvider{name: "full", bars: barsAt("BTCUSDT", suite.start.Add(time.Hour))}

	client := suite.newClient(broken, full)

	bars, err := client.Fetch(context.Background(), suite.params("BTCUSDT"))
	suite.NoError(err)
	suite.Len(bars, 1)
	// A plain failure gets no retry.
	suite.Equal(1, broken.callCount())
}

func (suite *ClientTestSuite) TestRateLimitRetriesOnce() {
	throttled := &fakeProvider{
		name: "throttled",
		errs: []error{errors.New(errors.ErrCodeRateLimited, "slow down")},
		bars: barsAt("BTCUSDT", suite.start.Add(time.Hour)),
	}

	client := suite.newClient(throttled)

	bars, err := client.Fetch(context.Background(), suite.params("BTCUSDT"))
	suite.NoError(err)
	suite.Len(bars, 1)
	suite.Equal(2, throttled.callCount())
}

func (suite *ClientTestSuite) TestRateLimitRetryIsBounded() {
	throttled := &fakeProvider{
		name: "throttled",
		errs: []error{
			errors.New(errors.ErrCodeRateLimited, "slow down"),
			errors.New(errors.ErrCodeRateLimited, "slow down"),
		},
	}

	client := suite.newClient(throttled)

	_, err := client.Fetch(context.Background(), suite.params("BTCUSDT"))
	suite.Error(err)
	suite.Equal(errors.ErrCodeRateLimited, errors.GetCode(err))
	suite.Equal(2, throttled.callCount())
}

func (suite *ClientTestSuite) TestRateLimitSurfacesThroughEmptyChain() {
	throttled := &fakeProvider{
		name: "throttled",
		errs: []error{
			errors.New(errors.ErrCodeRateLimited, "slow down"),
			errors.New(errors.ErrCodeRateLimited, "slow down"),
		},
	}
	empty := &fakeProvider{name: "empty"}

	client := suite.newClient(throttled, empty)

	_, err := client.Fetch(context.Background(), suite.params("BTCUSDT"))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeRateLimited))
	suite.Contains(err.Error(), "BTCUSDT")
	suite.Equal(1, empty.callCount())
}

func (suite *ClientTestSuite) TestRateLimitAbsorbedWhenFallbackHasData() {
	throttled := &fakeProvider{
		name: "throttled",
		errs: []error{
			errors.New(errors.ErrCodeRateLimited, "slow down"),
			errors.New(errors.ErrCodeRateLimited, "slow down"),
		},
	}
	archive := &fakeProvider{
		name: "archive",
		bars: barsAt("BTCUSDT", suite.start.Add(time.Hour)),
	}

	client := suite.newClient(throttled, archive)

	bars, err := client.Fetch(context.Background(), suite.params("BTCUSDT"))
	suite.NoError(err)
	suite.Len(bars, 1)
}

func (suite *ClientTestSuite) TestExhaustedChainNamesSymbol() {
	empty := &fakeProvider{name: "empty"}

	client := suite.newClient(empty)

	_, err := client.Fetch(context.Background(), suite.params("GHOSTUSDT"))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeDataUnavailable))
	suite.Contains(err.Error(), "GHOSTUSDT")
}

func (suite *ClientTestSuite) TestInvalidParams() {
	client := suite.newClient(&fakeProvider{name: "any"})

	params := suite.params("BTCUSDT")
	params.End = params.Start.Add(-time.Hour)

	_, err := client.Fetch(context.Background(), params)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *ClientTestSuite) TestFetchAll() {
	provider := &fakeProvider{name: "full", bars: barsAt("ANY", suite.start.Add(time.Hour))}

	var mu sync.Mutex

	seen := make(map[string]bool)
	progress := OnFetchProgress(func(symbol string, completed, total int) {
		mu.Lock()
		defer mu.Unlock()

		seen[symbol] = true

		suite.Equal(2, total)
	})

	client, err := NewClient(nil, optional.Some(progress), provider)
	suite.Require().NoError(err)

	series, err := client.FetchAll(context.Background(), []string{"AAAUSDT", "BBBUSDT"}, types.Interval1h, suite.start, suite.end)
	suite.NoError(err)
	suite.Len(series, 2)
	suite.Len(seen, 2)
}

func (suite *ClientTestSuite) TestFetchAllFailsFast() {
	empty := &fakeProvider{name: "empty", unsupported: map[string]bool{"GHOSTUSDT": true}}

	client := suite.newClient(empty)

	_, err := client.FetchAll(context.Background(), []string{"GHOSTUSDT"}, types.Interval1h, suite.start, suite.end)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeDataUnavailable))
}
