package marketdata

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emb-labs/tradesim/internal/logger"
	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

// defaultRetryInterval is the pause before the single rate-limit retry.
const defaultRetryInterval = 2 * time.Second

// OnFetchProgress reports symbols fetched out of the total during FetchAll.
type OnFetchProgress func(symbol string, completed int, total int)

// FetchParams describes one historical range request.
type FetchParams struct {
	Symbol   string         `validate:"required"`
	Interval types.Interval `validate:"required,oneof=15m 30m 1h 4h 1d"`
	Start    time.Time      `validate:"required"`
	End      time.Time      `validate:"required,gtfield=Start"`
}

// Client walks an ordered provider chain until one returns data. Rate-limited
// providers get exactly one retry after a fixed pause; any other failure moves
// straight on to the next provider.
type Client struct {
	providers     []Provider
	validate      *validator.Validate
	log           *logger.Logger
	retryInterval time.Duration
	onProgress    optional.Option[OnFetchProgress]
}

// NewClient builds a client over the given chain, tried in order. A nil
// logger falls back to a no-op logger.
func NewClient(log *logger.Logger, onProgress optional.Option[OnFetchProgress], providers ...Provider) (*Client, error) {
	if len(providers) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "at least one provider is required")
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Client{
		providers:     providers,
		validate:      validator.New(),
		log:           log,
		retryInterval: defaultRetryInterval,
		onProgress:    onProgress,
	}, nil
}

// Fetch returns bars for one symbol from the first provider in the chain that
// has them. Providers that do not support the symbol are skipped; providers
// that fail or return nothing fall through to the next one. When the whole
// chain comes up empty the error names the symbol; if a provider exhausted
// its rate-limit retry along the way, that throttling is reported as the
// cause instead of a plain data miss.
func (c *Client) Fetch(ctx context.Context, params FetchParams) ([]types.MarketData, error) {
	if err := c.validate.Struct(params); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid fetch parameters", err)
	}

	rateLimited := false

	for _, provider := range c.providers {
		if !provider.Supports(params.Symbol) {
			continue
		}

		bars, err := c.fetchWithRetry(ctx, provider, params)
		if err != nil {
			if errors.HasCode(err, errors.ErrCodeRateLimited) {
				rateLimited = true
			}

			c.log.Warn("Provider failed, trying next in chain",
				zap.String("provider", provider.Name()),
				zap.String("symbol", params.Symbol),
				zap.Error(err),
			)

			continue
		}

		if len(bars) == 0 {
			c.log.Debug("Provider has no data for range",
				zap.String("provider", provider.Name()),
				zap.String("symbol", params.Symbol),
			)

			continue
		}

		c.log.Info("Fetched historical bars",
			zap.String("provider", provider.Name()),
			zap.String("symbol", params.Symbol),
			zap.Int("bars", len(bars)),
		)

		return bars, nil
	}

	if rateLimited {
		return nil, errors.Newf(errors.ErrCodeRateLimited, "rate limited fetching history for symbol %s", params.Symbol)
	}

	return nil, errors.Newf(errors.ErrCodeDataUnavailable, "no historical data for symbol %s", params.Symbol)
}

// fetchWithRetry runs one provider fetch, retrying exactly once after a fixed
// pause when the provider reports a rate limit. Every other error is final
// for this provider.
func (c *Client) fetchWithRetry(ctx context.Context, provider Provider, params FetchParams) ([]types.MarketData, error) {
	var bars []types.MarketData

	operation := func() error {
		fetched, err := provider.Fetch(ctx, params.Symbol, params.Interval, params.Start, params.End)
		if err != nil {
			if errors.HasCode(err, errors.ErrCodeRateLimited) {
				return err
			}

			return backoff.Permanent(err)
		}

		bars = fetched

		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryInterval), 1),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return bars, nil
}

// FetchAll fetches every symbol concurrently and fails fast on the first
// symbol the chain cannot serve. The result maps each requested symbol to
// its bars. The progress callback, when set, is invoked from fetch
// goroutines and must tolerate concurrent calls.
func (c *Client) FetchAll(ctx context.Context, symbols []string, interval types.Interval, start time.Time, end time.Time) (map[string][]types.MarketData, error) {
	if len(symbols) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "at least one symbol is required")
	}

	results := make([][]types.MarketData, len(symbols))

	var completed atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)

	for i, symbol := range symbols {
		group.Go(func() error {
			bars, err := c.Fetch(groupCtx, FetchParams{
				Symbol:   symbol,
				Interval: interval,
				Start:    start,
				End:      end,
			})
			if err != nil {
				return err
			}

			results[i] = bars

			done := int(completed.Add(1))
			if c.onProgress.IsSome() {
				c.onProgress.Unwrap()(symbol, done, len(symbols))
			}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	series := make(map[string][]types.MarketData, len(symbols))
	for i, symbol := range symbols {
		series[symbol] = results[i]
	}

	return series, nil
}
