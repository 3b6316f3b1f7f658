package marketdata

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

const polygonPageLimit = 50000

// PolygonProvider serves any ticker the Polygon aggregates API knows about,
// which makes it the natural last link in a provider chain.
type PolygonProvider struct {
	client *polygon.Client
}

func NewPolygonProvider(apiKey string) (*PolygonProvider, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "polygon api key is required")
	}

	return &PolygonProvider{client: polygon.New(apiKey)}, nil
}

func (p *PolygonProvider) Name() string {
	return "polygon"
}

func (p *PolygonProvider) Supports(string) bool {
	return true
}

func (p *PolygonProvider) Fetch(ctx context.Context, symbol string, interval types.Interval, start time.Time, end time.Time) ([]types.MarketData, error) {
	multiplier, timespan, err := polygonAggregation(interval)
	if err != nil {
		return nil, err
	}

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     symbol,
		Multiplier: multiplier,
		Timespan:   timespan,
		From:       models.Millis(start),
		To:         models.Millis(end),
	}.WithLimit(polygonPageLimit)

	iter := p.client.ListAggs(ctx, params)

	var bars []types.MarketData

	for iter.Next() {
		agg := iter.Item()
		bars = append(bars, types.MarketData{
			Symbol: symbol,
			Time:   time.Time(agg.Timestamp).UTC(),
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		})
	}

	if err := iter.Err(); err != nil {
		return nil, classifyPolygonError(symbol, err)
	}

	return normalizeBars(bars, start, end), nil
}

// polygonAggregation maps a bar interval to the multiplier/timespan pair the
// aggregates API expects.
func polygonAggregation(interval types.Interval) (int, models.Timespan, error) {
	switch interval {
	case types.Interval15m:
		return 15, models.Minute, nil
	case types.Interval30m:
		return 30, models.Minute, nil
	case types.Interval1h:
		return 1, models.Hour, nil
	case types.Interval4h:
		return 4, models.Hour, nil
	case types.Interval1d:
		return 1, models.Day, nil
	default:
		return 0, "", errors.Newf(errors.ErrCodeInvalidInterval, "unsupported interval: %s", interval)
	}
}

func classifyPolygonError(symbol string, err error) error {
	var apiErr *models.ErrorResponse
	if stderrors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return errors.Wrapf(errors.ErrCodeRateLimited, err, "polygon rate limit hit for %s", symbol)
	}

	return errors.Wrapf(errors.ErrCodeFetchFailed, err, "polygon fetch failed for %s", symbol)
}
