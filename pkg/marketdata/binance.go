package marketdata

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

// binanceKlineLimit is the maximum page size the klines endpoint allows.
const binanceKlineLimit = 1000

// quoteAssets are the pair suffixes the Binance provider recognizes.
var quoteAssets = []string{"USDT", "USDC", "BUSD", "BTC", "ETH"}

// BinanceProvider serves crypto pairs from the public klines endpoint. No API
// key is needed for historical candles.
type BinanceProvider struct {
	client *binance.Client
}

func NewBinanceProvider() *BinanceProvider {
	return &BinanceProvider{client: binance.NewClient("", "")}
}

func (p *BinanceProvider) Name() string {
	return "binance"
}

// Supports accepts symbols quoted in one of the common crypto quote assets.
func (p *BinanceProvider) Supports(symbol string) bool {
	for _, quote := range quoteAssets {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return true
		}
	}

	return false
}

// Fetch pages through the klines endpoint until the range is covered. The
// endpoint caps each page, so the next page starts one millisecond after the
// close of the last kline received.
func (p *BinanceProvider) Fetch(ctx context.Context, symbol string, interval types.Interval, start time.Time, end time.Time) ([]types.MarketData, error) {
	endMillis := end.UnixMilli()
	currentStart := start.UnixMilli()

	var bars []types.MarketData

	for {
		klines, err := p.client.NewKlinesService().
			Symbol(symbol).
			Interval(string(interval)).
			StartTime(currentStart).
			EndTime(endMillis).
			Limit(binanceKlineLimit).
			Do(ctx)
		if err != nil {
			return nil, classifyBinanceError(symbol, err)
		}

		for _, kline := range klines {
			bar, err := klineToBar(symbol, kline)
			if err != nil {
				return nil, err
			}

			bars = append(bars, bar)
		}

		if len(klines) < binanceKlineLimit {
			break
		}

		currentStart = klines[len(klines)-1].CloseTime + 1
		if currentStart >= endMillis {
			break
		}
	}

	return normalizeBars(bars, start, end), nil
}

func klineToBar(symbol string, kline *binance.Kline) (types.MarketData, error) {
	open, err := strconv.ParseFloat(kline.Open, 64)
	if err != nil {
		return types.MarketData{}, errors.Wrapf(errors.ErrCodeFetchFailed, err, "malformed kline open price for %s", symbol)
	}

	high, err := strconv.ParseFloat(kline.High, 64)
	if err != nil {
		return types.MarketData{}, errors.Wrapf(errors.ErrCodeFetchFailed, err, "malformed kline high price for %s", symbol)
	}

	low, err := strconv.ParseFloat(kline.Low, 64)
	if err != nil {
		return types.MarketData{}, errors.Wrapf(errors.ErrCodeFetchFailed, err, "malformed kline low price for %s", symbol)
	}

	closePrice, err := strconv.ParseFloat(kline.Close, 64)
	if err != nil {
		return types.MarketData{}, errors.Wrapf(errors.ErrCodeFetchFailed, err, "malformed kline close price for %s", symbol)
	}

	volume, err := strconv.ParseFloat(kline.Volume, 64)
	if err != nil {
		return types.MarketData{}, errors.Wrapf(errors.ErrCodeFetchFailed, err, "malformed kline volume for %s", symbol)
	}

	return types.MarketData{
		Symbol: symbol,
		Time:   time.UnixMilli(kline.OpenTime).UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}

// classifyBinanceError maps the exchange's throttle responses to the
// rate-limit code so the chain knows the failure is retryable.
func classifyBinanceError(symbol string, err error) error {
	var apiErr *common.APIError
	if stderrors.As(err, &apiErr) {
		// -1003 TOO_MANY_REQUESTS, -1015 TOO_MANY_ORDERS.
		if apiErr.Code == -1003 || apiErr.Code == -1015 {
			return errors.Wrapf(errors.ErrCodeRateLimited, err, "binance rate limit hit for %s", symbol)
		}
	}

	return errors.Wrapf(errors.ErrCodeFetchFailed, err, "binance fetch failed for %s", symbol)
}
