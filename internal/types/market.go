package types

import (
	"time"

	"github.com/emb-labs/tradesim/pkg/errors"
)

// MarketData is a single OHLCV bar for one symbol at one time step.
// Bars are immutable once fetched and ordered ascending by Time.
type MarketData struct {
	Symbol string    `yaml:"symbol" json:"symbol" csv:"symbol"`
	Time   time.Time `yaml:"time" json:"time" csv:"time"`
	Open   float64   `yaml:"open" json:"open" csv:"open"`
	High   float64   `yaml:"high" json:"high" csv:"high"`
	Low    float64   `yaml:"low" json:"low" csv:"low"`
	Close  float64   `yaml:"close" json:"close" csv:"close"`
	Volume float64   `yaml:"volume" json:"volume" csv:"volume"`
}

// Interval is the bar granularity of a backtest.
type Interval string

const (
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// AllIntervals lists every supported bar granularity.
var AllIntervals = []Interval{Interval15m, Interval30m, Interval1h, Interval4h, Interval1d}

// Duration returns the wall-clock length of one bar.
func (i Interval) Duration() (time.Duration, error) {
	switch i {
	case Interval15m:
		return 15 * time.Minute, nil
	case Interval30m:
		return 30 * time.Minute, nil
	case Interval1h:
		return time.Hour, nil
	case Interval4h:
		return 4 * time.Hour, nil
	case Interval1d:
		return 24 * time.Hour, nil
	default:
		return 0, errors.Newf(errors.ErrCodeInvalidInterval, "unsupported interval: %s", string(i))
	}
}

// Validate reports whether the interval is one of the supported granularities.
func (i Interval) Validate() error {
	_, err := i.Duration()

	return err
}
