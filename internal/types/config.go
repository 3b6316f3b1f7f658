package types

import (
	"encoding/json"
	"os"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/emb-labs/tradesim/pkg/errors"
)

// BacktestConfig fully describes one backtest run. It is validated before the
// simulation starts and never mutated once the run begins.
type BacktestConfig struct {
	// Symbols is the ordered, non-empty set of instruments to simulate.
	Symbols []string `yaml:"symbols" json:"symbols" validate:"required,min=1,dive,required" jsonschema:"title=Symbols,description=Instruments to backtest"`
	// StartTime and EndTime bound the historical window.
	StartTime time.Time `yaml:"start_time" json:"start_time" validate:"required" jsonschema:"title=Start Time"`
	EndTime   time.Time `yaml:"end_time" json:"end_time" validate:"required,gtefield=StartTime" jsonschema:"title=End Time"`
	// Interval is the bar granularity.
	Interval Interval `yaml:"interval" json:"interval" validate:"required,oneof=15m 30m 1h 4h 1d" jsonschema:"title=Interval,description=Bar granularity"`
	// InitialCapital is the starting cash of the simulated portfolio.
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital" validate:"required,gt=0" jsonschema:"title=Initial Capital,minimum=0"`
	// TradeSize is the fraction of available cash committed per entry.
	// Zero is a valid value: every entry is then rejected for insufficient size.
	TradeSize float64 `yaml:"trade_size" json:"trade_size" validate:"gte=0,lte=1" jsonschema:"title=Trade Size,description=Fraction of cash per entry,minimum=0,maximum=1"`
	// StopLossPct and TakeProfitPct are percentages relative to entry price.
	StopLossPct   float64 `yaml:"stop_loss_pct" json:"stop_loss_pct" validate:"required,gt=0" jsonschema:"title=Stop Loss Percentage"`
	TakeProfitPct float64 `yaml:"take_profit_pct" json:"take_profit_pct" validate:"required,gt=0" jsonschema:"title=Take Profit Percentage"`
	// MaxOpenTrades caps concurrent open positions across all symbols.
	MaxOpenTrades int `yaml:"max_open_trades" json:"max_open_trades" validate:"required,min=1" jsonschema:"title=Max Open Trades,minimum=1"`
	// FeePct is the per-side fee percentage applied on entry and exit.
	FeePct float64 `yaml:"fee_pct" json:"fee_pct" validate:"gte=0" jsonschema:"title=Fee Percentage,minimum=0"`
	// Strategy selects the built-in strategy variant.
	Strategy StrategyType `yaml:"strategy" json:"strategy" validate:"required,oneof=ai_consensus sma_crossover rsi_overbought_oversold" jsonschema:"title=Strategy"`
	// AllowShorts enables short entries on sell signals.
	AllowShorts bool `yaml:"allow_shorts" json:"allow_shorts" jsonschema:"title=Allow Shorts"`
}

// DefaultConfig returns a config with the documented defaults. Symbols and the
// time window must still be filled in by the caller.
func DefaultConfig() BacktestConfig {
	return BacktestConfig{
		Symbols:        nil,
		StartTime:      time.Time{},
		EndTime:        time.Time{},
		Interval:       Interval1h,
		InitialCapital: 10000,
		TradeSize:      0.1,
		StopLossPct:    5,
		TakeProfitPct:  10,
		MaxOpenTrades:  3,
		FeePct:         0.1,
		Strategy:       StrategyAIConsensus,
		AllowShorts:    false,
	}
}

// LoadConfig reads a YAML config file, applies the documented defaults for
// omitted fields, and validates the result.
func LoadConfig(path string) (BacktestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BacktestConfig{}, errors.Wrapf(errors.ErrCodeInvalidConfig, err, "failed to read config file %q", path)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return BacktestConfig{}, errors.Wrapf(errors.ErrCodeInvalidConfig, err, "failed to parse config file %q", path)
	}

	if err := config.Validate(); err != nil {
		return BacktestConfig{}, err
	}

	return config, nil
}

// Validate checks the config against its struct tags and returns an
// ErrCodeInvalidConfig error describing the first violation.
func (c *BacktestConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, "invalid backtest config", err)
	}

	return nil
}

// GenerateSchema generates a JSON schema for the BacktestConfig.
func (c *BacktestConfig) GenerateSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(Interval("")) {
				schema := &jsonschema.Schema{Type: "string"}
				for _, interval := range AllIntervals {
					schema.Enum = append(schema.Enum, string(interval))
				}

				return schema
			}

			if t == reflect.TypeOf(StrategyType("")) {
				schema := &jsonschema.Schema{Type: "string"}
				for _, strategy := range AllStrategies {
					schema.Enum = append(schema.Enum, string(strategy))
				}

				return schema
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)
	schema.Title = "backtest-config"
	schema.Description = "Configuration schema for a backtest run"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema
}

// GenerateSchemaJSON generates an indented JSON schema string for the BacktestConfig.
func (c *BacktestConfig) GenerateSchemaJSON() (string, error) {
	schemaBytes, err := json.MarshalIndent(c.GenerateSchema(), "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
