package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"

	"github.com/emb-labs/tradesim/pkg/errors"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func validConfig() BacktestConfig {
	config := DefaultConfig()
	config.Symbols = []string{"BTCUSDT"}
	config.StartTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	config.EndTime = time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	return config
}

func (suite *ConfigTestSuite) TestDefaultConfig() {
	config := DefaultConfig()

	suite.Equal(Interval1h, config.Interval)
	suite.Equal(10000.0, config.InitialCapital)
	suite.Equal(0.1, config.TradeSize)
	suite.Equal(3, config.MaxOpenTrades)
	suite.Equal(StrategyAIConsensus, config.Strategy)
	suite.False(config.AllowShorts)
}

func (suite *ConfigTestSuite) TestValidateValidConfig() {
	config := validConfig()
	suite.NoError(config.Validate())
}

func (suite *ConfigTestSuite) TestValidateRejectsBadConfigs() {
	tests := []struct {
		name   string
		mutate func(*BacktestConfig)
	}{
		{
			name:   "empty symbols",
			mutate: func(c *BacktestConfig) { c.Symbols = nil },
		},
		{
			name:   "end before start",
			mutate: func(c *BacktestConfig) { c.EndTime = c.StartTime.Add(-time.Hour) },
		},
		{
			name:   "zero capital",
			mutate: func(c *BacktestConfig) { c.InitialCapital = 0 },
		},
		{
			name:   "negative capital",
			mutate: func(c *BacktestConfig) { c.InitialCapital = -100 },
		},
		{
			name:   "trade size above one",
			mutate: func(c *BacktestConfig) { c.TradeSize = 1.5 },
		},
		{
			name:   "unknown interval",
			mutate: func(c *BacktestConfig) { c.Interval = "2h" },
		},
		{
			name:   "unknown strategy",
			mutate: func(c *BacktestConfig) { c.Strategy = "momentum_scalping" },
		},
		{
			name:   "zero max open trades",
			mutate: func(c *BacktestConfig) { c.MaxOpenTrades = 0 },
		},
		{
			name:   "negative fee",
			mutate: func(c *BacktestConfig) { c.FeePct = -0.1 },
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()
			suite.Error(err)
			suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfig))
		})
	}
}

func (suite *ConfigTestSuite) TestValidateAllowsZeroTradeSize() {
	// Zero trade size is a valid config: every entry is rejected for
	// insufficient size, producing an empty trade log.
	config := validConfig()
	config.TradeSize = 0

	suite.NoError(config.Validate())
}

func (suite *ConfigTestSuite) TestIntervalDuration() {
	duration, err := Interval4h.Duration()
	suite.NoError(err)
	suite.Equal(4*time.Hour, duration)

	_, err = Interval("7m").Duration()
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInterval))
}

func (suite *ConfigTestSuite) TestYAMLRoundTrip() {
	config := validConfig()
	config.AllowShorts = true

	data, err := yaml.Marshal(config)
	suite.NoError(err)

	var decoded BacktestConfig
	suite.NoError(yaml.Unmarshal(data, &decoded))
	suite.Equal(config.Symbols, decoded.Symbols)
	suite.Equal(config.Interval, decoded.Interval)
	suite.Equal(config.Strategy, decoded.Strategy)
	suite.True(decoded.AllowShorts)
}

func (suite *ConfigTestSuite) TestGenerateSchemaJSON() {
	config := &BacktestConfig{}
	schemaJSON, err := config.GenerateSchemaJSON()

	suite.NoError(err)
	suite.NotEmpty(schemaJSON)

	var schema map[string]any
	suite.NoError(json.Unmarshal([]byte(schemaJSON), &schema))
	suite.Equal("backtest-config", schema["title"])
}
