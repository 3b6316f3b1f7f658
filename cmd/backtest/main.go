package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/moznion/go-optional"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/emb-labs/tradesim/internal/engine"
	"github.com/emb-labs/tradesim/internal/export"
	"github.com/emb-labs/tradesim/internal/logger"
	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/marketdata"
)

// buildChain assembles the provider chain: the local DuckDB archive first,
// then Binance, then Polygon when an API key is present.
func buildChain(dataPath string) ([]marketdata.Provider, *marketdata.DuckDBStore, error) {
	var providers []marketdata.Provider

	var store *marketdata.DuckDBStore

	if dataPath != "" {
		opened, err := marketdata.NewDuckDBStore(dataPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open local bar archive: %w", err)
		}

		store = opened
		providers = append(providers, store)
	}

	providers = append(providers, marketdata.NewBinanceProvider())

	if apiKey := os.Getenv("POLYGON_API_KEY"); apiKey != "" {
		polygonProvider, err := marketdata.NewPolygonProvider(apiKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create polygon provider: %w", err)
		}

		providers = append(providers, polygonProvider)
	}

	return providers, store, nil
}

func newLogger(verbose bool) (*logger.Logger, error) {
	if verbose {
		return logger.NewLoggerWithLevel(zapcore.DebugLevel)
	}

	return logger.NewLogger()
}

func backtestAction(ctx context.Context, cmd *cli.Command) error {
	log, err := newLogger(cmd.Bool("verbose"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	config, err := types.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	providers, store, err := buildChain(cmd.String("data"))
	if err != nil {
		return err
	}

	if store != nil {
		defer store.Close()
	}

	bar := progressbar.NewOptions(len(config.Symbols),
		progressbar.OptionSetDescription("Fetching bars"),
		progressbar.OptionShowCount(),
	)

	onProgress := marketdata.OnFetchProgress(func(string, int, int) {
		bar.Add(1)
	})

	client, err := marketdata.NewClient(log, optional.Some(onProgress), providers...)
	if err != nil {
		return err
	}

	series, err := client.FetchAll(ctx, config.Symbols, config.Interval, config.StartTime, config.EndTime)
	if err != nil {
		return err
	}

	bar.Finish()

	// Archive fresh bars so the next run is served locally.
	if store != nil {
		for symbol, bars := range series {
			if err := store.Store(ctx, config.Interval, bars); err != nil {
				log.Warn("Failed to archive bars",
					zap.String("symbol", symbol),
					zap.Error(err),
				)
			}
		}
	}

	result, err := engine.NewEngine(log).Run(ctx, config, series)
	if err != nil {
		return err
	}

	log.Info("Backtest complete",
		zap.String("run_id", result.ID),
		zap.Float64("percent_return", result.Metrics.PercentReturn),
		zap.Float64("win_rate", result.Metrics.WinRate),
		zap.Float64("max_drawdown", result.Metrics.MaxDrawdown),
		zap.Float64("sharpe_ratio", result.Metrics.SharpeRatio),
		zap.Float64("buy_and_hold_return", result.Metrics.BuyAndHoldReturn),
		zap.Int("total_trades", result.Metrics.TotalTrades),
		zap.Float64("total_fees", result.Metrics.TotalFees),
	)

	if tradesPath := cmd.String("trades-out"); tradesPath != "" {
		if err := export.WriteTradesCSV(tradesPath, result.Trades); err != nil {
			return err
		}

		log.Info("Trade log written", zap.String("path", tradesPath))
	}

	if resultPath := cmd.String("result-out"); resultPath != "" {
		if err := export.WriteResultYAML(resultPath, result); err != nil {
			return err
		}

		log.Info("Result written", zap.String("path", resultPath))
	}

	return nil
}

// schemaAction prints the JSON schema of the config file format, for editor
// integration and config validation tooling.
func schemaAction(_ context.Context, _ *cli.Command) error {
	config := types.DefaultConfig()

	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate config schema: %w", err)
	}

	fmt.Println(schema)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Run a strategy backtest over historical bars",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the YAML backtest config",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Path to the local DuckDB bar archive (empty disables it)",
				Value:   "data/bars.duckdb",
			},
			&cli.StringFlag{
				Name:  "trades-out",
				Usage: "Path for the trade log CSV (empty disables it)",
				Value: "trades.csv",
			},
			&cli.StringFlag{
				Name:  "result-out",
				Usage: "Path for the full result YAML (empty disables it)",
				Value: "result.yaml",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Action: backtestAction,
		Commands: []*cli.Command{
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the config file format",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
