package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"text/tabwriter"

	"github.com/moznion/go-optional"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/emb-labs/tradesim/internal/engine"
	"github.com/emb-labs/tradesim/internal/export"
	"github.com/emb-labs/tradesim/internal/logger"
	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/marketdata"
)

// loadRanges reads the parameter grid file: a YAML mapping from parameter
// name to the list of candidate values.
func loadRanges(path string) (map[string][]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ranges file %q: %w", path, err)
	}

	var ranges map[string][]any
	if err := yaml.Unmarshal(data, &ranges); err != nil {
		return nil, fmt.Errorf("failed to parse ranges file %q: %w", path, err)
	}

	return ranges, nil
}

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

func optimizeAction(ctx context.Context, cmd *cli.Command) error {
	var appLogger *logger.Logger

	var err error

	if cmd.Bool("verbose") {
		appLogger, err = logger.NewLoggerWithLevel(zapcore.DebugLevel)
	} else {
		appLogger, err = logger.NewLogger()
	}

	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer appLogger.Sync()

	config, err := types.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	ranges, err := loadRanges(cmd.String("ranges"))
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

	client, err := marketdata.NewClient(appLogger, nil, providers...)
	if err != nil {
		return err
	}

	series, err := client.FetchAll(ctx, config.Symbols, config.Interval, config.StartTime, config.EndTime)
	if err != nil {
		return err
	}

	var mu sync.Mutex

	var bar *progressbar.ProgressBar

	// The callback is invoked from worker goroutines.
	onProgress := engine.OnOptimizeProgress(func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Running combinations"),
				progressbar.OptionShowCount(),
			)
		}

		bar.Set(completed)
	})

	result, err := engine.NewEngine(appLogger).Optimize(ctx, config, ranges, series, engine.OptimizeOptions{
		Parallelism: int(cmd.Int("parallelism")),
		TopN:        int(cmd.Int("top")),
		Ranking:     engine.RankingMetric(cmd.String("ranking")),
		OnProgress:  optional.Some(onProgress),
	})
	if err != nil {
		return err
	}

	if bar != nil {
		bar.Finish()
	}

	printTop(result)

	if outPath := cmd.String("out"); outPath != "" {
		if err := export.WriteOptimizationYAML(outPath, result); err != nil {
			return err
		}

		appLogger.Info("Optimization result written", zap.String("path", outPath))
	}

	return nil
}

// printTop renders the ranked combinations as an aligned table.
func printTop(result types.OptimizationResult) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintf(writer, "#\tparams\treturn%%\twin%%\tdrawdown%%\tsharpe\tpf\ttrades\n")

	for i, entry := range result.Entries {
		fmt.Fprintf(writer, "%d\t%v\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%d\n",
			i+1,
			entry.Params,
			entry.Metrics.PercentReturn,
			entry.Metrics.WinRate,
			entry.Metrics.MaxDrawdown,
			entry.Metrics.SharpeRatio,
			entry.Metrics.ProfitFactor,
			entry.Metrics.TotalTrades,
		)
	}

	writer.Flush()
}

func main() {
	cmd := &cli.Command{
		Name:  "optimize",
		Usage: "Grid-search strategy parameters over historical bars",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the YAML backtest config used as the base of every combination",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "ranges",
				Aliases:  []string{"r"},
				Usage:    "Path to the YAML parameter grid (name -> candidate values)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Path to the local DuckDB bar archive (empty disables it)",
				Value:   "data/bars.duckdb",
			},
			&cli.StringFlag{
				Name:  "ranking",
				Usage: "Metric to rank by: percent_return, win_rate, sharpe_ratio, profit_factor",
				Value: string(engine.RankByPercentReturn),
			},
			&cli.IntFlag{
				Name:  "top",
				Usage: "Keep only the best N combinations (0 keeps all)",
				Value: 10,
			},
			&cli.IntFlag{
				Name:  "parallelism",
				Usage: "Concurrent combinations (0 means one per CPU)",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Path for the ranked result YAML (empty disables it)",
				Value: "optimization.yaml",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Action: optimizeAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
