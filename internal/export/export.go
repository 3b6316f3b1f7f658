// Package export writes completed results to side-channel files: a trade log
// as CSV and the full result as YAML.
package export

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

// tradeColumns is the fixed CSV header, one row per trade in log order.
var tradeColumns = []string{"symbol", "direction", "price", "quantity", "value", "fee", "pnl", "timestamp", "reason"}

// WriteTradesCSV writes the trade log to path. The pnl column is empty for
// entry trades since pnl only exists on close.
func WriteTradesCSV(path string, trades []types.Trade) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeExportFailed, err, "failed to create trades file %q", path)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write(tradeColumns); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to write trades header", err)
	}

	for _, trade := range trades {
		pnl := ""
		if trade.IsClose() {
			pnl = formatFloat(trade.PnL)
		}

		row := []string{
			trade.Symbol,
			string(trade.Side),
			formatFloat(trade.Price),
			formatFloat(trade.Quantity),
			formatFloat(trade.Value),
			formatFloat(trade.Fee),
			pnl,
			trade.Time.UTC().Format(time.RFC3339),
			trade.Reason,
		}

		if err := writer.Write(row); err != nil {
			return errors.Wrap(errors.ErrCodeExportFailed, "failed to write trade row", err)
		}
	}

	writer.Flush()

	if err := writer.Error(); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to flush trades file", err)
	}

	return nil
}

// WriteResultYAML writes the full result, config and curve included, to path.
func WriteResultYAML(path string, result types.BacktestResult) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to marshal result", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(errors.ErrCodeExportFailed, err, "failed to write result file %q", path)
	}

	return nil
}

// WriteOptimizationYAML writes a ranked grid-search outcome to path.
func WriteOptimizationYAML(path string, result types.OptimizationResult) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to marshal optimization result", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(errors.ErrCodeExportFailed, err, "failed to write optimization file %q", path)
	}

	return nil
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
