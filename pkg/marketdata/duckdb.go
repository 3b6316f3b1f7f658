package marketdata

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/emb-labs/tradesim/internal/types"
	"github.com/emb-labs/tradesim/pkg/errors"
)

// DuckDBStore is a local bar archive backed by a DuckDB file. It sits first
// in a provider chain so previously stored ranges are served without touching
// the network, and exposes Store so downloaded bars can be archived.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore opens (or creates) the archive at path. An empty path opens
// an in-memory database, which is what the tests use.
func NewDuckDBStore(path string) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to open duckdb at %q", path)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT NOT NULL,
			interval TEXT NOT NULL,
			time TIMESTAMP NOT NULL,
			open DOUBLE NOT NULL,
			high DOUBLE NOT NULL,
			low DOUBLE NOT NULL,
			close DOUBLE NOT NULL,
			volume DOUBLE NOT NULL
		)
	`)
	if err != nil {
		db.Close()

		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to create bars table", err)
	}

	return &DuckDBStore{db: db}, nil
}

func (s *DuckDBStore) Name() string {
	return "duckdb"
}

func (s *DuckDBStore) Supports(string) bool {
	return true
}

// Fetch queries archived bars for the symbol and range. No rows is a miss,
// not an error: the chain falls through to the next provider.
func (s *DuckDBStore) Fetch(ctx context.Context, symbol string, interval types.Interval, start time.Time, end time.Time) ([]types.MarketData, error) {
	query, args, err := sq.
		Select("symbol", "time", "open", "high", "low", "close", "volume").
		From("bars").
		Where(sq.Eq{"symbol": symbol, "interval": string(interval)}).
		Where(sq.GtOrEq{"time": start}).
		Where(sq.LtOrEq{"time": end}).
		OrderBy("time ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build bars query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to query bars for %s", symbol)
	}
	defer rows.Close()

	var bars []types.MarketData

	for rows.Next() {
		var bar types.MarketData
		if err := rows.Scan(&bar.Symbol, &bar.Time, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to scan bar for %s", symbol)
		}

		bar.Time = bar.Time.UTC()
		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to read bars for %s", symbol)
	}

	return normalizeBars(bars, start, end), nil
}

// Store archives bars under the given interval in one transaction. Bars
// already present for the same symbol, interval, and timestamp are replaced
// so re-downloading a range is idempotent.
func (s *DuckDBStore) Store(ctx context.Context, interval types.Interval, bars []types.MarketData) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to begin transaction", err)
	}

	deleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM bars WHERE symbol = ? AND interval = ? AND time = ?`)
	if err != nil {
		tx.Rollback()

		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to prepare delete statement", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (symbol, interval, time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()

		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to prepare insert statement", err)
	}
	defer insertStmt.Close()

	for _, bar := range bars {
		if _, err := deleteStmt.ExecContext(ctx, bar.Symbol, string(interval), bar.Time); err != nil {
			tx.Rollback()

			return errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to replace bar for %s", bar.Symbol)
		}

		if _, err := insertStmt.ExecContext(ctx, bar.Symbol, string(interval), bar.Time, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume); err != nil {
			tx.Rollback()

			return errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to insert bar for %s", bar.Symbol)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to commit bars", err)
	}

	return nil
}

func (s *DuckDBStore) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to close duckdb", err)
	}

	return nil
}
