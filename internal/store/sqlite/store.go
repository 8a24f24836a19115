// Package sqlite caches candles on disk so historical runs can be repeated
// without hitting the exchange.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"kdjtrader/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS candles (
	symbol    TEXT    NOT NULL,
	timeframe TEXT    NOT NULL,
	ts        INTEGER NOT NULL,
	open      REAL    NOT NULL,
	high      REAL    NOT NULL,
	low       REAL    NOT NULL,
	close     REAL    NOT NULL,
	volume    REAL,
	PRIMARY KEY (symbol, timeframe, ts)
);
`

// CandleStore reads and writes candles keyed by symbol and timeframe.
type CandleStore struct {
	db *sqlx.DB
}

// Open creates or opens the database at path with WAL mode.
func Open(path string) (*CandleStore, error) {
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("[sqlite] opened candle store", "path", path)
	return &CandleStore{db: db}, nil
}

// DB returns the underlying handle for health checks.
func (s *CandleStore) DB() *sqlx.DB { return s.db }

// Save upserts candles in a single transaction.
func (s *CandleStore) Save(ctx context.Context, symbol, timeframe string, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	start := time.Now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, timeframe, c.TS, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("insert %s %s@%d: %w", symbol, timeframe, c.TS, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("[sqlite] committed candles", "symbol", symbol, "timeframe", timeframe,
		"count", len(candles), "elapsed", time.Since(start))
	return nil
}

// Load returns up to limit of the most recent candles, ascending by ts.
// limit <= 0 returns everything.
func (s *CandleStore) Load(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	q := `SELECT ts, open, high, low, close, COALESCE(volume, 0) AS volume FROM (
			SELECT * FROM candles WHERE symbol = ? AND timeframe = ? ORDER BY ts DESC LIMIT ?
		) ORDER BY ts ASC`
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	var out []model.Candle
	if err := s.db.SelectContext(ctx, &out, q, symbol, timeframe, limit); err != nil {
		return nil, fmt.Errorf("sqlite load %s %s: %w", symbol, timeframe, err)
	}
	return out, nil
}

// LastTimestamp returns the newest stored ts, or 0 if none.
func (s *CandleStore) LastTimestamp(ctx context.Context, symbol, timeframe string) (int64, error) {
	var ts sql.NullInt64
	err := s.db.GetContext(ctx, &ts, `SELECT MAX(ts) FROM candles WHERE symbol = ? AND timeframe = ?`, symbol, timeframe)
	if err != nil {
		return 0, err
	}
	return ts.Int64, nil
}

// FetchCandles serves stored candles as a market-data source.
func (s *CandleStore) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	candles, err := s.Load(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no stored candles for %s %s", model.ErrDataUnavailable, symbol, timeframe)
	}
	return candles, nil
}

// Close closes the database.
func (s *CandleStore) Close() error {
	return s.db.Close()
}

// CachingFeed wraps a market-data source and stores every closed candle it
// returns. The newest candle of each fetch is treated as still forming and
// is not stored.
type CachingFeed struct {
	Source model.MarketData
	Store  *CandleStore
}

func (f CachingFeed) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	candles, err := f.Source.FetchCandles(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	if n := len(candles); n > 1 {
		if err := f.Store.Save(ctx, symbol, timeframe, candles[:n-1]); err != nil {
			slog.Warn("[sqlite] cache write failed", "symbol", symbol, "error", err)
		}
	}
	return candles, nil
}
