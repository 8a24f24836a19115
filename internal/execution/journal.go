package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"kdjtrader/internal/portfolio"
)

// Mode tags where a journaled trade came from.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
	ModePaper    Mode = "paper"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS trades (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	mode        TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	entry_price REAL NOT NULL,
	exit_price  REAL NOT NULL,
	quantity    REAL NOT NULL,
	profit      REAL NOT NULL,
	entry_ts    INTEGER NOT NULL,
	exit_ts     INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	reason      TEXT,
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, mode);
CREATE INDEX IF NOT EXISTS idx_trades_exit_ts ON trades(exit_ts);
`

// Journal persists closed trades to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sqlx.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	slog.Info("[journal] opened trade journal", "path", dbPath)
	return &Journal{db: db}, nil
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID         int64   `db:"id" json:"id"`
	Mode       string  `db:"mode" json:"mode"`
	Symbol     string  `db:"symbol" json:"symbol"`
	EntryPrice float64 `db:"entry_price" json:"entry_price"`
	ExitPrice  float64 `db:"exit_price" json:"exit_price"`
	Quantity   float64 `db:"quantity" json:"quantity"`
	Profit     float64 `db:"profit" json:"profit"`
	EntryTS    int64   `db:"entry_ts" json:"entry_ts"`
	ExitTS     int64   `db:"exit_ts" json:"exit_ts"`
	DurationMS int64   `db:"duration_ms" json:"duration_ms"`
	Reason     string  `db:"reason" json:"reason"`
}

// RecordTrade persists a closed trade.
func (j *Journal) RecordTrade(ctx context.Context, mode Mode, symbol string, t portfolio.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec := TradeRecord{
		Mode:       string(mode),
		Symbol:     symbol,
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		Quantity:   t.Quantity,
		Profit:     t.Profit,
		EntryTS:    t.EntryTS,
		ExitTS:     t.ExitTS,
		DurationMS: t.Duration.Milliseconds(),
		Reason:     t.Reason,
	}
	_, err := j.db.NamedExecContext(ctx,
		`INSERT INTO trades (mode, symbol, entry_price, exit_price, quantity, profit, entry_ts, exit_ts, duration_ms, reason)
		 VALUES (:mode, :symbol, :entry_price, :exit_price, :quantity, :profit, :entry_ts, :exit_ts, :duration_ms, :reason)`,
		rec)
	if err != nil {
		return fmt.Errorf("record trade %s@%d: %w", symbol, t.ExitTS, err)
	}
	return nil
}

// RecordAll persists trades in one transaction.
func (j *Journal) RecordAll(ctx context.Context, mode Mode, symbol string, trades []portfolio.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range trades {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trades (mode, symbol, entry_price, exit_price, quantity, profit, entry_ts, exit_ts, duration_ms, reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(mode), symbol, t.EntryPrice, t.ExitPrice, t.Quantity, t.Profit,
			t.EntryTS, t.ExitTS, t.Duration.Milliseconds(), t.Reason); err != nil {
			return fmt.Errorf("record trade %s@%d: %w", symbol, t.ExitTS, err)
		}
	}
	return tx.Commit()
}

// Recent returns the last N trades, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []TradeRecord
	err := j.db.SelectContext(ctx, &out,
		`SELECT id, mode, symbol, entry_price, exit_price, quantity, profit, entry_ts, exit_ts, duration_ms, COALESCE(reason, '') AS reason
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	return out, err
}

// Duration converts the stored millisecond duration.
func (r TradeRecord) Duration() time.Duration {
	return time.Duration(r.DurationMS) * time.Millisecond
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
