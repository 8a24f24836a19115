// cmd/backtest runs the crossover strategy over historical candles, simulates a
// single long position and writes the losing trades to a JSON file.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=BTC/USDT --timeframe=4h --limit=1000
//	go run ./cmd/backtest --source=sqlite --output=loss_trades.json
//	go run ./cmd/backtest --from=2024-01-01 --timeframe=1h
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"kdjtrader/config"
	"kdjtrader/internal/events"
	"kdjtrader/internal/exchange/binance"
	"kdjtrader/internal/execution"
	"kdjtrader/internal/export"
	"kdjtrader/internal/logger"
	"kdjtrader/internal/model"
	"kdjtrader/internal/portfolio"
	redisstore "kdjtrader/internal/store/redis"
	sqlitestore "kdjtrader/internal/store/sqlite"
	"kdjtrader/internal/strategy"
)

func main() {
	envFile := flag.String("env", ".env", "Path to .env file (optional)")
	symbol := flag.String("symbol", "", "Symbol, e.g. BTC/USDT (overrides SYMBOL)")
	timeframe := flag.String("timeframe", "", "Candle interval, e.g. 4h (overrides TIMEFRAME)")
	limit := flag.Int("limit", 0, "Number of candles (overrides CANDLE_LIMIT)")
	policy := flag.String("policy", "", "Decision policy: crossover|level (overrides POLICY)")
	source := flag.String("source", "binance", "Candle source: binance|sqlite")
	from := flag.String("from", "", "Fetch every candle since this date (YYYY-MM-DD), paging past the request limit")
	output := flag.String("output", "loss_trades.json", "Loss-trade JSON output path")
	noJournal := flag.Bool("no-journal", false, "Do not write trades to the SQLite journal")
	flag.Parse()

	cfg, err := config.Load(config.ModeBacktest, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(2)
	}
	if *symbol != "" {
		cfg.Symbol = *symbol
	}
	if *timeframe != "" {
		cfg.Timeframe = *timeframe
	}
	if *limit > 0 {
		cfg.CandleLimit = *limit
	}
	if *policy != "" {
		cfg.Policy = *policy
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(2)
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	log := logger.Init("backtest", level)

	pol, err := strategy.ParsePolicy(cfg.Policy)
	if err != nil {
		log.Error("[backtest] bad policy", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Event sinks ----
	sinks := events.Multi{events.NewLogSink(log)}
	if cfg.RedisAddr != "" {
		pub, err := redisstore.NewPublisher(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Warn("[backtest] redis unavailable, continuing without it", "error", err)
		} else {
			defer pub.Close()
			sinks = append(sinks, events.Only(pub, events.KindBacktestDone))
		}
	}

	// ---- Load candles ----
	candles, err := loadCandles(ctx, cfg, *source, *from)
	if err != nil {
		log.Error("[backtest] no candles", "source", *source, "error", err)
		os.Exit(1)
	}
	log.Info("[backtest] candles loaded",
		"symbol", cfg.Symbol, "timeframe", cfg.Timeframe, "count", len(candles),
		"first", candles[0].Time().Format(time.RFC3339), "last", candles[len(candles)-1].Time().Format(time.RFC3339))

	// ---- Evaluate and simulate ----
	indCfg := cfg.Indicator()
	if len(candles) < indCfg.Warmup() {
		log.Warn("[backtest] series shorter than indicator warm-up", "candles", len(candles), "warmup", indCfg.Warmup())
	}
	frames, decisions := strategy.Signals(indCfg, pol, candles)

	sim := portfolio.NewSimulator(cfg.InitialBalance)
	sim.OnTrade = func(t portfolio.Trade) {
		_ = sinks.Emit(ctx, events.New(events.KindTradeClosed, cfg.Symbol, "simulated trade closed", map[string]any{
			"entry": t.EntryPrice, "exit": t.ExitPrice, "profit": t.Profit,
			"entry_ts": t.EntryTS, "exit_ts": t.ExitTS,
		}))
	}
	res, err := sim.Run(candles, frames, decisions)
	if err != nil {
		log.Error("[backtest] simulation failed", "error", err)
		os.Exit(1)
	}

	// ---- Outputs ----
	if err := export.WriteLossTrades(*output, res.Losses); err != nil {
		log.Error("[backtest] loss-trade export failed", "path", *output, "error", err)
		os.Exit(1)
	}
	log.Info("[backtest] loss trades written", "path", *output, "count", len(res.Losses))

	if !*noJournal && cfg.JournalPath != "" && len(res.Trades) > 0 {
		if err := recordJournal(ctx, cfg, res.Trades); err != nil {
			log.Warn("[backtest] journal write failed", "error", err)
		}
	}

	printSummary(cfg, pol, len(candles), res)

	_ = sinks.Emit(ctx, events.New(events.KindBacktestDone, cfg.Symbol, "backtest complete", map[string]any{
		"candles": len(candles), "trades": len(res.Trades), "losses": len(res.Losses),
		"final_balance": res.FinalBalance, "net_profit": res.Summary.NetProfit,
	}))
}

// loadCandles reads the series from the local cache or from Binance. Binance
// fetches are written through to the cache when SQLITE_PATH is set.
func loadCandles(ctx context.Context, cfg *config.Config, source, from string) ([]model.Candle, error) {
	switch source {
	case "sqlite":
		store, err := openStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.FetchCandles(ctx, cfg.Symbol, cfg.Timeframe, cfg.CandleLimit)

	case "binance":
		client, err := binance.New(binance.Config{BaseURL: cfg.BinanceBaseURL})
		if err != nil {
			return nil, err
		}
		var store *sqlitestore.CandleStore
		if cfg.SQLitePath != "" {
			if store, err = openStore(cfg.SQLitePath); err != nil {
				slog.Warn("[backtest] candle cache unavailable", "error", err)
				store = nil
			} else {
				defer store.Close()
			}
		}

		if from != "" {
			start, err := time.Parse(time.DateOnly, from)
			if err != nil {
				return nil, fmt.Errorf("bad --from: %w", err)
			}
			candles, err := client.FetchRange(ctx, cfg.Symbol, cfg.Timeframe, start.UnixMilli(), 0, 0)
			if err != nil {
				return nil, err
			}
			if store != nil && len(candles) > 1 {
				if err := store.Save(ctx, cfg.Symbol, cfg.Timeframe, candles[:len(candles)-1]); err != nil {
					slog.Warn("[backtest] cache write failed", "error", err)
				}
			}
			return candles, nil
		}

		var feed model.MarketData = client
		if store != nil {
			feed = sqlitestore.CachingFeed{Source: client, Store: store}
		}
		return feed.FetchCandles(ctx, cfg.Symbol, cfg.Timeframe, cfg.CandleLimit)
	}
	return nil, errors.New("unknown source " + source)
}

func openStore(path string) (*sqlitestore.CandleStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return sqlitestore.Open(path)
}

func recordJournal(ctx context.Context, cfg *config.Config, trades []portfolio.Trade) error {
	if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
		return err
	}
	j, err := execution.NewJournal(cfg.JournalPath)
	if err != nil {
		return err
	}
	defer j.Close()
	return j.RecordAll(ctx, execution.ModeBacktest, cfg.Symbol, trades)
}

func printSummary(cfg *config.Config, pol strategy.Policy, candles int, res portfolio.Result) {
	s := res.Summary
	open := "none"
	if res.Open != nil {
		open = fmt.Sprintf("%.2f @ %s", res.Open.Price, time.UnixMilli(res.Open.TS).UTC().Format("2006-01-02 15:04"))
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║              BACKTEST COMPLETE               ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Printf("║  Symbol:          %-26s ║\n", cfg.Symbol+" "+cfg.Timeframe)
	fmt.Printf("║  Policy:          %-26s ║\n", pol.String())
	fmt.Printf("║  Candles:         %-26d ║\n", candles)
	fmt.Printf("║  Trades:          %-26d ║\n", s.Trades)
	fmt.Printf("║  Wins / Losses:   %-26s ║\n", fmt.Sprintf("%d / %d", s.Wins, s.Losses))
	fmt.Printf("║  Win rate:        %-26s ║\n", fmt.Sprintf("%.1f%%", s.WinRate*100))
	fmt.Printf("║  Profit factor:   %-26.2f ║\n", s.ProfitFactor)
	fmt.Printf("║  Net profit:      %-26.2f ║\n", s.NetProfit)
	fmt.Printf("║  Max drawdown:    %-26s ║\n", fmt.Sprintf("%.2f (%.1f%%)", s.MaxDrawdown, s.MaxDDPct))
	fmt.Printf("║  Initial balance: %-26.2f ║\n", cfg.InitialBalance)
	fmt.Printf("║  Final balance:   %-26.2f ║\n", res.FinalBalance)
	fmt.Printf("║  Open position:   %-26s ║\n", open)
	fmt.Println("╚══════════════════════════════════════════════╝")
}
