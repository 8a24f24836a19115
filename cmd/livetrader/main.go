// cmd/livetrader polls Binance, evaluates the level policy on the forming
// candle and places market orders with a stop-loss override.
//
// Usage:
//
//	DRY_RUN=true go run ./cmd/livetrader
//	BINANCE_API_KEY=... BINANCE_API_SECRET=... go run ./cmd/livetrader --env=prod.env
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"kdjtrader/config"
	"kdjtrader/internal/events"
	"kdjtrader/internal/exchange/binance"
	"kdjtrader/internal/execution"
	"kdjtrader/internal/live"
	"kdjtrader/internal/logger"
	"kdjtrader/internal/metrics"
	"kdjtrader/internal/model"
	"kdjtrader/internal/notification"
	redisstore "kdjtrader/internal/store/redis"
	sqlitestore "kdjtrader/internal/store/sqlite"
	"kdjtrader/internal/strategy"
)

func main() {
	envFile := flag.String("env", ".env", "Path to .env file (optional)")
	once := flag.Bool("once", false, "Run a single cycle and exit")
	flag.Parse()

	cfg, err := config.Load(config.ModeLive, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "livetrader: %v\n", err)
		os.Exit(2)
	}
	level, _ := logger.ParseLevel(cfg.LogLevel)
	log := logger.Init("livetrader", level)

	pol, err := strategy.ParsePolicy(cfg.Policy)
	if err != nil {
		log.Error("[livetrader] bad policy", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Metrics & health ----
	prom := metrics.New()
	health := metrics.NewHealthStatus(3 * cfg.LoopInterval)
	var metricsSrv *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr, prom, health)
		metricsSrv.Start()
	}

	// ---- Exchange collaborators ----
	client, err := binance.New(binance.Config{
		BaseURL: cfg.BinanceBaseURL,
		APIKey:  cfg.BinanceAPIKey,
		Secret:  cfg.BinanceSecret,
		QtyStep: cfg.QtyStep,
	})
	if err != nil {
		log.Error("[livetrader] binance client", "error", err)
		os.Exit(2)
	}

	var market model.MarketData = client
	if cfg.SQLitePath != "" {
		store, err := openStore(cfg.SQLitePath)
		if err != nil {
			log.Warn("[livetrader] candle cache unavailable", "error", err)
		} else {
			defer store.Close()
			market = sqlitestore.CachingFeed{Source: client, Store: store}
		}
	}

	var (
		account model.Account     = client
		orders  model.OrderPlacer = client
		mode                      = execution.ModeLive
	)
	if cfg.DryRun {
		paper := execution.NewPaperBroker(market, cfg.QuoteCurrency, cfg.PaperBalance, cfg.SlippageBps)
		market, account, orders, mode = paper, paper, paper, execution.ModePaper
		log.Warn("[livetrader] *** DRY RUN: orders are simulated ***",
			"paper_balance", cfg.PaperBalance, "slippage_bps", cfg.SlippageBps)
	}

	// ---- Event sinks ----
	sinks := events.Multi{events.NewLogSink(log)}

	health.SetRedis(false, false)
	if cfg.RedisAddr != "" {
		pub, err := redisstore.NewPublisher(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Warn("[livetrader] redis init failed, continuing without redis", "error", err)
			health.SetRedis(true, false)
		} else {
			defer pub.Close()
			health.SetRedis(true, true)
			pub.OnBuffer = prom.RedisBufferedEvents.Inc
			pub.OnStateChange = func(to redisstore.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				health.SetRedis(true, to == redisstore.StateClosed)
			}
			sinks = append(sinks, pub)
		}
	}

	if cfg.TelegramBotToken != "" {
		sinks = append(sinks, notification.NewEventSink(
			notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)))
		log.Info("[livetrader] telegram alerts enabled")
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notification.NewEventSink(notification.NewWebhookNotifier(cfg.WebhookURL)))
		log.Info("[livetrader] webhook alerts enabled")
	}

	// ---- Trade journal ----
	var journal live.TradeJournal
	if cfg.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
			log.Warn("[livetrader] journal dir", "error", err)
		} else if j, err := execution.NewJournal(cfg.JournalPath); err != nil {
			log.Warn("[livetrader] journal unavailable", "error", err)
		} else {
			defer j.Close()
			journal = j
		}
	}

	// ---- Decision loop ----
	loop, err := live.New(live.Config{
		Symbol:    cfg.Symbol,
		Timeframe: cfg.Timeframe,
		Limit:     cfg.CandleLimit,
		Interval:  cfg.LoopInterval,
		Quote:     cfg.QuoteCurrency,
		Indicator: cfg.Indicator(),
		Policy:    pol,
		Risk:      cfg.Risk(),
		Mode:      mode,
	}, live.Deps{
		Market:  market,
		Account: account,
		Orders:  orders,
		Sink:    sinks,
		Logger:  log,
		Metrics: prom,
		Health:  health,
		Journal: journal,
	})
	if err != nil {
		log.Error("[livetrader] loop init failed", "error", err)
		os.Exit(2)
	}

	if *once {
		if err := loop.RunCycle(ctx); err != nil {
			log.Error("[livetrader] cycle failed", "error", err)
		}
	} else if err := loop.Run(ctx); err != nil {
		log.Error("[livetrader] loop exited", "error", err)
	}

	// ---- Shutdown ----
	if pos, ok := loop.Position(); ok {
		log.Warn("[livetrader] exiting with an open position",
			"entry", pos.Price, "qty", pos.Quantity, "order_id", pos.OrderID)
	}
	s := loop.Ledger().Summary()
	log.Info("[livetrader] session summary",
		"trades", s.Trades, "wins", s.Wins, "losses", s.Losses, "realized", s.NetProfit)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Stop(shutdownCtx); err != nil {
			log.Warn("[livetrader] metrics shutdown", "error", err)
		}
	}
	log.Info("[livetrader] stopped")
}

func openStore(path string) (*sqlitestore.CandleStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return sqlitestore.Open(path)
}
