// Package live runs the polling decision loop against an exchange.
//
// Each cycle fetches the most recent candles, folds the closed ones into an
// incremental evaluator, previews the still-forming candle and acts on the
// fused decision. The stop-loss check overrides the signal while a position
// is open. Position state changes only after an order is confirmed.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kdjtrader/internal/events"
	"kdjtrader/internal/execution"
	"kdjtrader/internal/indicator"
	"kdjtrader/internal/logger"
	"kdjtrader/internal/metrics"
	"kdjtrader/internal/model"
	"kdjtrader/internal/portfolio"
	"kdjtrader/internal/strategy"
)

// Exit reasons recorded on live trades.
const (
	ReasonSignal   = "signal"
	ReasonStopLoss = "stop-loss"
)

// Config holds the loop parameters.
type Config struct {
	Symbol    string
	Timeframe string
	Limit     int
	Interval  time.Duration
	Quote     string
	Indicator indicator.Config
	Policy    strategy.Policy
	Risk      portfolio.RiskRules
	Mode      execution.Mode // journal tag, live or paper
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		Symbol:    "BTC/USDT",
		Timeframe: "15m",
		Limit:     100,
		Interval:  60 * time.Second,
		Quote:     "USDT",
		Indicator: indicator.DefaultConfig(),
		Policy:    strategy.PolicyLevel,
		Risk:      portfolio.DefaultRiskRules(),
		Mode:      execution.ModeLive,
	}
}

// TradeJournal persists closed trades.
type TradeJournal interface {
	RecordTrade(ctx context.Context, mode execution.Mode, symbol string, t portfolio.Trade) error
}

// Deps are the loop's collaborators. Market, Account and Orders are
// required; the rest are optional.
type Deps struct {
	Market  model.MarketData
	Account model.Account
	Orders  model.OrderPlacer
	Sink    events.Sink
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
	Journal TradeJournal
}

// Loop is the live decision loop. It is not safe for concurrent use.
type Loop struct {
	cfg  Config
	deps Deps

	eval     *strategy.Evaluator
	position *portfolio.Position
	ledger   *portfolio.Ledger
	now      func() time.Time

	// preview evaluates the forming candle; defaults to the evaluator.
	preview func(model.Candle) (indicator.Frame, strategy.Decision)
}

// New validates cfg and creates a loop starting flat.
func New(cfg Config, deps Deps) (*Loop, error) {
	if deps.Market == nil || deps.Account == nil || deps.Orders == nil {
		return nil, errors.New("live: market, account and order collaborators are required")
	}
	if err := cfg.Indicator.Validate(); err != nil {
		return nil, fmt.Errorf("live: %w", err)
	}
	if err := cfg.Risk.Validate(); err != nil {
		return nil, fmt.Errorf("live: %w", err)
	}
	if cfg.Limit < 2 {
		return nil, fmt.Errorf("live: candle limit %d leaves no closed candles", cfg.Limit)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Mode == "" {
		cfg.Mode = execution.ModeLive
	}
	if deps.Sink == nil {
		deps.Sink = events.Discard
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	l := &Loop{
		cfg:    cfg,
		deps:   deps,
		eval:   strategy.NewEvaluator(cfg.Indicator, cfg.Policy),
		ledger: portfolio.NewLedger(0),
		now:    time.Now,
	}
	l.preview = l.eval.Preview
	return l, nil
}

// Position returns a copy of the open position, if any.
func (l *Loop) Position() (portfolio.Position, bool) {
	if l.position == nil {
		return portfolio.Position{}, false
	}
	return *l.position, true
}

// Ledger returns the closed-trade ledger for this run.
func (l *Loop) Ledger() *portfolio.Ledger { return l.ledger }

// Run repeats RunCycle every Interval until ctx is cancelled. Cycle errors
// are logged and never stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.deps.Logger.Info("[live] starting",
		"symbol", l.cfg.Symbol, "timeframe", l.cfg.Timeframe,
		"interval", l.cfg.Interval.String(), "policy", l.cfg.Policy.String())

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			l.deps.Logger.Info("[live] stopped", "trades", len(l.ledger.Trades()))
			return nil
		case <-timer.C:
		}

		if err := l.RunCycle(ctx); err != nil && ctx.Err() == nil {
			l.deps.Logger.Warn("[live] cycle failed", "error", err)
		}
		timer.Reset(l.cfg.Interval)
	}
}

// RunCycle performs a single fetch/evaluate/act pass. A returned error is
// recoverable: the next cycle starts from the same position state.
func (l *Loop) RunCycle(ctx context.Context) (err error) {
	start := l.now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(l.cfg.Symbol, start))
	log := logger.FromContext(ctx, l.deps.Logger)

	defer func() {
		if m := l.deps.Metrics; m != nil {
			m.CyclesTotal.Inc()
			m.CycleDur.Observe(time.Since(start).Seconds())
			if l.position != nil {
				m.PositionOpen.Set(1)
			} else {
				m.PositionOpen.Set(0)
			}
		}
		if h := l.deps.Health; h != nil {
			h.RecordCycle(err, l.state())
		}
	}()

	candles, err := l.deps.Market.FetchCandles(ctx, l.cfg.Symbol, l.cfg.Timeframe, l.cfg.Limit)
	if err == nil && len(candles) == 0 {
		err = errors.New("empty response")
	}
	if err == nil {
		err = model.ValidateSeries(candles)
	}
	if err != nil {
		if !errors.Is(err, model.ErrDataUnavailable) {
			err = fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
		}
		log.Warn("[live] market data unavailable", "error", err)
		l.emit(ctx, events.KindDataUnavailable, "market data unavailable", map[string]any{"error": err.Error()})
		if m := l.deps.Metrics; m != nil {
			m.DataErrorsTotal.Inc()
		}
		return err
	}

	n := len(candles)
	l.absorb(ctx, candles[:n-1])
	forming := candles[n-1]
	frame, dec := l.preview(forming)

	if m := l.deps.Metrics; m != nil {
		m.SignalsTotal.WithLabelValues(string(dec.Action)).Inc()
		m.LastClose.Set(forming.Close)
	}
	log.Info("[live] decision",
		append([]any{"action", string(dec.Action), "buy_votes", dec.BuyCount, "sell_votes", dec.SellCount,
			"state", l.state()}, frame.Attrs()...)...)
	l.emit(ctx, events.KindSignal, dec.Reason, map[string]any{
		"action": string(dec.Action), "close": forming.Close, "ts": forming.TS,
	})

	return l.act(ctx, log, forming, frame, dec)
}

// absorb folds closed candles newer than the engine's history into the
// evaluator. When the fetched window no longer overlaps that history the
// evaluator is reset and warmed up from scratch.
func (l *Loop) absorb(ctx context.Context, closed []model.Candle) {
	if len(closed) == 0 {
		return
	}
	eng := l.eval.Engine()
	from := 0
	if eng.Count() > 0 {
		last := eng.LastTS()
		from = -1
		for i, c := range closed {
			if c.TS == last {
				from = i + 1
				break
			}
		}
		if from < 0 {
			if closed[len(closed)-1].TS <= last {
				return // nothing newer
			}
			l.deps.Logger.Info("[live] history gap, re-warming",
				"last_ts", last, "window_start", closed[0].TS)
			l.eval.Reset()
			from = 0
		}
	}
	if from >= len(closed) {
		return
	}
	if from == 0 {
		l.emit(ctx, events.KindWarmup, "warming up indicators", map[string]any{
			"candles": len(closed), "warmup": l.cfg.Indicator.Warmup(),
		})
	}
	for _, c := range closed[from:] {
		l.eval.Step(c)
	}
}

func (l *Loop) act(ctx context.Context, log *slog.Logger, c model.Candle, f indicator.Frame, d strategy.Decision) error {
	if l.position == nil {
		if d.Action == strategy.ActionBuy {
			return l.buy(ctx, log, c, f)
		}
		return nil
	}

	if l.cfg.Risk.StopLossHit(l.position.Price, c.Close) {
		log.Warn("[live] stop-loss triggered",
			"entry", l.position.Price, "close", c.Close, "stop", l.cfg.Risk.StopPrice(l.position.Price))
		l.emit(ctx, events.KindStopLoss, "stop-loss triggered", map[string]any{
			"entry": l.position.Price, "close": c.Close,
		})
		return l.sell(ctx, log, c, f, ReasonStopLoss)
	}
	if d.Action == strategy.ActionSell {
		return l.sell(ctx, log, c, f, ReasonSignal)
	}
	return nil
}

func (l *Loop) buy(ctx context.Context, log *slog.Logger, c model.Candle, f indicator.Frame) error {
	balance, err := l.deps.Account.AvailableBalance(ctx, l.cfg.Quote)
	if err != nil {
		log.Warn("[live] balance fetch failed, treating as zero", "currency", l.cfg.Quote, "error", err)
		balance = 0
	}
	if m := l.deps.Metrics; m != nil {
		m.Balance.Set(balance)
	}

	notional, qty, err := l.cfg.Risk.Size(balance, c.Close)
	if err != nil {
		log.Warn("[live] buy skipped", "balance", balance, "error", err)
		l.emit(ctx, events.KindBalanceSkipped, "buy skipped: no available balance", map[string]any{
			"currency": l.cfg.Quote, "balance": balance,
		})
		if m := l.deps.Metrics; m != nil {
			m.SkippedBuys.Inc()
		}
		return nil
	}

	conf, err := l.deps.Orders.PlaceMarketOrder(ctx, l.cfg.Symbol, model.SideBuy, qty)
	if err != nil {
		return l.orderFailed(ctx, log, model.SideBuy, qty, err)
	}
	l.orderOK(model.SideBuy)

	price, filled := c.Close, qty
	if conf.AvgPrice > 0 {
		price = conf.AvgPrice
	}
	if conf.Qty > 0 {
		filled = conf.Qty
	}
	l.position = &portfolio.Position{
		Entry:    portfolio.Entry{Price: price, TS: l.now().UnixMilli(), Snapshot: f},
		Quantity: filled,
		OrderID:  conf.OrderID,
	}

	log.Info("[live] position opened", "price", price, "qty", filled, "notional", notional, "order_id", conf.OrderID)
	l.emit(ctx, events.KindTradeOpened, "position opened", map[string]any{
		"price": price, "qty": filled, "notional": notional, "order_id": conf.OrderID,
	})
	return nil
}

func (l *Loop) sell(ctx context.Context, log *slog.Logger, c model.Candle, f indicator.Frame, reason string) error {
	pos := *l.position
	conf, err := l.deps.Orders.PlaceMarketOrder(ctx, l.cfg.Symbol, model.SideSell, pos.Quantity)
	if err != nil {
		return l.orderFailed(ctx, log, model.SideSell, pos.Quantity, err)
	}
	l.orderOK(model.SideSell)

	exit := c.Close
	if conf.AvgPrice > 0 {
		exit = conf.AvgPrice
	}
	trade := pos.Close(exit, l.now().UnixMilli(), f, reason)
	l.position = nil
	realized := l.ledger.Record(trade)

	if m := l.deps.Metrics; m != nil {
		m.TradesTotal.WithLabelValues(reason).Inc()
		m.RealizedPnL.Set(realized)
	}
	if j := l.deps.Journal; j != nil {
		if err := j.RecordTrade(ctx, l.cfg.Mode, l.cfg.Symbol, trade); err != nil {
			log.Error("[live] journal write failed", "error", err)
		}
	}

	log.Info("[live] position closed",
		"reason", reason, "entry", trade.EntryPrice, "exit", trade.ExitPrice,
		"qty", trade.Quantity, "profit", trade.Profit, "duration", trade.Duration.String())
	l.emit(ctx, events.KindTradeClosed, "position closed: "+reason, map[string]any{
		"reason": reason, "entry": trade.EntryPrice, "exit": trade.ExitPrice,
		"qty": trade.Quantity, "profit": trade.Profit, "order_id": conf.OrderID,
	})
	return nil
}

func (l *Loop) orderFailed(ctx context.Context, log *slog.Logger, side model.Side, qty float64, err error) error {
	if !errors.Is(err, model.ErrOrderFailed) {
		err = fmt.Errorf("%w: %v", model.ErrOrderFailed, err)
	}
	log.Error("[live] order failed", "side", string(side), "qty", qty, "error", err)
	l.emit(ctx, events.KindOrderFailed, string(side)+" order failed", map[string]any{
		"side": string(side), "qty": qty, "error": err.Error(),
	})
	if m := l.deps.Metrics; m != nil {
		m.OrdersTotal.WithLabelValues(string(side), "failed").Inc()
	}
	return err
}

func (l *Loop) orderOK(side model.Side) {
	if m := l.deps.Metrics; m != nil {
		m.OrdersTotal.WithLabelValues(string(side), "ok").Inc()
	}
}

func (l *Loop) emit(ctx context.Context, kind events.Kind, msg string, fields map[string]any) {
	if err := l.deps.Sink.Emit(ctx, events.New(kind, l.cfg.Symbol, msg, fields)); err != nil {
		l.deps.Logger.Warn("[live] event sink error", "kind", string(kind), "error", err)
	}
}

func (l *Loop) state() string {
	if l.position != nil {
		return "LONG"
	}
	return "FLAT"
}
