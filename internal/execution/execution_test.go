package execution

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"kdjtrader/internal/model"
	"kdjtrader/internal/portfolio"
)

type staticFeed struct{ candles []model.Candle }

func (f staticFeed) FetchCandles(context.Context, string, string, int) ([]model.Candle, error) {
	return f.candles, nil
}

func TestPaperBroker_BuyAndSell(t *testing.T) {
	ctx := context.Background()
	feed := staticFeed{candles: []model.Candle{{TS: 1, Close: 90}, {TS: 2, Close: 100}}}
	p := NewPaperBroker(feed, "USDT", 1000, 0)

	if _, err := p.FetchCandles(ctx, "BTC/USDT", "15m", 2); err != nil {
		t.Fatal(err)
	}
	conf, err := p.PlaceMarketOrder(ctx, "BTC/USDT", model.SideBuy, 5)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if conf.AvgPrice != 100 || conf.OrderID != "PAPER-1" || conf.ClientOrderID == "" {
		t.Errorf("confirmation: %+v", conf)
	}

	cash, _ := p.AvailableBalance(ctx, "usdt")
	btc, _ := p.AvailableBalance(ctx, "BTC")
	if cash != 500 || btc != 5 {
		t.Errorf("after buy: cash=%v btc=%v", cash, btc)
	}

	p.SetMark("BTC/USDT", 120)
	if _, err := p.PlaceMarketOrder(ctx, "BTC/USDT", model.SideSell, 5); err != nil {
		t.Fatalf("sell: %v", err)
	}
	cash, _ = p.AvailableBalance(ctx, "USDT")
	if cash != 1100 {
		t.Errorf("after sell: cash=%v, want 1100", cash)
	}
	if n := len(p.Fills()); n != 2 {
		t.Errorf("fills: got %d, want 2", n)
	}
}

func TestPaperBroker_Slippage(t *testing.T) {
	p := NewPaperBroker(staticFeed{}, "USDT", 10000, 50) // 0.5%
	p.SetMark("BTCUSDT", 200)

	conf, err := p.PlaceMarketOrder(context.Background(), "BTCUSDT", model.SideBuy, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(conf.AvgPrice-201) > 1e-9 {
		t.Errorf("buy fill: got %v, want 201", conf.AvgPrice)
	}
	conf, err = p.PlaceMarketOrder(context.Background(), "BTCUSDT", model.SideSell, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(conf.AvgPrice-199) > 1e-9 {
		t.Errorf("sell fill: got %v, want 199", conf.AvgPrice)
	}
}

func TestPaperBroker_Rejections(t *testing.T) {
	ctx := context.Background()
	p := NewPaperBroker(staticFeed{}, "USDT", 100, 0)

	if _, err := p.PlaceMarketOrder(ctx, "BTC/USDT", model.SideBuy, 1); !errors.Is(err, model.ErrOrderFailed) {
		t.Errorf("no mark: got %v", err)
	}
	p.SetMark("BTC/USDT", 50)
	if _, err := p.PlaceMarketOrder(ctx, "BTC/USDT", model.SideBuy, 3); !errors.Is(err, model.ErrOrderFailed) {
		t.Errorf("insufficient cash: got %v", err)
	}
	if _, err := p.PlaceMarketOrder(ctx, "BTC/USDT", model.SideSell, 1); !errors.Is(err, model.ErrOrderFailed) {
		t.Errorf("insufficient base: got %v", err)
	}
	if cash, _ := p.AvailableBalance(ctx, "USDT"); cash != 100 {
		t.Errorf("rejected orders must not move cash: %v", cash)
	}
}

func TestBaseAsset(t *testing.T) {
	for in, want := range map[string]string{
		"BTC/USDT": "BTC", "eth-usdt": "ETH", "SOLUSDT": "SOL",
	} {
		if got := baseAsset(in, "USDT"); got != want {
			t.Errorf("baseAsset(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJournal_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	first := portfolio.Trade{EntryPrice: 100, ExitPrice: 90, Profit: -10, Quantity: 1,
		EntryTS: 0, ExitTS: 3_600_000, Duration: time.Hour, Reason: "signal"}
	if err := j.RecordTrade(ctx, ModeLive, "BTC/USDT", first); err != nil {
		t.Fatal(err)
	}
	batch := []portfolio.Trade{
		{EntryPrice: 90, ExitPrice: 95, Profit: 5, Quantity: 1, EntryTS: 1, ExitTS: 2, Duration: time.Millisecond},
		{EntryPrice: 95, ExitPrice: 80, Profit: -15, Quantity: 1, EntryTS: 3, ExitTS: 4, Duration: time.Millisecond, Reason: "stop-loss"},
	}
	if err := j.RecordAll(ctx, ModeBacktest, "BTC/USDT", batch); err != nil {
		t.Fatal(err)
	}

	recs, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("records: got %d, want 3", len(recs))
	}
	if recs[0].Reason != "stop-loss" || recs[0].Mode != "backtest" {
		t.Errorf("newest record: %+v", recs[0])
	}
	last := recs[2]
	if last.Mode != "live" || last.Profit != -10 || last.Duration() != time.Hour {
		t.Errorf("oldest record: %+v", last)
	}
}
