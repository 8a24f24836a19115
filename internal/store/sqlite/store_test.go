package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"kdjtrader/internal/model"
)

func openTemp(t *testing.T) *CandleStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "candles.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func candles(n int, from int64) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		p := float64(100 + i)
		out[i] = model.Candle{TS: from + int64(i)*60_000, Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 10}
	}
	return out
}

func TestCandleStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	if err := s.Save(ctx, "BTC/USDT", "4h", candles(10, 0)); err != nil {
		t.Fatal(err)
	}
	// Overlapping upsert must not duplicate.
	if err := s.Save(ctx, "BTC/USDT", "4h", candles(5, 5*60_000)); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, "ETH/USDT", "4h", candles(3, 0)); err != nil {
		t.Fatal(err)
	}

	all, err := s.Load(ctx, "BTC/USDT", "4h", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 10 {
		t.Fatalf("loaded %d candles, want 10", len(all))
	}
	if err := model.ValidateSeries(all); err != nil {
		t.Errorf("not ascending: %v", err)
	}

	tail, err := s.Load(ctx, "BTC/USDT", "4h", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 3 || tail[0].TS != 7*60_000 || tail[2].TS != 9*60_000 {
		t.Errorf("tail: %+v", tail)
	}

	last, err := s.LastTimestamp(ctx, "BTC/USDT", "4h")
	if err != nil || last != 9*60_000 {
		t.Errorf("last ts: %d, %v", last, err)
	}
}

func TestCandleStore_FetchEmpty(t *testing.T) {
	s := openTemp(t)
	_, err := s.FetchCandles(context.Background(), "BTC/USDT", "1h", 100)
	if !errors.Is(err, model.ErrDataUnavailable) {
		t.Errorf("expected ErrDataUnavailable, got %v", err)
	}
}

type sliceFeed []model.Candle

func (f sliceFeed) FetchCandles(context.Context, string, string, int) ([]model.Candle, error) {
	return f, nil
}

func TestCachingFeed_SkipsFormingCandle(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	feed := CachingFeed{Source: sliceFeed(candles(4, 0)), Store: s}

	got, err := feed.FetchCandles(ctx, "BTC/USDT", "15m", 4)
	if err != nil || len(got) != 4 {
		t.Fatalf("fetch: %d, %v", len(got), err)
	}
	stored, _ := s.Load(ctx, "BTC/USDT", "15m", 0)
	if len(stored) != 3 {
		t.Errorf("stored %d candles, want 3", len(stored))
	}
}
