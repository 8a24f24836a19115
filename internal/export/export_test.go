package export

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"kdjtrader/internal/indicator"
	"kdjtrader/internal/portfolio"
)

func TestWriteLossTrades(t *testing.T) {
	nan := math.NaN()
	entry := indicator.Frame{K: 20, D: 30, J: 0, SK: 25, SD: 28, SMA: 100, UB: 110, LB: 90, RSI: 35}
	exit := indicator.Frame{K: 70, D: 60, J: 90, SK: nan, SD: nan, SMA: 95, UB: 105, LB: 85, RSI: nan}

	trades := []portfolio.Trade{
		{EntryPrice: 100, ExitPrice: 110, Profit: 10, EntryTS: 0, ExitTS: 1000, Duration: time.Second},
		{EntryPrice: 100, ExitPrice: 80, Profit: -20, EntryTS: 1_700_000_000_000, ExitTS: 1_700_014_400_000,
			Duration: 4 * time.Hour, EntrySnapshot: entry, ExitSnapshot: exit},
	}

	path := filepath.Join(t.TempDir(), "loss_trades.json")
	if err := WriteLossTrades(path, trades); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var got []map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, raw)
	}
	if len(got) != 1 {
		t.Fatalf("records: got %d, want 1 (only losses)", len(got))
	}
	rec := got[0]
	if rec["profit"].(float64) != -20 {
		t.Errorf("profit: %v", rec["profit"])
	}
	if rec["open_datetime"] != "2023-11-14T22:13:20Z" || rec["close_datetime"] != "2023-11-15T02:13:20Z" {
		t.Errorf("datetimes: %v / %v", rec["open_datetime"], rec["close_datetime"])
	}
	if rec["duration"] != "4h0m0s" || rec["duration_ms"].(float64) != 14_400_000 {
		t.Errorf("duration: %v / %v", rec["duration"], rec["duration_ms"])
	}
	if rec["exit_RSI"] != nil {
		t.Errorf("undefined RSI must be null, got %v", rec["exit_RSI"])
	}
	exitSKDJ := rec["exit_SKDJ"].(map[string]any)
	if exitSKDJ["%SK"] != nil || exitSKDJ["%SD"] != nil {
		t.Errorf("undefined SKDJ must be null: %v", exitSKDJ)
	}
	openKDJ := rec["open_KDJ"].(map[string]any)
	if openKDJ["%K"].(float64) != 20 || openKDJ["%J"].(float64) != 0 {
		t.Errorf("open_KDJ: %v", openKDJ)
	}
	if b := rec["exit_Bollinger"].(map[string]any); b["UB"].(float64) != 105 {
		t.Errorf("exit_Bollinger: %v", b)
	}
}

func TestWriteLossTrades_EmptyIsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := WriteLossTrades(path, nil); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != "[]\n" {
		t.Errorf("got %q, want empty array", raw)
	}
}
