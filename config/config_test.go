package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv unsets every key Load reads so the host environment cannot leak
// in; t.Setenv first so the originals are restored after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SYMBOL", "TIMEFRAME", "CANDLE_LIMIT", "POLICY", "KDJ_PERIOD", "KDJ_SMOOTHING",
		"SKDJ_SK_PERIOD", "SKDJ_SD_PERIOD", "BOLL_PERIOD", "BOLL_MULT", "RSI_PERIOD",
		"INITIAL_BALANCE", "POSITION_FRACTION", "STOP_LOSS_FRACTION", "QUOTE_CURRENCY",
		"QTY_STEP", "LOOP_INTERVAL", "DRY_RUN", "PAPER_BALANCE", "SLIPPAGE_BPS",
		"BINANCE_API_KEY", "BINANCE_API_SECRET", "BINANCE_BASE_URL", "REDIS_ADDR",
		"REDIS_PASSWORD", "SQLITE_PATH", "JOURNAL_PATH", "METRICS_ADDR", "LOG_LEVEL",
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "WEBHOOK_URL",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_BacktestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(ModeBacktest, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Symbol != "BTC/USDT" || cfg.Timeframe != "4h" || cfg.CandleLimit != 1000 {
		t.Errorf("market defaults: %s %s %d", cfg.Symbol, cfg.Timeframe, cfg.CandleLimit)
	}
	if cfg.InitialBalance != 10000 || cfg.Policy != "crossover" {
		t.Errorf("balance/policy: %v %s", cfg.InitialBalance, cfg.Policy)
	}
	ind := cfg.Indicator()
	if ind.KPeriod != 14 || ind.DPeriod != 3 || ind.SKPeriod != 7 || ind.SDPeriod != 3 ||
		ind.BollPeriod != 20 || ind.BollMult != 2 || ind.RSIPeriod != 14 {
		t.Errorf("indicator defaults: %+v", ind)
	}
	if r := cfg.Risk(); r.PositionFraction != 0.75 || r.StopLossFraction != 0.15 {
		t.Errorf("risk defaults: %+v", r)
	}
}

func TestLoad_LiveDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DRY_RUN", "true")
	cfg, err := Load(ModeLive, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Timeframe != "15m" || cfg.CandleLimit != 100 || cfg.LoopInterval != 60*time.Second {
		t.Errorf("live defaults: %s %d %v", cfg.Timeframe, cfg.CandleLimit, cfg.LoopInterval)
	}
	if cfg.Policy != "level" {
		t.Errorf("live policy: %s", cfg.Policy)
	}
}

func TestLoad_LiveRequiresKeys(t *testing.T) {
	clearEnv(t)
	_, err := Load(ModeLive, "")
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Key != "BINANCE_API_KEY" {
		t.Fatalf("expected BINANCE_API_KEY error, got %v", err)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	content := "SYMBOL=ETH/USDT\nLOOP_INTERVAL=30\nBOLL_MULT=2.5\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	// Process env wins over the file.
	t.Setenv("BOLL_MULT", "3")

	cfg, err := Load(ModeBacktest, path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Symbol != "ETH/USDT" || cfg.LoopInterval != 30*time.Second || cfg.BollMult != 3 {
		t.Errorf("got %s %v %v", cfg.Symbol, cfg.LoopInterval, cfg.BollMult)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		key, value, wantKey string
	}{
		{"KDJ_PERIOD", "abc", "KDJ_PERIOD"},
		{"KDJ_PERIOD", "0", "KDJ_PERIOD"},
		{"POSITION_FRACTION", "1.5", "POSITION_FRACTION"},
		{"STOP_LOSS_FRACTION", "1", "STOP_LOSS_FRACTION"},
		{"LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"LOOP_INTERVAL", "soon", "LOOP_INTERVAL"},
		{"TELEGRAM_BOT_TOKEN", "abc", "TELEGRAM_CHAT_ID"},
		{"WEBHOOK_URL", "not a url", "WEBHOOK_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load(ModeBacktest, "")
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *config.Error, got %v", err)
			}
			if cerr.Key != tt.wantKey {
				t.Errorf("key: got %s, want %s (%v)", cerr.Key, tt.wantKey, err)
			}
		})
	}
}
