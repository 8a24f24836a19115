// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"kdjtrader/internal/indicator"
	"kdjtrader/internal/portfolio"
)

// Mode selects mode-specific defaults.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
)

// Error is a configuration problem. Binaries exit before any loop starts.
type Error struct {
	Key string
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Key, e.Msg, e.Err)
	}
	return fmt.Sprintf("config: %s: %s", e.Key, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Mode Mode `env:"MODE"`

	// Market
	Symbol      string `env:"SYMBOL" validate:"required"`
	Timeframe   string `env:"TIMEFRAME" validate:"required"`
	CandleLimit int    `env:"CANDLE_LIMIT" validate:"gte=2,lte=1000"`
	Policy      string `env:"POLICY" validate:"oneof=crossover historical level live"`

	// Indicators
	KDJPeriod    int     `env:"KDJ_PERIOD" validate:"gte=1"`
	KDJSmoothing int     `env:"KDJ_SMOOTHING" validate:"gte=1"`
	SKPeriod     int     `env:"SKDJ_SK_PERIOD" validate:"gte=1"`
	SDPeriod     int     `env:"SKDJ_SD_PERIOD" validate:"gte=1"`
	BollPeriod   int     `env:"BOLL_PERIOD" validate:"gte=1"`
	BollMult     float64 `env:"BOLL_MULT" validate:"gte=0"`
	RSIPeriod    int     `env:"RSI_PERIOD" validate:"gte=1"`

	// Money
	InitialBalance   float64 `env:"INITIAL_BALANCE" validate:"gte=0"`
	PositionFraction float64 `env:"POSITION_FRACTION" validate:"gt=0,lte=1"`
	StopLossFraction float64 `env:"STOP_LOSS_FRACTION" validate:"gt=0,lt=1"`
	QuoteCurrency    string  `env:"QUOTE_CURRENCY" validate:"required,alphanum"`
	QtyStep          string  `env:"QTY_STEP" validate:"omitempty,numeric"`

	// Live loop
	LoopInterval time.Duration `env:"LOOP_INTERVAL" validate:"gt=0"`
	DryRun       bool          `env:"DRY_RUN"`
	PaperBalance float64       `env:"PAPER_BALANCE" validate:"gt=0"`
	SlippageBps  int64         `env:"SLIPPAGE_BPS" validate:"gte=0"`

	// Exchange
	BinanceAPIKey  string `env:"BINANCE_API_KEY"`
	BinanceSecret  string `env:"BINANCE_API_SECRET"`
	BinanceBaseURL string `env:"BINANCE_BASE_URL" validate:"required,url"`

	// Infrastructure
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	SQLitePath    string `env:"SQLITE_PATH"`
	JournalPath   string `env:"JOURNAL_PATH"`
	MetricsAddr   string `env:"METRICS_ADDR"`
	LogLevel      string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`

	// Notifications
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `env:"TELEGRAM_CHAT_ID" validate:"required_with=TelegramBotToken"`
	WebhookURL       string `env:"WEBHOOK_URL" validate:"omitempty,url"`
}

// Load reads envFile (if it exists) into the process environment without
// overriding variables already set, then builds and validates a Config.
func Load(mode Mode, envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, &Error{Key: envFile, Msg: "cannot parse env file", Err: err}
			}
		}
	}

	timeframe, limit := "4h", 1000
	if mode == ModeLive {
		timeframe, limit = "15m", 100
	}

	p := &parser{}
	cfg := &Config{
		Mode:        mode,
		Symbol:      getEnv("SYMBOL", "BTC/USDT"),
		Timeframe:   getEnv("TIMEFRAME", timeframe),
		CandleLimit: p.int("CANDLE_LIMIT", limit),
		Policy:      getEnv("POLICY", defaultPolicy(mode)),

		KDJPeriod:    p.int("KDJ_PERIOD", 14),
		KDJSmoothing: p.int("KDJ_SMOOTHING", 3),
		SKPeriod:     p.int("SKDJ_SK_PERIOD", 7),
		SDPeriod:     p.int("SKDJ_SD_PERIOD", 3),
		BollPeriod:   p.int("BOLL_PERIOD", 20),
		BollMult:     p.float("BOLL_MULT", 2),
		RSIPeriod:    p.int("RSI_PERIOD", 14),

		InitialBalance:   p.float("INITIAL_BALANCE", 10000),
		PositionFraction: p.float("POSITION_FRACTION", 0.75),
		StopLossFraction: p.float("STOP_LOSS_FRACTION", 0.15),
		QuoteCurrency:    strings.ToUpper(getEnv("QUOTE_CURRENCY", "USDT")),
		QtyStep:          getEnv("QTY_STEP", ""),

		LoopInterval: p.duration("LOOP_INTERVAL", 60*time.Second),
		DryRun:       p.bool("DRY_RUN", false),
		PaperBalance: p.float("PAPER_BALANCE", 10000),
		SlippageBps:  int64(p.int("SLIPPAGE_BPS", 5)),

		BinanceAPIKey:  getEnv("BINANCE_API_KEY", ""),
		BinanceSecret:  getEnv("BINANCE_API_SECRET", ""),
		BinanceBaseURL: getEnv("BINANCE_BASE_URL", "https://api.binance.com"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		JournalPath:   getEnv("JOURNAL_PATH", "data/journal.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultPolicy(mode Mode) string {
	if mode == ModeLive {
		return "level"
	}
	return "crossover"
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report env keys instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &Error{Key: fe.Field(), Msg: fmt.Sprintf("failed %q rule (value %v)", fe.Tag(), fe.Value())}
		}
		return &Error{Key: "config", Msg: "invalid", Err: err}
	}
	if c.Mode == ModeLive && !c.DryRun && (c.BinanceAPIKey == "" || c.BinanceSecret == "") {
		return &Error{Key: "BINANCE_API_KEY", Msg: "api key and secret are required unless DRY_RUN is set"}
	}
	if err := c.Indicator().Validate(); err != nil {
		return &Error{Key: "indicator", Msg: "invalid parameters", Err: err}
	}
	return nil
}

// Indicator returns the indicator parameters.
func (c *Config) Indicator() indicator.Config {
	return indicator.Config{
		KPeriod:    c.KDJPeriod,
		DPeriod:    c.KDJSmoothing,
		SKPeriod:   c.SKPeriod,
		SDPeriod:   c.SDPeriod,
		BollPeriod: c.BollPeriod,
		BollMult:   c.BollMult,
		RSIPeriod:  c.RSIPeriod,
	}
}

// Risk returns the sizing and stop-loss rules.
func (c *Config) Risk() portfolio.RiskRules {
	return portfolio.RiskRules{PositionFraction: c.PositionFraction, StopLossFraction: c.StopLossFraction}
}

// parser collects the first conversion error.
type parser struct{ err error }

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = &Error{Key: key, Msg: fmt.Sprintf("cannot parse %q", raw), Err: err}
	}
}

func (p *parser) int(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return f
}

func (p *parser) bool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return b
}

// duration accepts Go durations ("90s") or bare seconds ("60").
func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return d
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
