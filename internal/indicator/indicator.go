// Package indicator computes the oscillator, band and momentum series that
// drive the strategy.
//
// All indicators implement the Indicator interface and write their outputs
// into a shared Frame. Undefined values (not enough history, zero range) are
// NaN. Indicators keep window-sized state only, so a closed candle costs
// bounded work and a forming candle can be previewed with Peek without
// touching that state.
package indicator

import (
	"fmt"
	"log/slog"
	"math"

	"kdjtrader/internal/model"
)

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name with its parameters (e.g. "KDJ(14,3)").
	Name() string

	// Update feeds a closed candle and writes the new values into f.
	Update(c model.Candle, f *Frame)

	// Peek writes the values Update would produce for c into f,
	// WITHOUT mutating internal state.
	Peek(c model.Candle, f *Frame)

	// Ready returns true once every output is past its warm-up.
	Ready() bool

	// Reset clears all state.
	Reset()
}

// Frame holds every indicator value for one candle. NaN means undefined.
type Frame struct {
	TS    int64   `json:"ts"`
	Close float64 `json:"close"`

	K  float64 `json:"k"`
	D  float64 `json:"d"`
	J  float64 `json:"j"`
	SK float64 `json:"sk"`
	SD float64 `json:"sd"`

	SMA float64 `json:"sma"`
	Std float64 `json:"std"`
	UB  float64 `json:"ub"`
	LB  float64 `json:"lb"`

	RSI float64 `json:"rsi"`
}

// EmptyFrame returns a frame with every indicator undefined.
func EmptyFrame(c model.Candle) Frame {
	nan := math.NaN()
	return Frame{
		TS: c.TS, Close: c.Close,
		K: nan, D: nan, J: nan, SK: nan, SD: nan,
		SMA: nan, Std: nan, UB: nan, LB: nan,
		RSI: nan,
	}
}

// Attrs returns the frame as slog attributes for decision logging.
// Undefined values are logged as null.
func (f Frame) Attrs() []any {
	return []any{
		slog.Int64("ts", f.TS),
		num("close", f.Close),
		slog.Group("kdj", num("k", f.K), num("d", f.D), num("j", f.J)),
		slog.Group("skdj", num("sk", f.SK), num("sd", f.SD)),
		slog.Group("boll", num("sma", f.SMA), num("ub", f.UB), num("lb", f.LB)),
		num("rsi", f.RSI),
	}
}

func num(key string, v float64) slog.Attr {
	if p := Nullable(v); p != nil {
		return slog.Float64(key, *p)
	}
	return slog.Any(key, nil)
}

// Nullable maps undefined values to nil for JSON export.
func Nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Config holds the window parameters of every indicator.
type Config struct {
	KPeriod    int     `json:"k_period"`    // stochastic lookback
	DPeriod    int     `json:"d_period"`    // %D smoothing of %K
	SKPeriod   int     `json:"sk_period"`   // %SK smoothing of %K
	SDPeriod   int     `json:"sd_period"`   // %SD smoothing of %SK
	BollPeriod int     `json:"boll_period"` // band moving average and std window
	BollMult   float64 `json:"boll_mult"`   // band width in standard deviations
	RSIPeriod  int     `json:"rsi_period"`  // number of close-to-close deltas
}

// DefaultConfig returns KDJ(14,3), SKDJ(7,3), BOLL(20,2), RSI(14).
func DefaultConfig() Config {
	return Config{
		KPeriod:    14,
		DPeriod:    3,
		SKPeriod:   7,
		SDPeriod:   3,
		BollPeriod: 20,
		BollMult:   2,
		RSIPeriod:  14,
	}
}

// Validate rejects windows below one and negative band multipliers.
func (c Config) Validate() error {
	windows := []struct {
		name string
		v    int
	}{
		{"k_period", c.KPeriod},
		{"d_period", c.DPeriod},
		{"sk_period", c.SKPeriod},
		{"sd_period", c.SDPeriod},
		{"boll_period", c.BollPeriod},
		{"rsi_period", c.RSIPeriod},
	}
	for _, w := range windows {
		if w.v < 1 {
			return fmt.Errorf("invalid %s=%d: must be >= 1", w.name, w.v)
		}
	}
	if c.BollMult < 0 || math.IsNaN(c.BollMult) {
		return fmt.Errorf("invalid boll_mult=%v: must be >= 0", c.BollMult)
	}
	return nil
}

// Warmup returns the number of candles after which every indicator in a
// frame can be defined.
func (c Config) Warmup() int {
	n := c.KPeriod + c.DPeriod - 1
	if sk := c.KPeriod + c.SKPeriod + c.SDPeriod - 2; sk > n {
		n = sk
	}
	if c.BollPeriod > n {
		n = c.BollPeriod
	}
	if c.RSIPeriod+1 > n {
		n = c.RSIPeriod + 1
	}
	return n
}
