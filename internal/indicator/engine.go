package indicator

import (
	"kdjtrader/internal/model"
)

// Engine computes every configured indicator for one symbol's candle stream.
// Designed for single-goroutine usage — no locks needed.
type Engine struct {
	cfg        Config
	indicators []Indicator

	count  int
	lastTS int64
}

// NewEngine creates an indicator engine. cfg must pass Validate.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg: cfg,
		indicators: []Indicator{
			NewStochastic(cfg.KPeriod, cfg.DPeriod, cfg.SKPeriod, cfg.SDPeriod),
			NewBollinger(cfg.BollPeriod, cfg.BollMult),
			NewRSI(cfg.RSIPeriod),
		},
	}
}

// Config returns the engine parameters.
func (e *Engine) Config() Config { return e.cfg }

// Update consumes a closed candle and returns its frame.
func (e *Engine) Update(c model.Candle) Frame {
	f := EmptyFrame(c)
	for _, ind := range e.indicators {
		ind.Update(c, &f)
	}
	e.count++
	e.lastTS = c.TS
	return f
}

// Peek returns the frame Update would return for c, without mutating state.
// Used for the forming candle at the head of a live tail.
func (e *Engine) Peek(c model.Candle) Frame {
	f := EmptyFrame(c)
	for _, ind := range e.indicators {
		ind.Peek(c, &f)
	}
	return f
}

// Ready reports whether every indicator is past its warm-up.
func (e *Engine) Ready() bool {
	for _, ind := range e.indicators {
		if !ind.Ready() {
			return false
		}
	}
	return true
}

// Count returns the number of closed candles consumed.
func (e *Engine) Count() int { return e.count }

// LastTS returns the timestamp of the last consumed candle, 0 if none.
func (e *Engine) LastTS() int64 { return e.lastTS }

// Names lists the indicator names in evaluation order.
func (e *Engine) Names() []string {
	names := make([]string, len(e.indicators))
	for i, ind := range e.indicators {
		names[i] = ind.Name()
	}
	return names
}

// Reset clears all indicator state.
func (e *Engine) Reset() {
	for _, ind := range e.indicators {
		ind.Reset()
	}
	e.count = 0
	e.lastTS = 0
}

// Compute runs a fresh engine over the whole series and returns one frame
// per candle.
func Compute(cfg Config, candles []model.Candle) []Frame {
	e := NewEngine(cfg)
	frames := make([]Frame, len(candles))
	for i, c := range candles {
		frames[i] = e.Update(c)
	}
	return frames
}
