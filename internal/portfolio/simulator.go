package portfolio

import (
	"fmt"

	"kdjtrader/internal/indicator"
	"kdjtrader/internal/model"
	"kdjtrader/internal/strategy"
)

// Result is the outcome of a historical run.
type Result struct {
	Trades       []Trade
	Losses       []Trade
	FinalBalance float64
	Open         *Entry // still-open entry at the end of the series, not force-closed
	Summary      Summary
}

// Simulator folds Step over a series.
type Simulator struct {
	Initial float64
	// OnTrade, when set, is called for every closed trade in order.
	OnTrade func(Trade)
}

// NewSimulator creates a simulator with the given starting balance.
func NewSimulator(initial float64) *Simulator {
	return &Simulator{Initial: initial}
}

// Run simulates a single long position over candles. frames and decisions
// must be aligned 1:1 with candles.
func (s *Simulator) Run(candles []model.Candle, frames []indicator.Frame, decisions []strategy.Decision) (Result, error) {
	if len(frames) != len(candles) || len(decisions) != len(candles) {
		return Result{}, fmt.Errorf("misaligned inputs: %d candles, %d frames, %d decisions",
			len(candles), len(frames), len(decisions))
	}

	ledger := NewLedger(s.Initial)
	state := Flat()
	for i, c := range candles {
		next, trade := Step(state, Bar{TS: c.TS, Close: c.Close, Frame: frames[i], Action: decisions[i].Action})
		if trade != nil {
			ledger.Record(*trade)
			if s.OnTrade != nil {
				s.OnTrade(*trade)
			}
		}
		state = next
	}

	res := Result{
		Trades:       ledger.Trades(),
		Losses:       ledger.Losses(),
		FinalBalance: ledger.Balance(),
		Summary:      ledger.Summary(),
	}
	if e, ok := state.Entry(); ok {
		res.Open = &e
	}
	return res, nil
}
