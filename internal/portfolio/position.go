// Package portfolio holds the single-position state machine, the trade
// ledger and the sizing/stop-loss rules shared by historical and live runs.
package portfolio

import (
	"time"

	"kdjtrader/internal/indicator"
	"kdjtrader/internal/strategy"
)

// Entry is the open side of a long position.
type Entry struct {
	Price    float64         `json:"price"`
	TS       int64           `json:"ts"`
	Snapshot indicator.Frame `json:"-"`
}

// State is either flat or long with exactly one entry. The zero value is flat.
type State struct {
	long  bool
	entry Entry
}

// Flat returns the no-position state.
func Flat() State { return State{} }

// Long returns a state holding entry.
func Long(e Entry) State { return State{long: true, entry: e} }

// IsLong reports whether a position is open.
func (s State) IsLong() bool { return s.long }

// Entry returns the open entry, if any.
func (s State) Entry() (Entry, bool) { return s.entry, s.long }

func (s State) String() string {
	if s.long {
		return "LONG"
	}
	return "FLAT"
}

// Bar is one step of the historical fold.
type Bar struct {
	TS     int64
	Close  float64
	Frame  indicator.Frame
	Action strategy.Action
}

// Trade is a closed round trip. Profit is (exit-entry)*quantity.
type Trade struct {
	EntryPrice    float64         `json:"entry_price"`
	ExitPrice     float64         `json:"exit_price"`
	Profit        float64         `json:"profit"`
	Quantity      float64         `json:"quantity"`
	EntryTS       int64           `json:"entry_ts"`
	ExitTS        int64           `json:"exit_ts"`
	Duration      time.Duration   `json:"duration"`
	EntrySnapshot indicator.Frame `json:"-"`
	ExitSnapshot  indicator.Frame `json:"-"`
	Reason        string          `json:"reason"`
}

// IsLoss reports whether the trade lost money.
func (t Trade) IsLoss() bool { return t.Profit < 0 }

// Close builds the trade that closes e at the given exit.
func (e Entry) Close(exitPrice float64, exitTS int64, snap indicator.Frame, qty float64, reason string) Trade {
	return Trade{
		EntryPrice:    e.Price,
		ExitPrice:     exitPrice,
		Profit:        (exitPrice - e.Price) * qty,
		Quantity:      qty,
		EntryTS:       e.TS,
		ExitTS:        exitTS,
		Duration:      time.Duration(exitTS-e.TS) * time.Millisecond,
		EntrySnapshot: e.Snapshot,
		ExitSnapshot:  snap,
		Reason:        reason,
	}
}

// Step advances the historical state machine by one bar. It never mutates
// its input and returns a trade only when a long position is closed.
// Profit is per unit.
func Step(s State, b Bar) (State, *Trade) {
	switch {
	case !s.long && b.Action == strategy.ActionBuy:
		return Long(Entry{Price: b.Close, TS: b.TS, Snapshot: b.Frame}), nil
	case s.long && b.Action == strategy.ActionSell:
		t := s.entry.Close(b.Close, b.TS, b.Frame, 1, "signal")
		return Flat(), &t
	}
	return s, nil
}

// Position is a live long position with a filled quantity.
type Position struct {
	Entry
	Quantity float64 `json:"quantity"`
	OrderID  string  `json:"order_id"`
}

// UnrealizedPnL values the position at price.
func (p Position) UnrealizedPnL(price float64) float64 {
	return (price - p.Price) * p.Quantity
}

// Close builds the trade for selling the full quantity at exitPrice.
func (p Position) Close(exitPrice float64, exitTS int64, snap indicator.Frame, reason string) Trade {
	return p.Entry.Close(exitPrice, exitTS, snap, p.Quantity, reason)
}
