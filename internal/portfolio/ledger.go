package portfolio

import (
	"sync"
)

// Ledger records closed trades and tracks realized P&L and drawdown.
type Ledger struct {
	mu      sync.RWMutex
	initial float64
	trades  []Trade
	losses  []Trade

	realized float64
	peak     float64
	maxDD    float64
	maxDDPct float64
}

// NewLedger creates a ledger starting at the given balance.
func NewLedger(initial float64) *Ledger {
	return &Ledger{
		initial: initial,
		peak:    initial,
		trades:  make([]Trade, 0, 64),
	}
}

// Record appends a trade and returns the balance after it.
func (l *Ledger) Record(t Trade) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.trades = append(l.trades, t)
	if t.IsLoss() {
		l.losses = append(l.losses, t)
	}
	l.realized += t.Profit

	equity := l.initial + l.realized
	if equity > l.peak {
		l.peak = equity
	}
	if dd := l.peak - equity; dd > l.maxDD {
		l.maxDD = dd
		if l.peak > 0 {
			l.maxDDPct = dd / l.peak * 100
		}
	}
	return equity
}

// Realized returns the sum of closed-trade profit.
func (l *Ledger) Realized() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.realized
}

// Balance returns initial balance plus realized profit.
func (l *Ledger) Balance() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.initial + l.realized
}

// Trades returns a copy of all recorded trades in close order.
func (l *Ledger) Trades() []Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]Trade, len(l.trades))
	copy(cp, l.trades)
	return cp
}

// Losses returns a copy of the trades with negative profit.
func (l *Ledger) Losses() []Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]Trade, len(l.losses))
	copy(cp, l.losses)
	return cp
}

// Summary aggregates the closed trades.
type Summary struct {
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	ProfitFactor float64 `json:"profit_factor"` // 0 when there are no losing trades
	NetProfit    float64 `json:"net_profit"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	MaxDDPct     float64 `json:"max_drawdown_pct"`
	Initial      float64 `json:"initial_balance"`
	Final        float64 `json:"final_balance"`
}

// Summary returns the current aggregate.
func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Summary{
		Trades:      len(l.trades),
		NetProfit:   l.realized,
		MaxDrawdown: l.maxDD,
		MaxDDPct:    l.maxDDPct,
		Initial:     l.initial,
		Final:       l.initial + l.realized,
	}
	for _, t := range l.trades {
		switch {
		case t.Profit > 0:
			s.Wins++
			s.GrossProfit += t.Profit
		case t.Profit < 0:
			s.Losses++
			s.GrossLoss += -t.Profit
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	return s
}
