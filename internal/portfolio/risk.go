package portfolio

import (
	"errors"
	"fmt"
)

// RiskRules are the only sizing and exit overrides the system applies.
type RiskRules struct {
	PositionFraction float64 `json:"position_fraction"`  // share of available balance per entry
	StopLossFraction float64 `json:"stop_loss_fraction"` // adverse move that forces an exit
}

// DefaultRiskRules returns 75% sizing with a 15% stop.
func DefaultRiskRules() RiskRules {
	return RiskRules{PositionFraction: 0.75, StopLossFraction: 0.15}
}

// ErrNoBalance is returned by Size when there is nothing to spend.
var ErrNoBalance = errors.New("no available balance")

// Validate checks both fractions are within (0, 1].
func (r RiskRules) Validate() error {
	if r.PositionFraction <= 0 || r.PositionFraction > 1 {
		return fmt.Errorf("position fraction %g outside (0, 1]", r.PositionFraction)
	}
	if r.StopLossFraction <= 0 || r.StopLossFraction >= 1 {
		return fmt.Errorf("stop-loss fraction %g outside (0, 1)", r.StopLossFraction)
	}
	return nil
}

// Size returns the notional to commit and the quantity it buys at price.
func (r RiskRules) Size(balance, price float64) (notional, qty float64, err error) {
	if balance <= 0 {
		return 0, 0, ErrNoBalance
	}
	if price <= 0 {
		return 0, 0, fmt.Errorf("invalid price %g", price)
	}
	notional = balance * r.PositionFraction
	return notional, notional / price, nil
}

// StopPrice is the close at or below which a long entered at entry is exited.
func (r RiskRules) StopPrice(entry float64) float64 {
	return entry * (1 - r.StopLossFraction)
}

// StopLossHit reports whether close breaches the stop for entry.
func (r RiskRules) StopLossHit(entry, close float64) bool {
	return close <= r.StopPrice(entry)
}
