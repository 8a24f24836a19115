// Package strategy fuses indicator frames into a single trade action.
//
// Two policies exist and are deliberately kept apart: the crossover policy
// used for historical runs looks at two consecutive frames and gates on RSI,
// the level policy used live looks at the newest frame only and has no RSI
// gate.
package strategy

import (
	"fmt"
	"strings"
)

// Action represents a trading action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Policy selects the decision rule.
type Policy int

const (
	// PolicyCrossover requires %K/%D and %SK/%SD crossovers between the
	// previous and current frame, and filters with RSI < 40 / RSI > 60.
	PolicyCrossover Policy = iota
	// PolicyLevel compares levels on the current frame only, without RSI.
	PolicyLevel
)

func (p Policy) String() string {
	switch p {
	case PolicyCrossover:
		return "crossover"
	case PolicyLevel:
		return "level"
	default:
		return "unknown"
	}
}

// ParsePolicy accepts "crossover" (alias "historical") and "level" (alias "live").
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "crossover", "historical":
		return PolicyCrossover, nil
	case "level", "live":
		return PolicyLevel, nil
	}
	return 0, fmt.Errorf("unknown policy %q", s)
}

// RSI gates of the crossover policy.
const (
	rsiBuyBelow  = 40.0
	rsiSellAbove = 60.0
	minVotes     = 2
)

// Decision is the fused outcome for one frame.
type Decision struct {
	TS        int64  `json:"ts"`
	Policy    string `json:"policy"`
	Action    Action `json:"action"`
	KDJ       Action `json:"kdj"`  // oscillator component vote
	SKDJ      Action `json:"skdj"` // smoothed oscillator component vote
	Band      Action `json:"band"` // close outside a Bollinger band
	BuyCount  int    `json:"buy_count"`
	SellCount int    `json:"sell_count"`
	Reason    string `json:"reason"`
}
