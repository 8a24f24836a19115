package strategy

import (
	"fmt"

	"kdjtrader/internal/indicator"
)

// Fuse converts the current frame (and, for the crossover policy, the
// previous one) into a Decision. Comparisons against NaN are false, so an
// undefined indicator never votes. prev is nil for the first frame.
func Fuse(policy Policy, prev *indicator.Frame, cur indicator.Frame) Decision {
	d := Decision{TS: cur.TS, Policy: policy.String(), KDJ: ActionHold, SKDJ: ActionHold, Band: bandVote(cur)}

	switch policy {
	case PolicyLevel:
		d.KDJ = kdjLevel(cur)
		d.SKDJ = skdjLevel(cur)
	default:
		if prev != nil {
			d.KDJ = kdjCross(*prev, cur)
			d.SKDJ = skdjCross(*prev, cur)
		}
	}

	for _, v := range []Action{d.KDJ, d.SKDJ, d.Band} {
		switch v {
		case ActionBuy:
			d.BuyCount++
		case ActionSell:
			d.SellCount++
		}
	}

	d.Action = ActionHold
	switch policy {
	case PolicyLevel:
		if d.BuyCount >= minVotes {
			d.Action = ActionBuy
		} else if d.SellCount >= minVotes {
			d.Action = ActionSell
		}
	default:
		// BUY is checked first; the RSI gates make both firing impossible.
		if d.BuyCount >= minVotes && cur.RSI < rsiBuyBelow {
			d.Action = ActionBuy
		} else if d.SellCount >= minVotes && cur.RSI > rsiSellAbove {
			d.Action = ActionSell
		}
	}
	d.Reason = reason(d, cur)
	return d
}

// kdjCross: %K crossed %D between prev and cur, confirmed by %J on the same side.
func kdjCross(prev, cur indicator.Frame) Action {
	if prev.K < prev.D && cur.K > cur.D && cur.J > cur.D {
		return ActionBuy
	}
	if prev.K > prev.D && cur.K < cur.D && cur.J < cur.D {
		return ActionSell
	}
	return ActionHold
}

// skdjCross compares %SK against %SD on the same bar for both frames.
func skdjCross(prev, cur indicator.Frame) Action {
	if prev.SK < prev.SD && cur.SK > cur.SD {
		return ActionBuy
	}
	if prev.SK > prev.SD && cur.SK < cur.SD {
		return ActionSell
	}
	return ActionHold
}

func kdjLevel(cur indicator.Frame) Action {
	if cur.K > cur.D && cur.J > cur.D {
		return ActionBuy
	}
	if cur.K < cur.D && cur.J < cur.D {
		return ActionSell
	}
	return ActionHold
}

func skdjLevel(cur indicator.Frame) Action {
	if cur.SK > cur.SD {
		return ActionBuy
	}
	if cur.SK < cur.SD {
		return ActionSell
	}
	return ActionHold
}

func bandVote(cur indicator.Frame) Action {
	if cur.Close > cur.UB {
		return ActionBuy
	}
	if cur.Close < cur.LB {
		return ActionSell
	}
	return ActionHold
}

func reason(d Decision, cur indicator.Frame) string {
	switch d.Action {
	case ActionBuy:
		return fmt.Sprintf("%d buy votes (kdj=%s skdj=%s band=%s) rsi=%.2f", d.BuyCount, d.KDJ, d.SKDJ, d.Band, cur.RSI)
	case ActionSell:
		return fmt.Sprintf("%d sell votes (kdj=%s skdj=%s band=%s) rsi=%.2f", d.SellCount, d.KDJ, d.SKDJ, d.Band, cur.RSI)
	}
	return fmt.Sprintf("buy=%d sell=%d rsi=%.2f", d.BuyCount, d.SellCount, cur.RSI)
}
