package indicator

import (
	"fmt"
	"math"

	"kdjtrader/internal/model"
)

// RSI calculates the Relative Strength Index from simple (not Wilder)
// moving averages of gains and losses over period deltas.
// Update is O(1) per candle — no history scans.
type RSI struct {
	period    int
	count     int
	prevClose float64
	gains     *window
	losses    *window
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gains:  newWindow(period),
		losses: newWindow(period),
	}
}

func (r *RSI) Name() string { return fmt.Sprintf("RSI(%d)", r.period) }

func (r *RSI) Update(c model.Candle, f *Frame) {
	r.count++
	if r.count == 1 {
		// First candle — just record price, no delta yet
		r.prevClose = c.Close
		f.RSI = math.NaN()
		return
	}

	gain, loss := split(c.Close - r.prevClose)
	r.prevClose = c.Close
	r.gains.push(gain)
	r.losses.push(loss)
	f.RSI = rsiOf(r.gains.mean(), r.losses.mean())
}

// Peek computes what RSI would be with an additional candle without mutating state.
func (r *RSI) Peek(c model.Candle, f *Frame) {
	if r.count == 0 {
		f.RSI = math.NaN()
		return
	}
	gain, loss := split(c.Close - r.prevClose)
	f.RSI = rsiOf(r.gains.peekMean(gain), r.losses.peekMean(loss))
}

func (r *RSI) Ready() bool { return r.count > r.period }

func (r *RSI) Reset() {
	r.count = 0
	r.prevClose = 0
	r.gains.reset()
	r.losses.reset()
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	if delta < 0 {
		return 0, -delta
	}
	return 0, 0
}

// rsiOf saturates at 100 when there were no losses in the window.
func rsiOf(avgGain, avgLoss float64) float64 {
	if math.IsNaN(avgGain) || math.IsNaN(avgLoss) {
		return math.NaN()
	}
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
