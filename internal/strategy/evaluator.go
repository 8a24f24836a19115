package strategy

import (
	"kdjtrader/internal/indicator"
	"kdjtrader/internal/model"
)

// Evaluator pairs an indicator engine with a policy and remembers the
// previous frame so crossovers can be detected one candle at a time.
type Evaluator struct {
	policy Policy
	engine *indicator.Engine
	prev   *indicator.Frame
}

// NewEvaluator creates an evaluator over a fresh engine.
func NewEvaluator(cfg indicator.Config, policy Policy) *Evaluator {
	return &Evaluator{policy: policy, engine: indicator.NewEngine(cfg)}
}

// Engine exposes the underlying indicator engine.
func (ev *Evaluator) Engine() *indicator.Engine { return ev.engine }

// Policy returns the decision rule in use.
func (ev *Evaluator) Policy() Policy { return ev.policy }

// Step consumes a closed candle.
func (ev *Evaluator) Step(c model.Candle) (indicator.Frame, Decision) {
	f := ev.engine.Update(c)
	d := Fuse(ev.policy, ev.prev, f)
	ev.prev = &f
	return f, d
}

// Preview evaluates a forming candle without advancing any state.
func (ev *Evaluator) Preview(c model.Candle) (indicator.Frame, Decision) {
	f := ev.engine.Peek(c)
	return f, Fuse(ev.policy, ev.prev, f)
}

// Reset drops all history.
func (ev *Evaluator) Reset() {
	ev.engine.Reset()
	ev.prev = nil
}

// Signals runs the full historical pass and returns frames and decisions
// aligned with candles.
func Signals(cfg indicator.Config, policy Policy, candles []model.Candle) ([]indicator.Frame, []Decision) {
	frames := indicator.Compute(cfg, candles)
	decisions := make([]Decision, len(frames))
	for i := range frames {
		var prev *indicator.Frame
		if i > 0 {
			prev = &frames[i-1]
		}
		decisions[i] = Fuse(policy, prev, frames[i])
	}
	return frames, decisions
}
