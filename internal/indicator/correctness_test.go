package indicator

import (
	"math"
	"math/rand"
	"testing"

	"kdjtrader/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func bar(i int, high, low, close float64) model.Candle {
	return model.Candle{TS: int64(i) * 60_000, Open: close, High: high, Low: low, Close: close, Volume: 1}
}

func series(closes ...float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = bar(i, c+1, c-1, c)
	}
	return out
}

func randomWalk(n int, seed int64) []model.Candle {
	rng := rand.New(rand.NewSource(seed))
	out := make([]model.Candle, n)
	price := 100.0
	for i := range out {
		price += rng.Float64()*4 - 2
		high := price + rng.Float64()*2
		low := price - rng.Float64()*2
		out[i] = bar(i, high, low, price)
	}
	return out
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func assertNaN(t *testing.T, label string, got float64) {
	t.Helper()
	if !math.IsNaN(got) {
		t.Errorf("%s: got %.6f, want undefined", label, got)
	}
}

// same treats two NaNs as equal and otherwise compares bits.
func same(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Float64bits(a) == math.Float64bits(b)
}

func sameFrame(a, b Frame) bool {
	return a.TS == b.TS && same(a.Close, b.Close) &&
		same(a.K, b.K) && same(a.D, b.D) && same(a.J, b.J) &&
		same(a.SK, b.SK) && same(a.SD, b.SD) &&
		same(a.SMA, b.SMA) && same(a.Std, b.Std) && same(a.UB, b.UB) && same(a.LB, b.LB) &&
		same(a.RSI, b.RSI)
}

// ────────────────────────────────────────────────────────────
// Bollinger Correctness
// ────────────────────────────────────────────────────────────

func TestBollinger_Correctness_Period3(t *testing.T) {
	// Closes: 100, 102, 104, 103, 105, mult 2
	// idx 2: mean 102, sample std of (100,102,104) = 2 → UB 106, LB 98
	// idx 3: mean 103, deviations -1,1,0 → var 1 → UB 105, LB 101
	// idx 4: mean 104, deviations 0,-1,1 → var 1 → UB 106, LB 102
	b := NewBollinger(3, 2)
	candles := series(100, 102, 104, 103, 105)
	want := []struct{ sma, ub, lb float64 }{
		{}, {},
		{102, 106, 98},
		{103, 105, 101},
		{104, 106, 102},
	}

	for i, c := range candles {
		f := EmptyFrame(c)
		b.Update(c, &f)
		if i < 2 {
			assertNaN(t, "SMA warm-up", f.SMA)
			assertNaN(t, "UB warm-up", f.UB)
			continue
		}
		assertClose(t, "SMA", f.SMA, want[i].sma, 1e-9)
		assertClose(t, "UB", f.UB, want[i].ub, 1e-9)
		assertClose(t, "LB", f.LB, want[i].lb, 1e-9)
	}
}

func TestSMA_DefinedFromWindowEnd(t *testing.T) {
	candles := series(make([]float64, 20)...)
	for i := range candles {
		candles[i] = bar(i, 11+float64(i), 9, 10+float64(i))
	}
	frames := Compute(DefaultConfig(), candles)

	defined := 0
	for i, f := range frames {
		if math.IsNaN(f.SMA) {
			continue
		}
		defined++
		if i != 19 {
			t.Errorf("SMA defined at index %d, want only index 19", i)
		}
	}
	if defined != 1 {
		t.Fatalf("expected exactly 1 defined SMA value, got %d", defined)
	}
	assertClose(t, "SMA(20)", frames[19].SMA, 19.5, 1e-9)
}

func TestBollinger_FlatThenJump(t *testing.T) {
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 10
	}
	closes[20] = 20
	frames := Compute(DefaultConfig(), series(closes...))

	flat := frames[19]
	assertClose(t, "flat std", flat.Std, 0, 0)
	assertClose(t, "flat UB", flat.UB, 10, 0)
	assertClose(t, "flat LB", flat.LB, 10, 0)

	jump := frames[20]
	if !(jump.Close > jump.UB) {
		t.Errorf("jump close %.4f should be above UB %.4f", jump.Close, jump.UB)
	}
}

// ────────────────────────────────────────────────────────────
// Stochastic Correctness
// ────────────────────────────────────────────────────────────

func TestStochastic_Correctness(t *testing.T) {
	// KDJ(3,2) / SKDJ(2,2), candles as (high, low, close):
	//   (10,8,9) (11,9,10) (12,9,11) (12,10,10) (13,11,13)
	// idx 2: low 8, high 12 → K = 3/4*100 = 75
	// idx 3: low 9, high 12 → K = 1/3*100 = 33.3333
	// idx 4: low 9, high 13 → K = 4/4*100 = 100
	// D idx 3 = (75+33.3333)/2 = 54.1667, idx 4 = (33.3333+100)/2 = 66.6667
	// J idx 4 = 3*100 - 2*66.6667 = 166.6667
	// SK = D here, SD idx 4 = (54.1667+66.6667)/2 = 60.4167
	s := NewStochastic(3, 2, 2, 2)
	candles := []model.Candle{
		bar(0, 10, 8, 9),
		bar(1, 11, 9, 10),
		bar(2, 12, 9, 11),
		bar(3, 12, 10, 10),
		bar(4, 13, 11, 13),
	}
	frames := make([]Frame, len(candles))
	for i, c := range candles {
		frames[i] = EmptyFrame(c)
		s.Update(c, &frames[i])
	}

	assertNaN(t, "K idx 1", frames[1].K)
	assertClose(t, "K idx 2", frames[2].K, 75, 1e-9)
	assertNaN(t, "D idx 2", frames[2].D)
	assertClose(t, "K idx 3", frames[3].K, 100.0/3, 1e-9)
	assertClose(t, "D idx 3", frames[3].D, (75+100.0/3)/2, 1e-9)
	assertNaN(t, "SD idx 3", frames[3].SD)
	assertClose(t, "K idx 4", frames[4].K, 100, 1e-9)
	assertClose(t, "D idx 4", frames[4].D, (100.0/3+100)/2, 1e-9)
	assertClose(t, "J idx 4", frames[4].J, 300-(100.0/3+100), 1e-9)
	assertClose(t, "SK idx 4", frames[4].SK, frames[4].D, 1e-12)
	assertClose(t, "SD idx 4", frames[4].SD, ((75+100.0/3)/2+(100.0/3+100)/2)/2, 1e-9)
	if !s.Ready() {
		t.Error("expected Ready after 5 candles for KDJ(3,2)/SKDJ(2,2)")
	}
}

func TestStochastic_ZeroRangeIsUndefined(t *testing.T) {
	s := NewStochastic(3, 2, 2, 2)
	var f Frame
	for i := 0; i < 5; i++ {
		c := bar(i, 50, 50, 50)
		f = EmptyFrame(c)
		s.Update(c, &f)
		if math.IsInf(f.K, 0) {
			t.Fatalf("candle %d: K is infinite", i)
		}
	}
	assertNaN(t, "K flat range", f.K)
	assertNaN(t, "D flat range", f.D)
	assertNaN(t, "J flat range", f.J)

	// Once the range opens again the NaN leaves the smoothing window.
	for i := 5; i < 8; i++ {
		c := bar(i, 52+float64(i), 49, 51)
		f = EmptyFrame(c)
		s.Update(c, &f)
	}
	if math.IsNaN(f.K) || math.IsNaN(f.D) {
		t.Errorf("expected K and D defined after range reopens, got K=%v D=%v", f.K, f.D)
	}
}

func TestStochastic_KBounded(t *testing.T) {
	frames := Compute(DefaultConfig(), randomWalk(500, 7))
	for i, f := range frames {
		if math.IsNaN(f.K) {
			continue
		}
		if f.K < 0 || f.K > 100 {
			t.Fatalf("frame %d: K=%.6f outside [0,100]", i, f.K)
		}
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness (simple averages)
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period3(t *testing.T) {
	// Closes: 10, 11, 10, 12, 11 → deltas +1, -1, +2, -1
	// idx 3: gains (1,0,2) avg 1,   losses (0,1,0) avg 1/3 → RS 3 → RSI 75
	// idx 4: gains (0,2,0) avg 2/3, losses (1,0,1) avg 2/3 → RS 1 → RSI 50
	r := NewRSI(3)
	candles := series(10, 11, 10, 12, 11)
	want := []float64{math.NaN(), math.NaN(), math.NaN(), 75, 50}

	for i, c := range candles {
		f := EmptyFrame(c)
		r.Update(c, &f)
		if i < 3 {
			assertNaN(t, "RSI warm-up", f.RSI)
			if r.Ready() {
				t.Errorf("candle %d: Ready()=true during warm-up", i)
			}
			continue
		}
		assertClose(t, "RSI(3)", f.RSI, want[i], 1e-9)
	}
}

func TestRSI_MonotonicSaturates(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	frames := Compute(DefaultConfig(), series(closes...))
	for i := 14; i < len(frames); i++ {
		if frames[i].RSI != 100 {
			t.Fatalf("frame %d: RSI=%.6f, want 100", i, frames[i].RSI)
		}
	}
	assertNaN(t, "RSI before 14 deltas", frames[13].RSI)
}

func TestRSI_PeekCorrectValue(t *testing.T) {
	r := NewRSI(3)
	for _, c := range series(10, 11, 10, 12) {
		f := EmptyFrame(c)
		r.Update(c, &f)
	}
	next := series(10, 11, 10, 12, 11)[4]
	var peek Frame
	r.Peek(next, &peek)
	assertClose(t, "RSI peek", peek.RSI, 50, 1e-9)

	var again Frame
	r.Peek(next, &again)
	assertClose(t, "RSI peek repeat", again.RSI, 50, 1e-9)
}
