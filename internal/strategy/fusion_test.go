package strategy

import (
	"math"
	"math/rand"
	"testing"

	"kdjtrader/internal/indicator"
	"kdjtrader/internal/model"
)

var nan = math.NaN()

// frame builds a fully defined frame with neutral bands (close inside).
func frame(k, d, j, sk, sd, rsi float64) indicator.Frame {
	return indicator.Frame{
		Close: 100, K: k, D: d, J: j, SK: sk, SD: sd,
		SMA: 100, Std: 5, UB: 110, LB: 90, RSI: rsi,
	}
}

func undefined() indicator.Frame {
	return indicator.Frame{Close: 100, K: nan, D: nan, J: nan, SK: nan, SD: nan, SMA: nan, Std: nan, UB: nan, LB: nan, RSI: nan}
}

func TestFuse_CrossoverBuy(t *testing.T) {
	prev := frame(20, 30, 0, 20, 30, 35)
	cur := frame(40, 30, 60, 40, 30, 35)

	d := Fuse(PolicyCrossover, &prev, cur)
	if d.KDJ != ActionBuy || d.SKDJ != ActionBuy {
		t.Fatalf("components: kdj=%s skdj=%s, want BUY BUY", d.KDJ, d.SKDJ)
	}
	if d.BuyCount != 2 || d.SellCount != 0 {
		t.Errorf("counts: buy=%d sell=%d", d.BuyCount, d.SellCount)
	}
	if d.Action != ActionBuy {
		t.Errorf("action: got %s, want BUY", d.Action)
	}
}

func TestFuse_CrossoverRSIGate(t *testing.T) {
	prev := frame(20, 30, 0, 20, 30, 50)
	cur := frame(40, 30, 60, 40, 30, 50)

	if d := Fuse(PolicyCrossover, &prev, cur); d.Action != ActionHold {
		t.Errorf("RSI 50 should block BUY, got %s", d.Action)
	}

	// Level policy ignores RSI entirely.
	if d := Fuse(PolicyLevel, &prev, cur); d.Action != ActionBuy {
		t.Errorf("level policy: got %s, want BUY", d.Action)
	}
}

func TestFuse_CrossoverSell(t *testing.T) {
	prev := frame(80, 70, 100, 80, 70, 65)
	cur := frame(60, 70, 40, 60, 70, 65)

	d := Fuse(PolicyCrossover, &prev, cur)
	if d.Action != ActionSell {
		t.Fatalf("action: got %s, want SELL (%s)", d.Action, d.Reason)
	}
	if d.SellCount != 2 {
		t.Errorf("sell count: got %d, want 2", d.SellCount)
	}
}

func TestFuse_CrossoverNeedsPreviousFrame(t *testing.T) {
	cur := frame(40, 30, 60, 40, 30, 35)
	cur.Close = 120 // above UB

	d := Fuse(PolicyCrossover, nil, cur)
	if d.KDJ != ActionHold || d.SKDJ != ActionHold {
		t.Errorf("first frame components should be HOLD, got kdj=%s skdj=%s", d.KDJ, d.SKDJ)
	}
	if d.BuyCount != 1 || d.Action != ActionHold {
		t.Errorf("band vote alone must not trigger: buy=%d action=%s", d.BuyCount, d.Action)
	}
}

func TestFuse_BandPlusOneOscillator(t *testing.T) {
	prev := frame(20, 30, 0, 50, 40, 30)
	cur := frame(40, 30, 60, 50, 40, 30) // SK stays above SD, no SKDJ cross
	cur.Close = 115

	d := Fuse(PolicyCrossover, &prev, cur)
	if d.SKDJ != ActionHold || d.Band != ActionBuy {
		t.Fatalf("components: skdj=%s band=%s", d.SKDJ, d.Band)
	}
	if d.Action != ActionBuy {
		t.Errorf("kdj + band should BUY, got %s", d.Action)
	}
}

func TestFuse_SKDJSellUsesSameBarIndices(t *testing.T) {
	// SK[i-1] > SD[i-1] and SK[i] < SD[i], while SK[i-1] < SD[i].
	prev := frame(50, 50, 50, 55, 50, 70)
	cur := frame(50, 50, 50, 52, 60, 70)

	if got := skdjCross(prev, cur); got != ActionSell {
		t.Errorf("skdj cross: got %s, want SELL", got)
	}
}

func TestFuse_LevelPolicy(t *testing.T) {
	tests := []struct {
		name string
		f    indicator.Frame
		want Action
	}{
		{"all buy", frame(60, 50, 80, 60, 50, 90), ActionBuy},
		{"all sell", frame(40, 50, 20, 40, 50, 10), ActionSell},
		{"split", frame(60, 50, 80, 40, 50, 50), ActionHold},
		{"kdj ambiguous", frame(60, 50, 40, 60, 50, 50), ActionHold},
		{"undefined", undefined(), ActionHold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fuse(PolicyLevel, nil, tt.f).Action; got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFuse_UndefinedNeverVotes(t *testing.T) {
	prev, cur := undefined(), undefined()
	for _, p := range []Policy{PolicyCrossover, PolicyLevel} {
		d := Fuse(p, &prev, cur)
		if d.BuyCount != 0 || d.SellCount != 0 || d.Action != ActionHold {
			t.Errorf("%s: buy=%d sell=%d action=%s", p, d.BuyCount, d.SellCount, d.Action)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{
		"crossover": PolicyCrossover, "Historical": PolicyCrossover,
		"level": PolicyLevel, " live ": PolicyLevel,
	} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("martingale"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func walk(n int, seed int64) []model.Candle {
	rng := rand.New(rand.NewSource(seed))
	out := make([]model.Candle, n)
	price := 100.0
	for i := range out {
		price += rng.Float64()*6 - 3
		out[i] = model.Candle{
			TS: int64(i) * 3_600_000, Open: price,
			High: price + rng.Float64()*2, Low: price - rng.Float64()*2,
			Close: price, Volume: 1,
		}
	}
	return out
}

func TestEvaluator_MatchesSignals(t *testing.T) {
	cfg := indicator.DefaultConfig()
	candles := walk(300, 11)

	_, want := Signals(cfg, PolicyCrossover, candles)
	ev := NewEvaluator(cfg, PolicyCrossover)
	for i, c := range candles {
		_, got := ev.Step(c)
		if got != want[i] {
			t.Fatalf("decision %d differs: step=%+v full=%+v", i, got, want[i])
		}
	}
}

func TestEvaluator_PreviewDoesNotAdvance(t *testing.T) {
	cfg := indicator.DefaultConfig()
	candles := walk(60, 5)
	ev := NewEvaluator(cfg, PolicyLevel)
	for _, c := range candles[:59] {
		ev.Step(c)
	}

	_, p1 := ev.Preview(candles[59])
	_, p2 := ev.Preview(candles[59])
	if p1 != p2 {
		t.Fatalf("preview not repeatable: %+v vs %+v", p1, p2)
	}
	if n := ev.Engine().Count(); n != 59 {
		t.Errorf("engine count after preview: got %d, want 59", n)
	}
	_, s := ev.Step(candles[59])
	if s != p1 {
		t.Errorf("step after preview differs: %+v vs %+v", s, p1)
	}
}
