package indicator

import (
	"fmt"
	"math"

	"kdjtrader/internal/model"
)

// Stochastic computes %K/%D/%J and the smoothed %SK/%SD pair.
//
//	%K  = (close - lowest low) / (highest high - lowest low) * 100 over kPeriod
//	%D  = SMA(%K, dPeriod),  %J = 3*%K - 2*%D
//	%SK = SMA(%K, skPeriod), %SD = SMA(%SK, sdPeriod)
//
// %K is NaN when the range is zero, and every average over a NaN is NaN.
type Stochastic struct {
	kPeriod, dPeriod, skPeriod, sdPeriod int

	lows  *window
	highs *window
	d     *window // %K values for %D
	sk    *window // %K values for %SK
	sd    *window // %SK values for %SD
}

// NewStochastic creates a stochastic oscillator with its smoothing windows.
func NewStochastic(kPeriod, dPeriod, skPeriod, sdPeriod int) *Stochastic {
	return &Stochastic{
		kPeriod:  kPeriod,
		dPeriod:  dPeriod,
		skPeriod: skPeriod,
		sdPeriod: sdPeriod,
		lows:     newWindow(kPeriod),
		highs:    newWindow(kPeriod),
		d:        newWindow(dPeriod),
		sk:       newWindow(skPeriod),
		sd:       newWindow(sdPeriod),
	}
}

func (s *Stochastic) Name() string {
	return fmt.Sprintf("KDJ(%d,%d)/SKDJ(%d,%d)", s.kPeriod, s.dPeriod, s.skPeriod, s.sdPeriod)
}

func (s *Stochastic) Update(c model.Candle, f *Frame) {
	s.lows.push(c.Low)
	s.highs.push(c.High)
	k := percentK(c.Close,
		s.lows.extreme(false, 0, less),
		s.highs.extreme(false, 0, greater))

	s.d.push(k)
	s.sk.push(k)
	d := s.d.mean()
	sk := s.sk.mean()
	s.sd.push(sk)

	s.write(f, k, d, sk, s.sd.mean())
}

func (s *Stochastic) Peek(c model.Candle, f *Frame) {
	k := percentK(c.Close,
		s.lows.extreme(true, c.Low, less),
		s.highs.extreme(true, c.High, greater))
	d := s.d.peekMean(k)
	sk := s.sk.peekMean(k)
	s.write(f, k, d, sk, s.sd.peekMean(sk))
}

func (s *Stochastic) write(f *Frame, k, d, sk, sd float64) {
	f.K = k
	f.D = d
	f.J = 3*k - 2*d
	f.SK = sk
	f.SD = sd
}

func (s *Stochastic) Ready() bool {
	return s.lows.count >= s.kPeriod+max(s.dPeriod-1, s.skPeriod+s.sdPeriod-2)
}

func (s *Stochastic) Reset() {
	s.lows.reset()
	s.highs.reset()
	s.d.reset()
	s.sk.reset()
	s.sd.reset()
}

func percentK(close, low, high float64) float64 {
	rng := high - low
	if math.IsNaN(rng) || rng == 0 {
		return math.NaN()
	}
	return (close - low) / rng * 100
}
