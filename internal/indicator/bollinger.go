package indicator

import (
	"fmt"

	"kdjtrader/internal/model"
)

// Bollinger computes SMA(close) with bands at mult sample standard
// deviations above and below it.
type Bollinger struct {
	period int
	mult   float64
	closes *window
}

// NewBollinger creates Bollinger bands with the given period and width.
func NewBollinger(period int, mult float64) *Bollinger {
	return &Bollinger{period: period, mult: mult, closes: newWindow(period)}
}

func (b *Bollinger) Name() string { return fmt.Sprintf("BOLL(%d,%g)", b.period, b.mult) }

func (b *Bollinger) Update(c model.Candle, f *Frame) {
	b.closes.push(c.Close)
	m := b.closes.mean()
	b.write(f, m, b.closes.sampleStd(false, 0, m))
}

func (b *Bollinger) Peek(c model.Candle, f *Frame) {
	m := b.closes.peekMean(c.Close)
	b.write(f, m, b.closes.sampleStd(true, c.Close, m))
}

func (b *Bollinger) write(f *Frame, m, std float64) {
	f.SMA = m
	f.Std = std
	f.UB = m + b.mult*std
	f.LB = m - b.mult*std
}

func (b *Bollinger) Ready() bool { return b.closes.full() }
func (b *Bollinger) Reset()      { b.closes.reset() }
