package indicator

import "math"

// window is a fixed-size rolling buffer over float64 values.
// NaN entries are tracked so that any statistic over a window that holds
// one is itself NaN. mean is O(1); min, max and std scan the buffer, which
// is bounded by the window size and never by the history length.
//
// Every statistic has a peek form that views the window as if next had been
// pushed. The peek form performs the same float operations in the same order
// as push followed by the plain form, so both paths produce identical bits.
type window struct {
	size  int
	buf   []float64 // preallocated circular buffer
	idx   int       // next write position
	count int       // total values received
	sum   float64   // sum of non-NaN values in buf
	nans  int       // NaN values in buf
	nz    int       // non-zero, non-NaN values in buf
}

func newWindow(size int) *window {
	if size < 1 {
		size = 1
	}
	return &window{size: size, buf: make([]float64, size)}
}

func (w *window) push(v float64) {
	if w.count >= w.size {
		w.drop(w.buf[w.idx])
	}
	w.buf[w.idx] = v
	w.add(v)
	w.idx = (w.idx + 1) % w.size
	w.count++
}

func (w *window) add(v float64) {
	switch {
	case math.IsNaN(v):
		w.nans++
	case v != 0:
		w.sum += v
		w.nz++
	}
}

func (w *window) drop(v float64) {
	switch {
	case math.IsNaN(v):
		w.nans--
	case v != 0:
		w.sum -= v
		w.nz--
	}
}

// filled is the number of occupied slots; with peek the pending value counts.
func (w *window) filled(peek bool) int {
	n := w.count
	if peek {
		n++
	}
	if n > w.size {
		return w.size
	}
	return n
}

func (w *window) full() bool { return w.count >= w.size }

func (w *window) mean() float64 {
	return w.meanOf(w.sum, w.nans, w.nz, w.filled(false))
}

func (w *window) peekMean(next float64) float64 {
	sum, nans, nz := w.sum, w.nans, w.nz
	if w.count >= w.size {
		switch old := w.buf[w.idx]; {
		case math.IsNaN(old):
			nans--
		case old != 0:
			sum -= old
			nz--
		}
	}
	switch {
	case math.IsNaN(next):
		nans++
	case next != 0:
		sum += next
		nz++
	}
	return w.meanOf(sum, nans, nz, w.filled(true))
}

func (w *window) meanOf(sum float64, nans, nz, filled int) float64 {
	if filled < w.size || nans > 0 {
		return math.NaN()
	}
	if nz == 0 {
		// An all-zero window is exactly zero even after subtraction residue.
		return 0
	}
	return sum / float64(w.size)
}

// scan visits the occupied slots in physical order. With peek the slot that
// push would write holds next instead of its current value.
func (w *window) scan(peek bool, next float64, fn func(v float64)) {
	n := w.filled(peek)
	for i := 0; i < n; i++ {
		v := w.buf[i]
		if peek && i == w.idx {
			v = next
		}
		fn(v)
	}
}

func (w *window) extreme(peek bool, next float64, better func(a, b float64) bool) float64 {
	if w.filled(peek) < w.size {
		return math.NaN()
	}
	out := math.NaN()
	first := true
	bad := false
	w.scan(peek, next, func(v float64) {
		if math.IsNaN(v) {
			bad = true
			return
		}
		if first || better(v, out) {
			out = v
			first = false
		}
	})
	if bad {
		return math.NaN()
	}
	return out
}

func less(a, b float64) bool    { return a < b }
func greater(a, b float64) bool { return a > b }

// sampleStd is the n-1 standard deviation around mean m.
func (w *window) sampleStd(peek bool, next, m float64) float64 {
	if math.IsNaN(m) || w.size < 2 {
		return math.NaN()
	}
	var ss float64
	w.scan(peek, next, func(v float64) {
		d := v - m
		ss += d * d
	})
	return math.Sqrt(ss / float64(w.size-1))
}

func (w *window) reset() {
	w.idx, w.count, w.sum, w.nans, w.nz = 0, 0, 0, 0, 0
	for i := range w.buf {
		w.buf[i] = 0
	}
}
