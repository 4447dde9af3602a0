package orientation

// MovingAverage is a fixed-length FIFO of the last N samples whose mean is
// used as a low-pass estimate. The window starts filled with zeros, so the
// mean ramps up over the first N samples and equals a constant input
// exactly once N samples have been pushed.
type MovingAverage struct {
	data []float64
	pos  int
}

// NewMovingAverage creates a filter with window n. n < 1 is treated as 1.
func NewMovingAverage(n int) *MovingAverage {
	if n < 1 {
		n = 1
	}
	return &MovingAverage{data: make([]float64, n)}
}

// Push adds a sample, dropping the oldest one, and returns the new mean.
func (f *MovingAverage) Push(v float64) float64 {
	f.data[f.pos] = v
	f.pos++
	if f.pos >= len(f.data) {
		f.pos = 0
	}
	return f.Mean()
}

// Mean recomputes the arithmetic mean over the whole window.
func (f *MovingAverage) Mean() float64 {
	sum := 0.0
	for _, v := range f.data {
		sum += v
	}
	return sum / float64(len(f.data))
}

// Len returns the window size.
func (f *MovingAverage) Len() int {
	return len(f.data)
}
