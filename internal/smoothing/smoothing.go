// Package smoothing debounces per-frame eye verdicts over a sliding window.
package smoothing

import (
	"gonum.org/v1/gonum/stat"
)

// DefaultCapacity is the default window size.
const DefaultCapacity = 5

// Window is a fixed-capacity FIFO of recent verdicts. It is not safe for
// concurrent use; the processing goroutine owns it.
type Window struct {
	ring []float64
	head int
	size int
	// scratch holds the window contents in order for averaging.
	scratch []float64
}

// New creates a window of the given capacity. Capacities below 1 use
// DefaultCapacity.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Window{
		ring:    make([]float64, capacity),
		scratch: make([]float64, 0, capacity),
	}
}

// Push records a verdict and returns the smoothed verdict. Until the window
// is full the raw verdict is returned. Once full, the result is true iff
// more than half of the window is open; an exact half is closed.
func (w *Window) Push(open bool) bool {
	v := 0.0
	if open {
		v = 1
	}

	if w.size < len(w.ring) {
		w.ring[(w.head+w.size)%len(w.ring)] = v
		w.size++
	} else {
		w.ring[w.head] = v
		w.head = (w.head + 1) % len(w.ring)
	}

	if w.size < len(w.ring) {
		return open
	}
	return w.Mean() > 0.5
}

// Mean returns the fraction of open verdicts in the window, or 0 when empty.
func (w *Window) Mean() float64 {
	if w.size == 0 {
		return 0
	}
	w.scratch = w.scratch[:0]
	for i := 0; i < w.size; i++ {
		w.scratch = append(w.scratch, w.ring[(w.head+i)%len(w.ring)])
	}
	return stat.Mean(w.scratch, nil)
}

// Reset empties the window.
func (w *Window) Reset() {
	w.head = 0
	w.size = 0
}

// Len returns the number of verdicts held.
func (w *Window) Len() int { return w.size }

// Capacity returns the window size.
func (w *Window) Capacity() int { return len(w.ring) }

// Full reports whether the window has reached capacity.
func (w *Window) Full() bool { return w.size == len(w.ring) }
