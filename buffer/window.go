// Package buffer holds the fixed-size trace windows a chain keeps for its
// convergence checks.
package buffer

import "gonum.org/v1/gonum/stat"

// Window keeps the most recent draws of one scalar quantity. The window is
// split into an older and a newer half of equal size, so its capacity is
// always even.
type Window struct {
	vals []float64 // ring storage
	next int       // slot the next draw goes into, and the oldest draw once full
	n    int       // draws held, at most len(vals)
}

// HalfSummary is the sample mean and variance of one half of a full window.
type HalfSummary struct {
	N        int
	Mean     float64
	Variance float64
}

// NewWindow returns a window holding size draws. Odd sizes are rounded down
// and the smallest window holds 2.
func NewWindow(size int) *Window {
	half := size / 2
	if half < 1 {
		half = 1
	}
	return &Window{vals: make([]float64, 2*half)}
}

// Full is true once the window has been filled.
func (w *Window) Full() bool {
	return w.n == len(w.vals)
}

// Add records a draw, dropping the oldest one when the window is full.
func (w *Window) Add(v float64) {
	w.vals[w.next] = v
	w.next = (w.next + 1) % len(w.vals)
	if w.n < len(w.vals) {
		w.n++
	}
}

// Values copies the held draws, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, 0, w.n)
	start := 0
	if w.Full() {
		start = w.next
	}
	for i := 0; i < w.n; i++ {
		out = append(out, w.vals[(start+i)%len(w.vals)])
	}
	return out
}

// Halves returns copies of the older and newer halves, oldest first. Both
// are nil until the window is full.
func (w *Window) Halves() (older, newer []float64) {
	if !w.Full() {
		return nil, nil
	}
	all := w.Values()
	half := len(all) / 2
	return all[:half:half], all[half:]
}

// Summaries returns the mean and variance of each half. ok is false until
// the window is full.
func (w *Window) Summaries() (older, newer HalfSummary, ok bool) {
	h1, h2 := w.Halves()
	if h1 == nil {
		return older, newer, false
	}
	return summarize(h1), summarize(h2), true
}

func summarize(x []float64) HalfSummary {
	m, v := stat.MeanVariance(x, nil)
	return HalfSummary{N: len(x), Mean: m, Variance: v}
}
