package telemetry

import (
	"math"
	"sort"
)

// DefaultWindowSize is the default capacity of the recent-values window
// used for mean and standard deviation.
const DefaultWindowSize = 100

// ParameterStats is a point-in-time statistics snapshot for one
// parameter code.
//
// Min and Max are running extrema over every accepted value in the
// session. Mean and StdDev are computed over the bounded recent-values
// window only, so they track recent sensor behaviour rather than the
// whole session. This mix is intentional: extrema answer "what did the
// sensor ever report", variability answers "how is it behaving now".
type ParameterStats struct {
	Min     float64
	Max     float64
	Mean    float64
	StdDev  float64
	Current float64
	Count   int // accepted (non-error) samples over the session
}

// paramState holds the mutable accumulation state for one parameter.
type paramState struct {
	stats  ParameterStats
	window *valueWindow
}

// valueWindow is a fixed-capacity FIFO of the most recent values.
type valueWindow struct {
	values []float64
	head   int
	full   bool
}

func newValueWindow(capacity int) *valueWindow {
	return &valueWindow{values: make([]float64, 0, capacity)}
}

// push appends a value, evicting the oldest once the window is full.
func (w *valueWindow) push(v float64) {
	if !w.full {
		w.values = append(w.values, v)
		w.full = len(w.values) == cap(w.values)
		return
	}
	w.values[w.head] = v
	w.head = (w.head + 1) % len(w.values)
}

// meanStdDev computes the arithmetic mean and population standard
// deviation (divide by n, not n-1) over the current window contents.
func (w *valueWindow) meanStdDev() (mean, stdDev float64) {
	n := len(w.values)
	if n == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range w.values {
		sum += v
	}
	mean = sum / float64(n)

	var sq float64
	for _, v := range w.values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(n))
}

// Accumulator maintains per-parameter statistics over a session.
//
// Parameter entries are created lazily on the first accepted reading of
// a code and are never destroyed during a run. Accumulator is not safe
// for concurrent use; it is owned by the single engine loop.
type Accumulator struct {
	windowSize int
	params     map[string]*paramState
}

// NewAccumulator creates an accumulator whose mean/std-dev window holds
// windowSize values. A windowSize <= 0 uses DefaultWindowSize.
func NewAccumulator(windowSize int) *Accumulator {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Accumulator{
		windowSize: windowSize,
		params:     make(map[string]*paramState),
	}
}

// Update folds one accepted value into the statistics for code.
//
// The first value for a code initialises min, max and mean to the value
// itself with zero standard deviation. Subsequent values extend the
// lifetime extrema and recompute the windowed mean and population
// standard deviation.
func (a *Accumulator) Update(code string, value float64) {
	p, ok := a.params[code]
	if !ok {
		p = &paramState{window: newValueWindow(a.windowSize)}
		a.params[code] = p
	}

	p.window.push(value)
	p.stats.Current = value
	p.stats.Count++

	if p.stats.Count == 1 {
		p.stats.Min = value
		p.stats.Max = value
		p.stats.Mean = value
		p.stats.StdDev = 0
		return
	}

	p.stats.Min = math.Min(p.stats.Min, value)
	p.stats.Max = math.Max(p.stats.Max, value)
	p.stats.Mean, p.stats.StdDev = p.window.meanStdDev()
}

// Get returns the statistics snapshot for code, and whether the code has
// any accepted readings.
func (a *Accumulator) Get(code string) (ParameterStats, bool) {
	p, ok := a.params[code]
	if !ok {
		return ParameterStats{}, false
	}
	return p.stats, true
}

// Codes returns the parameter codes with accumulated statistics, sorted
// for deterministic snapshot output.
func (a *Accumulator) Codes() []string {
	codes := make([]string, 0, len(a.params))
	for code := range a.params {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Len returns the number of parameters with accumulated statistics.
func (a *Accumulator) Len() int {
	return len(a.params)
}
