package telemetry

import "sort"

// ParamCounts holds per-parameter reading attempt counters.
type ParamCounts struct {
	Total  uint64 // reading attempts for this parameter
	Errors uint64 // attempts classified as errors
}

// ErrorRatePercent returns this parameter's error rate as a percentage.
// Reading it never mutates the counters.
func (c ParamCounts) ErrorRatePercent() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Errors) / float64(c.Total) * 100
}

// Quality tracks engine-wide data quality counters for one session.
//
// TotalReadings counts received data lines; TotalErrors counts erroring
// field attempts across all parameters, so the engine-wide error rate
// can exceed 100% when a single line carries several bad fields. The
// counters only ever increase.
//
// Quality is owned by the engine and handed by reference to the
// classifier; there is no package-level shared instance.
type Quality struct {
	totalReadings uint64
	totalErrors   uint64
	perParam      map[string]*ParamCounts
}

// NewQuality returns an empty counter set.
func NewQuality() *Quality {
	return &Quality{perParam: make(map[string]*ParamCounts)}
}

// NoteLine records that one data line was received.
func (q *Quality) NoteLine() {
	q.totalReadings++
}

// NoteField records one reading attempt for a parameter.
func (q *Quality) NoteField(code string, isError bool) {
	c, ok := q.perParam[code]
	if !ok {
		c = &ParamCounts{}
		q.perParam[code] = c
	}
	c.Total++
	if isError {
		c.Errors++
		q.totalErrors++
	}
}

// TotalReadings returns the number of data lines received.
func (q *Quality) TotalReadings() uint64 {
	return q.totalReadings
}

// TotalErrors returns the number of erroring field attempts.
func (q *Quality) TotalErrors() uint64 {
	return q.totalErrors
}

// ErrorRatePercent returns the engine-wide error rate as a percentage.
// It is a pure read: calling it repeatedly yields identical results for
// identical counter state.
func (q *Quality) ErrorRatePercent() float64 {
	if q.totalReadings == 0 {
		return 0
	}
	return float64(q.totalErrors) / float64(q.totalReadings) * 100
}

// ParamCounts returns the counters for code, and whether the code has
// been seen at all.
func (q *Quality) ParamCounts(code string) (ParamCounts, bool) {
	c, ok := q.perParam[code]
	if !ok {
		return ParamCounts{}, false
	}
	return *c, true
}

// Codes returns every parameter code with at least one reading attempt,
// sorted.
func (q *Quality) Codes() []string {
	codes := make([]string, 0, len(q.perParam))
	for code := range q.perParam {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
