package telemetry

import (
	"strconv"
	"strings"
	"time"
)

// Status is the health classification of one parameter.
type Status string

// Health statuses, from least to most informative.
const (
	// StatusUnknown means the parameter has never been classified.
	StatusUnknown Status = "Unknown"

	// StatusGood means the last reading was a plausible measurement.
	StatusGood Status = "Good"

	// StatusError means the last reading was non-numeric or carried the
	// sensor's "no valid reading" sentinel (any value at or below the
	// error floor).
	StatusError Status = "Error"

	// StatusMalfunction means the reading is numeric but physically
	// impossible (runaway temperature), indicating a failing transducer.
	StatusMalfunction Status = "Malfunction"

	// StatusOffline means the pressure sensor reported its dedicated
	// "module not fitted" value.
	StatusOffline Status = "Offline"
)

// Classification thresholds. These follow the Trisonica firmware
// conventions: the sensor substitutes -99.x values for failed readings
// instead of omitting the field.
const (
	// errorFloor is the sentinel threshold: any value at or below it is
	// a fault code, not a measurement.
	errorFloor = -99.0

	// temperatureRunaway marks a temperature reading as a transducer
	// malfunction rather than a measurement.
	temperatureRunaway = 100000.0

	// pressureOffline is the exact value the sensor reports when the
	// pressure module is absent. It sits below the error floor but is a
	// distinct, known condition worth separating from generic errors.
	pressureOffline = -99.70

	// pressureCode is the parameter code for barometric pressure.
	pressureCode = "P"

	// temperaturePrefix identifies temperature-family codes (T, T2, ...).
	temperaturePrefix = "T"
)

// HealthRecord is the current health view of one parameter.
type HealthRecord struct {
	// Status reflects the most recent reading attempt only; a single
	// good reading after a run of errors reports Good immediately.
	Status Status

	// ErrorRatePercent is the engine-wide error rate at the time of the
	// last attempt, not a per-parameter rate.
	ErrorRatePercent float64

	// LastGoodReading is the wall-clock time of the last non-error
	// reading. Zero if the parameter has only ever errored.
	LastGoodReading time.Time
}

// Reading is the outcome of classifying one raw field value.
type Reading struct {
	Code   string
	Status Status

	// Value is the parsed numeric value. Only meaningful when Numeric
	// is true.
	Value   float64
	Numeric bool

	// Accumulate reports whether the value belongs in the statistics.
	// Malfunction and Offline readings still accumulate: they are
	// plausible-but-flagged numbers, unlike hard sentinel errors.
	Accumulate bool
}

// IsError reports whether the reading counts toward error totals.
func (r Reading) IsError() bool {
	return r.Status == StatusError
}

// Classifier derives per-parameter health from raw field values and
// maintains the engine-wide quality counters it is given.
//
// Classifier is not safe for concurrent use; it is owned by the single
// engine loop.
type Classifier struct {
	quality *Quality
	health  map[string]*HealthRecord

	// strictTemperature additionally treats negative temperature
	// readings as errors, for deployments where sub-zero values can
	// only mean a wiring or transducer fault.
	strictTemperature bool
}

// NewClassifier creates a classifier that records attempt counts into
// quality. The quality counters are shared with the engine: the
// classifier mutates them, the engine and the statistics snapshots read
// them.
func NewClassifier(quality *Quality, strictTemperature bool) *Classifier {
	return &Classifier{
		quality:           quality,
		health:            make(map[string]*HealthRecord),
		strictTemperature: strictTemperature,
	}
}

// Classify evaluates one raw field value for a parameter at the given
// time, updates the quality counters and the parameter's health record,
// and returns the classification.
//
// Decision order:
//  1. Non-numeric text is an Error (counted, never accumulated).
//  2. The pressure code at exactly the offline value is Offline. This
//     is checked before the sentinel floor so the distinct condition is
//     not swallowed by the generic fault code.
//  3. Any value at or below the error floor is an Error.
//  4. In strict mode, a negative temperature reading is an Error.
//  5. A temperature reading beyond the runaway threshold is a
//     Malfunction; anything else is Good.
func (c *Classifier) Classify(code, raw string, at time.Time) Reading {
	reading := Reading{Code: code}

	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	switch {
	case err != nil:
		reading.Status = StatusError

	case code == pressureCode && value == pressureOffline:
		reading.Value, reading.Numeric = value, true
		reading.Status = StatusOffline
		reading.Accumulate = true

	case value <= errorFloor:
		reading.Value, reading.Numeric = value, true
		reading.Status = StatusError

	case c.strictTemperature && strings.HasPrefix(code, temperaturePrefix) && value < 0:
		reading.Value, reading.Numeric = value, true
		reading.Status = StatusError

	case strings.HasPrefix(code, temperaturePrefix) && value > temperatureRunaway:
		reading.Value, reading.Numeric = value, true
		reading.Status = StatusMalfunction
		reading.Accumulate = true

	default:
		reading.Value, reading.Numeric = value, true
		reading.Status = StatusGood
		reading.Accumulate = true
	}

	c.quality.NoteField(code, reading.IsError())
	c.updateHealth(reading, at)

	return reading
}

// updateHealth applies a classified reading to the parameter's health
// record and refreshes the engine-wide error rate it carries.
func (c *Classifier) updateHealth(reading Reading, at time.Time) {
	rec, ok := c.health[reading.Code]
	if !ok {
		rec = &HealthRecord{Status: StatusUnknown}
		c.health[reading.Code] = rec
	}

	rec.Status = reading.Status
	if !reading.IsError() {
		rec.LastGoodReading = at
	}
	rec.ErrorRatePercent = c.quality.ErrorRatePercent()
}

// Health returns the health record for code, and whether the code has
// ever been classified.
func (c *Classifier) Health(code string) (HealthRecord, bool) {
	rec, ok := c.health[code]
	if !ok {
		return HealthRecord{Status: StatusUnknown}, false
	}
	return *rec, true
}
