package datalogger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anemotech/trisonica-logger/internal/device"
	"github.com/anemotech/trisonica-logger/internal/telemetry"
)

const (
	// DefaultSnapshotEvery is how many accepted records pass between
	// periodic statistics snapshots.
	DefaultSnapshotEvery = 100

	// DefaultStatusInterval is how often the engine logs a status line.
	DefaultStatusInterval = 30 * time.Second

	finishTimeout = 5 * time.Second
)

// LineSource delivers raw sensor lines. device.Session satisfies this
// interface; tests use scripted fakes.
type LineSource interface {
	ReadLine(ctx context.Context) (string, error)
	PortName() string
	Stats() device.Stats
	Close() error
}

// Indicator receives liveness signals from the engine. Implementations
// drive an LED or, by default, a debug log line.
type Indicator interface {
	// LoggingActive signals whether a session is running.
	LoggingActive(active bool)

	// Flash signals one persisted record.
	Flash()
}

// Logger receives engine events.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config controls one engine run.
type Config struct {
	// DataDir is the resolved, writable output directory.
	DataDir string

	// StatsEnabled controls the statistics pipeline and its sink.
	StatsEnabled bool

	// SnapshotEvery is the accepted-record period between statistics
	// snapshots. Default: DefaultSnapshotEvery.
	SnapshotEvery int

	// WindowSize bounds the rolling mean/stddev window.
	// Default: telemetry.DefaultWindowSize.
	WindowSize int

	// HistorySize bounds the in-memory record ring.
	// Default: telemetry.DefaultHistorySize.
	HistorySize int

	// StrictTemperature treats negative temperatures as errors.
	StrictTemperature bool

	// StatusInterval is the period between status log lines.
	// Default: DefaultStatusInterval.
	StatusInterval time.Duration

	// Index, when set, records this session in the session index.
	// Index failures are logged and never stop the run.
	Index *SessionIndex

	// Indicator, when set, receives liveness signals.
	Indicator Indicator

	// Logger, when set, receives engine events.
	Logger Logger
}

// Engine runs the acquisition pipeline: one loop that reads a line,
// parses it, persists it, then classifies and accumulates each field.
// No stage overlaps or reorders relative to another.
//
// Counters read by the status reporter goroutine are atomic; everything
// else is owned by the loop.
type Engine struct {
	cfg    Config
	source LineSource

	schema     *telemetry.Schema
	acc        *telemetry.Accumulator
	quality    *telemetry.Quality
	classifier *telemetry.Classifier
	history    *telemetry.History
	writer     *Writer

	points      atomic.Uint64 // persisted records
	lines       atomic.Uint64 // received data lines
	fieldErrors atomic.Uint64 // erroring field attempts
	paramCount  atomic.Uint64 // parameters with statistics

	startedAt time.Time
}

// New builds an engine around source. Zero config fields take the
// package defaults.
func New(source LineSource, cfg Config) (*Engine, error) {
	if source == nil {
		return nil, errors.New("datalogger: nil line source")
	}
	if cfg.DataDir == "" {
		return nil, errors.New("datalogger: data directory is required")
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = DefaultSnapshotEvery
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = telemetry.DefaultWindowSize
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = telemetry.DefaultHistorySize
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}

	quality := telemetry.NewQuality()
	return &Engine{
		cfg:        cfg,
		source:     source,
		schema:     telemetry.NewSchema(),
		acc:        telemetry.NewAccumulator(cfg.WindowSize),
		quality:    quality,
		classifier: telemetry.NewClassifier(quality, cfg.StrictTemperature),
		history:    telemetry.NewHistory(cfg.HistorySize),
	}, nil
}

// Run executes the pipeline until ctx is cancelled, the source stops,
// or persistence fails. Persistence failures are fatal; shutdown always
// flushes a final statistics snapshot, releases the device, and closes
// the output files, in that order.
func (e *Engine) Run(ctx context.Context) error {
	e.startedAt = time.Now()

	w, err := NewWriter(e.cfg.DataDir, e.startedAt)
	if err != nil {
		return fmt.Errorf("opening output files: %w", err)
	}
	e.writer = w
	defer w.Close()

	defer func() {
		if err := e.source.Close(); err != nil {
			e.logWarn("closing device", "error", err)
		}
	}()

	sessionID := e.startSession(ctx, w)
	defer e.finishRun(sessionID, w)

	if e.cfg.Indicator != nil {
		e.cfg.Indicator.LoggingActive(true)
		defer e.cfg.Indicator.LoggingActive(false)
	}

	stopStatus := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go e.statusLoop(stopStatus, &wg)
	defer func() {
		close(stopStatus)
		wg.Wait()
	}()

	e.logInfo("logging started",
		"data_file", w.DataPath(),
		"stats_file", w.StatsPath(),
	)

	for {
		line, err := e.source.ReadLine(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				e.logInfo("shutdown requested")
				return nil
			case errors.Is(err, device.ErrStopped):
				e.logInfo("device session ended")
				return nil
			default:
				return fmt.Errorf("reading from device: %w", err)
			}
		}

		if err := e.handleLine(line); err != nil {
			return err
		}
	}
}

// handleLine runs one line through the pipeline. A returned error is a
// persistence failure and ends the run.
func (e *Engine) handleLine(line string) error {
	now := time.Now()

	e.quality.NoteLine()
	e.lines.Add(1)

	// An unparseable line still counts as a reading attempt, but
	// produces no record and must not disturb the schema.
	fields := telemetry.ParseLine(line)
	if len(fields) == 0 {
		return nil
	}

	if e.schema.Observe(fields) {
		e.logDebug("schema grew", "columns", e.schema.Len())
	}

	rec := telemetry.Record{Timestamp: now, Raw: line, Fields: fields}
	if err := e.writer.WriteRecord(e.schema.Columns(), rec); err != nil {
		return fmt.Errorf("persisting record: %w", err)
	}

	for _, f := range fields {
		reading := e.classifier.Classify(f.Code, f.Value, now)
		if reading.IsError() {
			e.fieldErrors.Add(1)
		}
		if e.cfg.StatsEnabled && reading.Accumulate {
			e.acc.Update(f.Code, reading.Value)
		}
	}
	e.paramCount.Store(uint64(e.acc.Len()))

	e.history.Append(rec)
	points := e.points.Add(1)

	if e.cfg.Indicator != nil {
		e.cfg.Indicator.Flash()
	}

	if e.cfg.StatsEnabled && points%uint64(e.cfg.SnapshotEvery) == 0 {
		if err := e.writer.WriteStats(now, e.acc, e.quality); err != nil {
			return fmt.Errorf("persisting statistics: %w", err)
		}
	}

	return nil
}

// startSession registers the run in the session index. Returns -1 when
// the index is absent or the insert fails.
func (e *Engine) startSession(ctx context.Context, w *Writer) int64 {
	if e.cfg.Index == nil {
		return -1
	}

	id, err := e.cfg.Index.Start(ctx, e.startedAt, w.DataPath(), w.StatsPath())
	if err != nil {
		e.logWarn("recording session start", "error", err)
		return -1
	}
	return id
}

// finishRun writes the final statistics snapshot, logs the session
// summary, and completes the session index row. Runs before the device
// and file close deferred earlier.
func (e *Engine) finishRun(sessionID int64, w *Writer) {
	if e.cfg.StatsEnabled {
		if err := w.WriteStats(time.Now(), e.acc, e.quality); err != nil {
			e.logError("final statistics flush", "error", err)
		}
	}

	points := e.points.Load()
	runtime := time.Since(e.startedAt)
	rate := 0.0
	if runtime > 0 {
		rate = float64(points) / runtime.Seconds()
	}
	e.logInfo("session complete",
		"points", points,
		"runtime", runtime.Round(time.Second).String(),
		"avg_rate_hz", fmt.Sprintf("%.1f", rate),
	)

	if sessionID < 0 {
		return
	}

	// The run context is usually cancelled by now.
	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()

	stats := e.source.Stats()
	if err := e.cfg.Index.Finish(ctx, sessionID, time.Now(), stats.PortName,
		points, e.fieldErrors.Load(), stats.Reconnects); err != nil {
		e.logWarn("recording session end", "error", err)
	}
}

// statusLoop logs a status line every StatusInterval until stopped.
func (e *Engine) statusLoop(stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(e.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.logStatus()
		}
	}
}

// logStatus reports throughput and quality from the atomic counters.
func (e *Engine) logStatus() {
	points := e.points.Load()
	lines := e.lines.Load()
	elapsed := time.Since(e.startedAt).Seconds()

	rate := 0.0
	if elapsed > 0 {
		rate = float64(points) / elapsed
	}
	errorRate := 0.0
	if lines > 0 {
		errorRate = float64(e.fieldErrors.Load()) / float64(lines) * 100
	}

	e.logInfo("status",
		"points", points,
		"rate_hz", fmt.Sprintf("%.1f", rate),
		"error_rate_percent", fmt.Sprintf("%.1f", errorRate),
		"parameters", e.paramCount.Load(),
		"state", e.source.Stats().State,
	)
}

// Points returns the number of persisted records so far.
func (e *Engine) Points() uint64 {
	return e.points.Load()
}

// LastRecord returns the most recent persisted record.
func (e *Engine) LastRecord() (telemetry.Record, error) {
	rec, ok := e.history.Last()
	if !ok {
		return telemetry.Record{}, ErrNoHistory
	}
	return rec, nil
}

func (e *Engine) logDebug(msg string, keysAndValues ...any) {
	if e.cfg.Logger != nil {
		e.cfg.Logger.Debug(msg, keysAndValues...)
	}
}

func (e *Engine) logInfo(msg string, keysAndValues ...any) {
	if e.cfg.Logger != nil {
		e.cfg.Logger.Info(msg, keysAndValues...)
	}
}

func (e *Engine) logWarn(msg string, keysAndValues ...any) {
	if e.cfg.Logger != nil {
		e.cfg.Logger.Warn(msg, keysAndValues...)
	}
}

func (e *Engine) logError(msg string, keysAndValues ...any) {
	if e.cfg.Logger != nil {
		e.cfg.Logger.Error(msg, keysAndValues...)
	}
}
