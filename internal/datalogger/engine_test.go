package datalogger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anemotech/trisonica-logger/internal/device"
)

// scriptedSource replays a fixed set of lines, then stops.
type scriptedSource struct {
	lines  []string
	next   int
	port   string
	closed bool
}

func (s *scriptedSource) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.next >= len(s.lines) {
		return "", device.ErrStopped
	}
	line := s.lines[s.next]
	s.next++
	return line, nil
}

func (s *scriptedSource) PortName() string { return s.port }

func (s *scriptedSource) Stats() device.Stats {
	return device.Stats{
		LinesRead: uint64(s.next),
		Connected: !s.closed,
		State:     device.StateConnected,
		PortName:  s.port,
	}
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

type countingIndicator struct {
	mu      sync.Mutex
	active  []bool
	flashes int
}

func (i *countingIndicator) LoggingActive(active bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.active = append(i.active, active)
}

func (i *countingIndicator) Flash() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.flashes++
}

func newTestEngine(t *testing.T, src LineSource, mutate func(*Config)) *Engine {
	t.Helper()

	cfg := Config{
		DataDir:      t.TempDir(),
		StatsEnabled: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	e, err := New(src, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, Config{DataDir: "/tmp"}); err == nil {
		t.Error("New(nil source) expected error")
	}
	if _, err := New(&scriptedSource{}, Config{}); err == nil {
		t.Error("New() without data dir expected error")
	}
}

func TestEngineEndToEnd(t *testing.T) {
	src := &scriptedSource{
		port: "/dev/ttyUSB0",
		lines: []string{
			"S 01.25,T 22.50",
			"garbage",
			"S -99.50,T 23.00",
			"S 01.30,T 22.75,U 00.40",
		},
	}
	e := newTestEngine(t, src, nil)

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The unparseable line yields no record; every parseable line does,
	// including the one carrying a sentinel error value.
	if e.Points() != 3 {
		t.Errorf("Points() = %d, want 3", e.Points())
	}

	rows := readCSV(t, e.writer.DataPath())
	if len(rows) != 4 {
		t.Fatalf("data rows = %d, want header + 3", len(rows))
	}
	wantHeader := []string{"timestamp", "S", "T"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}
	// Sentinel values are persisted verbatim; only statistics skip them.
	if rows[2][1] != "-99.50" {
		t.Errorf("sentinel cell = %q, want -99.50", rows[2][1])
	}
	if len(rows[3]) != 4 || rows[3][3] != "00.40" {
		t.Errorf("grown row = %v", rows[3])
	}

	// Final snapshot at shutdown: one row per parameter seen.
	statsRows := readCSV(t, e.writer.StatsPath())
	if len(statsRows) != 4 {
		t.Fatalf("stats rows = %d, want header + 3 parameters", len(statsRows))
	}
	byParam := make(map[string][]string)
	for _, row := range statsRows[1:] {
		byParam[row[1]] = row
	}
	if sRow, ok := byParam["S"]; !ok {
		t.Error("no stats row for S")
	} else if sRow[6] != "2" || sRow[7] != "1" {
		t.Errorf("S good/error counts = %q/%q, want 2/1", sRow[6], sRow[7])
	}

	if !src.closed {
		t.Error("source not closed at shutdown")
	}

	if _, err := e.LastRecord(); err != nil {
		t.Errorf("LastRecord() error = %v", err)
	}
}

func TestEnginePeriodicSnapshots(t *testing.T) {
	src := &scriptedSource{lines: []string{"S 1.0", "S 2.0", "S 3.0"}}
	e := newTestEngine(t, src, func(cfg *Config) {
		cfg.SnapshotEvery = 2
	})

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// One periodic snapshot after record 2, plus the final one.
	rows := readCSV(t, e.writer.StatsPath())
	if len(rows) != 3 {
		t.Errorf("stats rows = %d, want header + 2 snapshots", len(rows))
	}
}

func TestEngineStatsDisabled(t *testing.T) {
	src := &scriptedSource{lines: []string{"S 1.0", "S 2.0"}}
	e := newTestEngine(t, src, func(cfg *Config) {
		cfg.StatsEnabled = false
		cfg.SnapshotEvery = 1
	})

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rows := readCSV(t, e.writer.StatsPath())
	if len(rows) != 1 {
		t.Errorf("stats rows = %d, want header only", len(rows))
	}
}

func TestEngineIndicator(t *testing.T) {
	ind := &countingIndicator{}
	src := &scriptedSource{lines: []string{"S 1.0", "garbage", "S 2.0"}}
	e := newTestEngine(t, src, func(cfg *Config) {
		cfg.Indicator = ind
	})

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if ind.flashes != 2 {
		t.Errorf("flashes = %d, want 2", ind.flashes)
	}
	wantActive := []bool{true, false}
	if len(ind.active) != 2 || ind.active[0] != wantActive[0] || ind.active[1] != wantActive[1] {
		t.Errorf("active transitions = %v, want %v", ind.active, wantActive)
	}
}

func TestEngineSessionIndex(t *testing.T) {
	index := openTestIndex(t)
	src := &scriptedSource{port: "/dev/ttyACM1", lines: []string{"S 1.0", "S -99.90"}}
	e := newTestEngine(t, src, func(cfg *Config) {
		cfg.Index = index
	})

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	sessions, err := index.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Recent() returned %d sessions", len(sessions))
	}

	got := sessions[0]
	if got.Points != 2 {
		t.Errorf("Points = %d, want 2", got.Points)
	}
	if got.Errors != 1 {
		t.Errorf("Errors = %d, want 1", got.Errors)
	}
	if got.Port != "/dev/ttyACM1" {
		t.Errorf("Port = %q", got.Port)
	}
	if got.EndedAt.IsZero() {
		t.Error("EndedAt not recorded")
	}
}

func TestEngineCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &scriptedSource{lines: []string{"S 1.0"}}
	e := newTestEngine(t, src, nil)

	if err := e.Run(ctx); err != nil {
		t.Errorf("Run() on cancelled context = %v, want nil", err)
	}
	if e.Points() != 0 {
		t.Errorf("Points() = %d, want 0", e.Points())
	}
}

func TestEngineNoHistory(t *testing.T) {
	e := newTestEngine(t, &scriptedSource{}, nil)
	if _, err := e.LastRecord(); !errors.Is(err, ErrNoHistory) {
		t.Errorf("LastRecord() error = %v, want ErrNoHistory", err)
	}
}

func TestEngineStatusCounters(t *testing.T) {
	src := &scriptedSource{lines: []string{"S 1.0,T -99.90", "S 2.0"}}
	e := newTestEngine(t, src, func(cfg *Config) {
		cfg.StatusInterval = time.Hour
	})

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := e.lines.Load(); got != 2 {
		t.Errorf("lines = %d, want 2", got)
	}
	if got := e.fieldErrors.Load(); got != 1 {
		t.Errorf("fieldErrors = %d, want 1", got)
	}
	if got := e.paramCount.Load(); got != 1 {
		t.Errorf("paramCount = %d, want 1", got)
	}
}
