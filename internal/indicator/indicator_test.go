package indicator

import (
	"sync"
	"testing"
	"time"
)

type countingTarget struct {
	mu      sync.Mutex
	flashes int
}

func (t *countingTarget) Flash() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flashes++
}

func (t *countingTarget) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flashes
}

type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) Debug(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func TestLogIndicator(t *testing.T) {
	logger := &recordingLogger{}
	ind := NewLogIndicator(logger)

	ind.LoggingActive(true)
	ind.Flash()
	ind.LoggingActive(false)

	if len(logger.msgs) != 3 {
		t.Errorf("logged %d messages, want 3", len(logger.msgs))
	}
}

func TestLogIndicatorNilLogger(t *testing.T) {
	ind := NewLogIndicator(nil)

	// Must not panic.
	ind.LoggingActive(true)
	ind.Flash()
}

func TestBlinkerPulses(t *testing.T) {
	target := &countingTarget{}
	b := NewBlinker(target, 5*time.Millisecond)

	b.Start()
	time.Sleep(60 * time.Millisecond)
	b.Stop()

	if target.count() == 0 {
		t.Error("blinker never pulsed")
	}
}

func TestBlinkerStopIsIdempotent(t *testing.T) {
	b := NewBlinker(&countingTarget{}, time.Millisecond)
	b.Start()

	// A second Stop must not panic on a closed channel.
	b.Stop()
	b.Stop()
}

func TestBlinkerNoPulseAfterStop(t *testing.T) {
	target := &countingTarget{}
	b := NewBlinker(target, time.Millisecond)

	b.Start()
	time.Sleep(20 * time.Millisecond)
	b.Stop()

	settled := target.count()
	time.Sleep(20 * time.Millisecond)
	if got := target.count(); got != settled {
		t.Errorf("pulses after Stop: %d -> %d", settled, got)
	}
}

func TestBlinkerDefaultInterval(t *testing.T) {
	b := NewBlinker(&countingTarget{}, 0)
	if b.interval != DefaultHeartbeatInterval {
		t.Errorf("interval = %v, want %v", b.interval, DefaultHeartbeatInterval)
	}
}
