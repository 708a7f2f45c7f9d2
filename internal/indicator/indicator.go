package indicator

import (
	"sync"
	"time"
)

// DefaultHeartbeatInterval paces the idle heartbeat blink.
const DefaultHeartbeatInterval = 2 * time.Second

// Logger receives indicator events at debug level.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
}

// Target is anything that can show a single pulse. The engine's
// Indicator interface embeds the same Flash method, so one target can
// serve both record pulses and heartbeats.
type Target interface {
	Flash()
}

// LogIndicator signals liveness through the log. It is the default
// when no physical indicator is wired up; GPIO drivers implement the
// same methods out of tree.
type LogIndicator struct {
	log Logger
}

// NewLogIndicator returns an indicator that writes debug log lines.
func NewLogIndicator(logger Logger) *LogIndicator {
	return &LogIndicator{log: logger}
}

// LoggingActive records a session state transition.
func (i *LogIndicator) LoggingActive(active bool) {
	if i.log != nil {
		i.log.Debug("indicator state", "logging_active", active)
	}
}

// Flash records one pulse.
func (i *LogIndicator) Flash() {
	if i.log != nil {
		i.log.Debug("indicator flash")
	}
}

// Blinker pulses a target on a fixed interval, independent of data
// flow, so an operator can tell "alive but quiet" from "dead". It never
// touches pipeline state.
type Blinker struct {
	target   Target
	interval time.Duration

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBlinker builds a stopped blinker. A non-positive interval takes
// DefaultHeartbeatInterval.
func NewBlinker(target Target, interval time.Duration) *Blinker {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Blinker{
		target:   target,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the heartbeat goroutine.
func (b *Blinker) Start() {
	b.wg.Add(1)
	go b.run()
}

func (b *Blinker) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.target.Flash()
		}
	}
}

// Stop halts the heartbeat and waits for the goroutine to exit. Safe to
// call more than once.
func (b *Blinker) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
}
