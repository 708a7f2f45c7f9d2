package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default session timings.
const (
	// defaultPollInterval is the wait between discovery sweeps while
	// searching for a device.
	defaultPollInterval = 5 * time.Second

	// defaultReadTimeout bounds a single line read on the open session.
	defaultReadTimeout = 1 * time.Second

	// defaultProbeTimeout bounds a single line read while probing a
	// candidate port.
	defaultProbeTimeout = 2 * time.Second

	// defaultProbeLines is how many lines to inspect per candidate
	// before rejecting it.
	defaultProbeLines = 10

	// defaultBaudRate matches the Trisonica factory configuration.
	defaultBaudRate = 115200
)

// AutoPort selects automatic device discovery instead of a fixed path.
const AutoPort = "auto"

// State identifies where the session state machine currently is.
type State string

// Session states. Stopped is terminal.
const (
	StateSearching    State = "searching"
	StateProbing      State = "probing"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateStopped      State = "stopped"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config holds session configuration.
type Config struct {
	// PortPath is an explicit device path, or AutoPort for discovery.
	PortPath string

	// BaudRate for both probing and the persistent session.
	// Default: 115200.
	BaudRate int

	// WaitForDevice keeps the session searching when no device is
	// present and re-searching after a disconnect. When false, a
	// missing device is fatal and a disconnect stops the session.
	WaitForDevice bool

	// PollInterval is the wait between discovery sweeps. Default: 5s.
	PollInterval time.Duration

	// ReadTimeout bounds each line read once connected. Default: 1s.
	ReadTimeout time.Duration

	// ProbeTimeout bounds each line read while probing. Default: 2s.
	ProbeTimeout time.Duration

	// ProbeLines is how many lines to inspect per candidate. Default: 10.
	ProbeLines int

	// Opener opens serial ports. Default: SerialOpener.
	Opener Opener

	// ListPorts enumerates candidate ports. Default: FindPorts.
	ListPorts func() []string
}

// Stats is a point-in-time snapshot of session counters.
type Stats struct {
	LinesRead    uint64
	ReadErrors   uint64
	Reconnects   uint64 // successful re-connects after a link loss
	Connected    bool
	State        State
	PortName     string
	LastActivity time.Time
}

// Session is the device acquisition state machine.
//
// The read path (ReadLine) is single-consumer: it is driven by the one
// engine loop. Stats and State are safe to read from other goroutines,
// which is how the periodic status reporter observes the link.
type Session struct {
	cfg Config

	mu       sync.Mutex
	state    State
	port     Port
	portName string

	// everConnected distinguishes a first connect from a reconnect for
	// the reconnect counter.
	everConnected bool

	linesRead    atomic.Uint64
	readErrors   atomic.Uint64
	reconnects   atomic.Uint64
	lastActivity atomic.Int64 // Unix seconds

	logger   Logger
	loggerMu sync.RWMutex
}

// NewSession creates a session with defaults applied. The session does
// not touch hardware until ReadLine is called.
func NewSession(cfg Config) *Session {
	if cfg.PortPath == "" {
		cfg.PortPath = AutoPort
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.ProbeLines == 0 {
		cfg.ProbeLines = defaultProbeLines
	}
	if cfg.Opener == nil {
		cfg.Opener = SerialOpener{}
	}
	if cfg.ListPorts == nil {
		cfg.ListPorts = FindPorts
	}

	return &Session{
		cfg:   cfg,
		state: StateSearching,
	}
}

// SetLogger sets the logger for this session.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// ReadLine returns the next non-empty data line from the sensor.
//
// It transparently drives the state machine: when no device is open it
// searches, probes and connects first; when the link drops it either
// re-enters searching (wait-for-device) or stops. Blank lines and read
// timeouts are absorbed.
//
// Returns ctx.Err() on cancellation, ErrStopped once the session is
// terminal, and ErrNoDevice when discovery fails in non-waiting mode.
func (s *Session) ReadLine(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if s.State() == StateStopped {
			return "", ErrStopped
		}

		port := s.currentPort()
		if port == nil {
			if err := s.connect(ctx); err != nil {
				return "", err
			}
			continue
		}

		line, err := port.ReadLine()
		switch {
		case err == nil:
			if line == "" {
				continue
			}
			s.linesRead.Add(1)
			s.lastActivity.Store(time.Now().Unix())
			return line, nil

		case errors.Is(err, ErrReadTimeout):
			continue // idle link, keep waiting

		default:
			s.readErrors.Add(1)
			s.logWarn("serial link lost", "error", err, "port", s.PortName())
			s.disconnect()

			if !s.cfg.WaitForDevice {
				s.stop()
				return "", ErrStopped
			}
			// Loop re-enters searching on the next iteration.
		}
	}
}

// connect drives Searching/Probing until a device is open or the
// attempt is fatal.
func (s *Session) connect(ctx context.Context) error {
	if s.cfg.PortPath != AutoPort {
		return s.connectExplicit(ctx)
	}
	if !s.cfg.WaitForDevice {
		return s.connectFirstCandidate()
	}
	return s.searchAndProbe(ctx)
}

// connectExplicit opens a fixed, operator-supplied path. No content
// probe: the operator said this is the device.
func (s *Session) connectExplicit(ctx context.Context) error {
	for {
		s.setState(StateProbing)
		err := s.open(s.cfg.PortPath)
		if err == nil {
			return nil
		}

		if !s.cfg.WaitForDevice {
			return err
		}

		s.logWarn("configured port not available, retrying", "port", s.cfg.PortPath, "error", err)
		s.setState(StateSearching)
		if waitErr := s.waitPoll(ctx); waitErr != nil {
			return waitErr
		}
	}
}

// connectFirstCandidate is the explicit lower-assurance fast path for
// non-waiting mode: first enumerated port, no content verification.
func (s *Session) connectFirstCandidate() error {
	ports := s.cfg.ListPorts()
	if len(ports) == 0 {
		s.stop()
		return ErrNoDevice
	}
	if err := s.open(ports[0]); err != nil {
		s.stop()
		return fmt.Errorf("%w: %w", ErrNoDevice, err)
	}
	return nil
}

// searchAndProbe sweeps candidate ports until one produces
// Trisonica-looking output, polling between sweeps.
func (s *Session) searchAndProbe(ctx context.Context) error {
	for {
		s.setState(StateSearching)

		ports := s.cfg.ListPorts()
		if len(ports) == 0 {
			s.logDebug("no serial ports found, waiting")
		} else {
			s.setState(StateProbing)
			for _, path := range ports {
				if err := ctx.Err(); err != nil {
					return err
				}
				if s.probe(path) {
					s.logInfo("trisonica detected", "port", path)
					if err := s.open(path); err != nil {
						s.logWarn("opening detected port failed", "port", path, "error", err)
						continue
					}
					return nil
				}
				s.logDebug("no trisonica data on port", "port", path)
			}
			s.logInfo("no trisonica found, retrying", "interval", s.cfg.PollInterval.String())
		}

		if err := s.waitPoll(ctx); err != nil {
			return err
		}
	}
}

// probe opens a candidate briefly and checks whether its output looks
// like Trisonica telemetry.
func (s *Session) probe(path string) bool {
	port, err := s.cfg.Opener.Open(path, s.cfg.BaudRate, s.cfg.ProbeTimeout)
	if err != nil {
		s.logDebug("probe open failed", "port", path, "error", err)
		return false
	}
	defer port.Close()

	for n := 0; n < s.cfg.ProbeLines; n++ {
		line, err := port.ReadLine()
		if err != nil {
			if errors.Is(err, ErrReadTimeout) {
				continue
			}
			return false
		}
		for _, token := range probeTokens {
			if strings.Contains(line, token) {
				return true
			}
		}
	}
	return false
}

// open establishes the persistent session on path.
func (s *Session) open(path string) error {
	port, err := s.cfg.Opener.Open(path, s.cfg.BaudRate, s.cfg.ReadTimeout)
	if err != nil {
		return err
	}

	s.mu.Lock()
	wasConnected := s.everConnected
	s.port = port
	s.portName = path
	s.state = StateConnected
	s.everConnected = true
	s.mu.Unlock()

	if wasConnected {
		s.reconnects.Add(1)
	}
	s.lastActivity.Store(time.Now().Unix())
	s.logInfo("connected", "port", path, "baud", s.cfg.BaudRate)
	return nil
}

// disconnect closes the port and marks the session disconnected.
func (s *Session) disconnect() {
	s.mu.Lock()
	if s.port != nil {
		s.port.Close()
		s.port = nil
	}
	s.portName = ""
	s.state = StateDisconnected
	s.mu.Unlock()
}

// stop moves the session to its terminal state.
func (s *Session) stop() {
	s.mu.Lock()
	if s.port != nil {
		s.port.Close()
		s.port = nil
	}
	s.state = StateStopped
	s.mu.Unlock()
}

// setState updates the state machine position.
func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// waitPoll sleeps for the poll interval, or returns early on
// cancellation.
func (s *Session) waitPoll(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Close releases the device handle and stops the session. Safe to call
// multiple times.
func (s *Session) Close() error {
	s.stop()
	return nil
}

// State returns the current state machine position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PortName returns the open device path, or empty when not connected.
func (s *Session) PortName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portName
}

// IsConnected reports whether a device is currently open.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// Stats returns current session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	state := s.state
	portName := s.portName
	s.mu.Unlock()

	return Stats{
		LinesRead:    s.linesRead.Load(),
		ReadErrors:   s.readErrors.Load(),
		Reconnects:   s.reconnects.Load(),
		Connected:    state == StateConnected,
		State:        state,
		PortName:     portName,
		LastActivity: time.Unix(s.lastActivity.Load(), 0),
	}
}

// currentPort returns the open port, if any.
func (s *Session) currentPort() Port {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// logDebug logs a debug message if a logger is set.
func (s *Session) logDebug(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is set.
func (s *Session) logInfo(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if a logger is set.
func (s *Session) logWarn(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (s *Session) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}
