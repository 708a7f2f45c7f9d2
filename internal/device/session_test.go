package device

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// step is one scripted ReadLine outcome.
type step struct {
	line string
	err  error
}

// fakePort replays a script, then reports timeouts forever.
type fakePort struct {
	mu     sync.Mutex
	steps  []step
	closed bool
}

func (p *fakePort) ReadLine() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.steps) == 0 {
		return "", ErrReadTimeout
	}
	s := p.steps[0]
	p.steps = p.steps[1:]
	return s.line, s.err
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// fakeOpener hands out ports from per-path factories and records every
// open call.
type fakeOpener struct {
	mu        sync.Mutex
	opens     []string
	factories map[string]func() (Port, error)
}

func (o *fakeOpener) Open(path string, _ int, _ time.Duration) (Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens = append(o.opens, path)
	f, ok := o.factories[path]
	if !ok {
		return nil, ErrOpenFailed
	}
	return f()
}

func (o *fakeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opens)
}

func testConfig(opener Opener, ports []string) Config {
	return Config{
		PortPath:      AutoPort,
		WaitForDevice: true,
		PollInterval:  5 * time.Millisecond,
		ProbeLines:    3,
		Opener:        opener,
		ListPorts:     func() []string { return ports },
	}
}

func TestSessionProbeSelectsTrisonicaPort(t *testing.T) {
	opener := &fakeOpener{factories: map[string]func() (Port, error){
		"/dev/ttyACM0": func() (Port, error) {
			// Some other serial device: plausible text, no parameter codes.
			return &fakePort{steps: []step{{line: "hello"}, {line: "world"}}}, nil
		},
		"/dev/ttyUSB0": func() (Port, error) {
			return &fakePort{steps: []step{{line: "S 03.2 D 180 T 21.5"}}}, nil
		},
	}}

	s := NewSession(testConfig(opener, []string{"/dev/ttyACM0", "/dev/ttyUSB0"}))
	defer s.Close()

	line, err := s.ReadLine(context.Background())
	if err != nil {
		t.Fatalf("ReadLine error = %v", err)
	}
	if line != "S 03.2 D 180 T 21.5" {
		t.Errorf("line = %q", line)
	}
	if got := s.PortName(); got != "/dev/ttyUSB0" {
		t.Errorf("PortName = %q, want /dev/ttyUSB0", got)
	}
	if got := s.State(); got != StateConnected {
		t.Errorf("State = %v, want connected", got)
	}
}

func TestSessionReconnectsAfterLinkLoss(t *testing.T) {
	var usbOpens int
	opener := &fakeOpener{factories: map[string]func() (Port, error){
		"/dev/ttyUSB0": func() (Port, error) {
			usbOpens++
			switch usbOpens {
			case 1: // probe
				return &fakePort{steps: []step{{line: "S 01.0"}}}, nil
			case 2: // first persistent session, dies after two lines
				return &fakePort{steps: []step{
					{line: "S 01.0"},
					{line: "S 02.0"},
					{err: io.ErrUnexpectedEOF},
				}}, nil
			case 3: // re-probe after loss
				return &fakePort{steps: []step{{line: "S 03.0"}}}, nil
			default: // second persistent session
				return &fakePort{steps: []step{{line: "S 04.0"}}}, nil
			}
		},
	}}

	s := NewSession(testConfig(opener, []string{"/dev/ttyUSB0"}))
	defer s.Close()

	ctx := context.Background()
	want := []string{"S 01.0", "S 02.0", "S 04.0"}
	for i, w := range want {
		line, err := s.ReadLine(ctx)
		if err != nil {
			t.Fatalf("ReadLine[%d] error = %v", i, err)
		}
		if line != w {
			t.Errorf("ReadLine[%d] = %q, want %q", i, line, w)
		}
	}

	stats := s.Stats()
	if stats.Reconnects != 1 {
		t.Errorf("Reconnects = %d, want 1", stats.Reconnects)
	}
	if stats.LinesRead != 3 {
		t.Errorf("LinesRead = %d, want 3", stats.LinesRead)
	}
	if stats.ReadErrors != 1 {
		t.Errorf("ReadErrors = %d, want 1", stats.ReadErrors)
	}
}

func TestSessionNonWaitingNoDeviceIsFatal(t *testing.T) {
	opener := &fakeOpener{factories: map[string]func() (Port, error){}}
	cfg := testConfig(opener, nil)
	cfg.WaitForDevice = false

	s := NewSession(cfg)
	_, err := s.ReadLine(context.Background())
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("ReadLine error = %v, want ErrNoDevice", err)
	}
	if got := s.State(); got != StateStopped {
		t.Errorf("State = %v, want stopped", got)
	}
}

func TestSessionNonWaitingTakesFirstCandidateWithoutProbe(t *testing.T) {
	opener := &fakeOpener{factories: map[string]func() (Port, error){
		"/dev/ttyACM0": func() (Port, error) {
			return &fakePort{steps: []step{{line: "D 090"}}}, nil
		},
	}}
	cfg := testConfig(opener, []string{"/dev/ttyACM0", "/dev/ttyUSB0"})
	cfg.WaitForDevice = false

	s := NewSession(cfg)
	defer s.Close()

	line, err := s.ReadLine(context.Background())
	if err != nil {
		t.Fatalf("ReadLine error = %v", err)
	}
	if line != "D 090" {
		t.Errorf("line = %q, want D 090", line)
	}
	// Exactly one open: the persistent session, no probe pass.
	if got := opener.openCount(); got != 1 {
		t.Errorf("open count = %d, want 1", got)
	}
}

func TestSessionDisconnectWithoutWaitStops(t *testing.T) {
	opener := &fakeOpener{factories: map[string]func() (Port, error){
		"/dev/ttyUSB0": func() (Port, error) {
			return &fakePort{steps: []step{{line: "S 01.0"}, {err: io.ErrClosedPipe}}}, nil
		},
	}}
	cfg := testConfig(opener, []string{"/dev/ttyUSB0"})
	cfg.WaitForDevice = false

	s := NewSession(cfg)

	if _, err := s.ReadLine(context.Background()); err != nil {
		t.Fatalf("first ReadLine error = %v", err)
	}
	_, err := s.ReadLine(context.Background())
	if !errors.Is(err, ErrStopped) {
		t.Errorf("ReadLine after link loss = %v, want ErrStopped", err)
	}

	// Terminal: further reads keep failing.
	if _, err := s.ReadLine(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("ReadLine on stopped session = %v, want ErrStopped", err)
	}
}

func TestSessionSearchCancellable(t *testing.T) {
	opener := &fakeOpener{factories: map[string]func() (Port, error){}}
	cfg := testConfig(opener, nil) // no ports, keeps polling
	cfg.PollInterval = time.Hour   // cancellation must interrupt the wait

	s := NewSession(cfg)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.ReadLine(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ReadLine error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation took %v, poll wait was not interrupted", elapsed)
	}
}

func TestSessionExplicitPortSkipsDiscovery(t *testing.T) {
	opener := &fakeOpener{factories: map[string]func() (Port, error){
		"/dev/ttyAMA0": func() (Port, error) {
			return &fakePort{steps: []step{{line: "U 00.5"}}}, nil
		},
	}}
	cfg := testConfig(opener, nil)
	cfg.PortPath = "/dev/ttyAMA0"

	s := NewSession(cfg)
	defer s.Close()

	line, err := s.ReadLine(context.Background())
	if err != nil {
		t.Fatalf("ReadLine error = %v", err)
	}
	if line != "U 00.5" {
		t.Errorf("line = %q, want U 00.5", line)
	}
}

func TestSessionSkipsBlankLinesAndTimeouts(t *testing.T) {
	opener := &fakeOpener{factories: map[string]func() (Port, error){
		"/dev/ttyUSB0": func() (Port, error) {
			return &fakePort{steps: []step{
				{err: ErrReadTimeout},
				{line: ""},
				{line: "S 01.5"},
			}}, nil
		},
	}}
	cfg := testConfig(opener, nil)
	cfg.PortPath = "/dev/ttyUSB0"

	s := NewSession(cfg)
	defer s.Close()

	line, err := s.ReadLine(context.Background())
	if err != nil {
		t.Fatalf("ReadLine error = %v", err)
	}
	if line != "S 01.5" {
		t.Errorf("line = %q, want S 01.5", line)
	}
}
