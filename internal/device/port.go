package device

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// maxLineBytes bounds the per-line read buffer. A stream that never
// produces a newline within this many bytes is garbage (wrong baud
// rate, binary device); the buffer is discarded rather than grown.
const maxLineBytes = 4096

// Port is one open serial connection, read a line at a time.
//
// ReadLine blocks for at most the read timeout the port was opened
// with. It returns ErrReadTimeout when no complete line arrived in
// time; any other error is a link failure.
type Port interface {
	ReadLine() (string, error)
	Close() error
}

// Opener opens serial ports. The indirection exists for tests; the
// production implementation is SerialOpener.
type Opener interface {
	Open(path string, baudRate int, readTimeout time.Duration) (Port, error)
}

// SerialOpener opens real serial ports via go.bug.st/serial.
type SerialOpener struct{}

// Open opens the port at 8N1 with the given baud rate and read timeout.
func (SerialOpener) Open(path string, baudRate int, readTimeout time.Duration) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, path, err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: %s: set read timeout: %w", ErrOpenFailed, path, err)
	}

	return &serialPort{port: p}, nil
}

// serialPort adapts a byte-oriented serial.Port to line reads.
type serialPort struct {
	port  serial.Port
	buf   []byte
	chunk [256]byte
}

// ReadLine reads until a newline or the port's read timeout.
//
// The sensor emits ASCII; anything else on the wire (line noise during
// plug events, partial bytes at the wrong baud rate) is filtered out
// rather than surfaced, matching the link's best-effort framing.
func (p *serialPort) ReadLine() (string, error) {
	for {
		if i := bytes.IndexByte(p.buf, '\n'); i >= 0 {
			line := strings.TrimSpace(string(p.buf[:i]))
			rest := p.buf[i+1:]
			p.buf = append(p.buf[:0], rest...)
			return line, nil
		}

		if len(p.buf) > maxLineBytes {
			// No newline within the bound: discard and resynchronise.
			p.buf = p.buf[:0]
		}

		n, err := p.port.Read(p.chunk[:])
		if err != nil {
			return "", fmt.Errorf("reading port: %w", err)
		}
		if n == 0 {
			// go.bug.st/serial signals an expired read timeout with a
			// zero-byte read and a nil error.
			return "", ErrReadTimeout
		}

		for _, b := range p.chunk[:n] {
			if b == '\n' || b == '\r' || b == '\t' || (b >= 0x20 && b < 0x7F) {
				p.buf = append(p.buf, b)
			}
		}
	}
}

// Close releases the underlying serial port.
func (p *serialPort) Close() error {
	return p.port.Close()
}
