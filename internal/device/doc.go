// Package device manages the serial link to a Trisonica sensor.
//
// It owns the discovery → probe → connect → read → reconnect state
// machine. Candidate serial ports are enumerated by glob pattern, probed
// for Trisonica-looking output, then held open for line-at-a-time
// reading with a bounded timeout. When the link drops mid-session the
// machine returns to searching (if configured to wait) instead of
// failing the run.
//
// Serial port access goes through the Opener/Port interfaces so tests
// can script link behaviour without hardware; the production opener is
// backed by go.bug.st/serial.
package device
