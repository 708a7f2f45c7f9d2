// Package indicator signals logger liveness to an operator.
//
// Field units run headless; the only feedback is a status LED or, on a
// bench, the log stream. The package carries the default log-backed
// indicator and a heartbeat blinker that pulses whether or not data is
// flowing.
package indicator
