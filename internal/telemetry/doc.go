// Package telemetry implements the measurement pipeline for Trisonica
// data lines: parsing, dynamic CSV schema tracking, per-parameter
// statistics, and sensor health classification.
//
// The package is deliberately free of I/O. It consumes text lines and
// produces records, statistics snapshots, and health records; reading
// from the device and writing to disk belong to the device and
// datalogger packages.
//
// Parameter codes are short strings emitted by the sensor (S = wind
// speed, D = direction, T = temperature, ...). The set of codes is not
// known in advance: new parameters may appear mid-stream after a sensor
// reconfiguration, so every structure here grows lazily from the codes
// it actually observes.
package telemetry
