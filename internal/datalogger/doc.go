// Package datalogger runs the acquisition pipeline and owns its output.
//
// The Engine drives a single loop over a LineSource: each raw line is
// parsed, persisted to the record CSV, then classified field by field
// to feed health, quality, and rolling statistics. Statistics snapshots
// go to a second CSV periodically and at shutdown. An optional SQLite
// session index catalogues each run's files and final counters.
//
// CSV persistence failures end the run; everything downstream of a
// written record (statistics, health, the session index) degrades
// without losing data rows.
package datalogger
