// Package database manages the SQLite session index connection.
//
// It opens a single-writer connection with WAL journaling and busy
// timeout configured through the DSN, verifies connectivity with a ping,
// and applies an ordered in-code migration list on startup. The file is
// created with restrictive permissions since recorded port paths and
// filenames describe the host.
package database
