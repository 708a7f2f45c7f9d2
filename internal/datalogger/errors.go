package datalogger

import "errors"

var (
	// ErrWriterClosed is returned when writing to a closed Writer.
	ErrWriterClosed = errors.New("datalogger: writer closed")

	// ErrNoHistory is returned when querying the last record of an
	// engine that has not logged anything yet.
	ErrNoHistory = errors.New("datalogger: no records logged")
)
