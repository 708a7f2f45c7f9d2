package datalogger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/anemotech/trisonica-logger/internal/telemetry"
)

const (
	// filenameTimeFormat stamps output filenames so back-to-back
	// sessions on the same card never collide.
	filenameTimeFormat = "2006-01-02_150405"

	// rowTimeFormat is the ISO-8601 timestamp written into CSV rows.
	rowTimeFormat = "2006-01-02T15:04:05.000000"

	dataFilePrefix  = "TrisonicaData_"
	statsFilePrefix = "TrisonicaStats_"

	outputFilePermissions = 0644
)

// statsHeader is fixed for the life of a stats file.
var statsHeader = []string{
	"timestamp", "parameter", "min", "max", "mean", "std_dev",
	"count", "error_count", "error_rate_percent", "total_readings",
}

// Writer owns the two CSV sinks of a logging session: the record file
// (one row per data line, columns grown as the sensor reveals them) and
// the statistics file (one row per parameter per snapshot).
//
// Every write is followed by a flush so a power cut loses at most the
// row in flight. Writer is not safe for concurrent use; it belongs to
// the single engine loop.
type Writer struct {
	dataPath  string
	statsPath string

	dataFile  *os.File
	statsFile *os.File
	data      *csv.Writer
	stats     *csv.Writer

	headerWritten bool
	closed        bool
}

// NewWriter creates both sink files in dir, stamped with startedAt, and
// writes the fixed statistics header.
//
// Parameters:
//   - dir: Resolved, writable data directory
//   - startedAt: Session start time used in both filenames
//
// Returns:
//   - *Writer: Open writer with both files created
//   - error: If either file cannot be created
func NewWriter(dir string, startedAt time.Time) (*Writer, error) {
	stamp := startedAt.Format(filenameTimeFormat)
	dataPath := filepath.Join(dir, dataFilePrefix+stamp+".csv")
	statsPath := filepath.Join(dir, statsFilePrefix+stamp+".csv")

	dataFile, err := os.OpenFile(dataPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outputFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("creating data file: %w", err)
	}

	statsFile, err := os.OpenFile(statsPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outputFilePermissions)
	if err != nil {
		dataFile.Close()
		return nil, fmt.Errorf("creating stats file: %w", err)
	}

	w := &Writer{
		dataPath:  dataPath,
		statsPath: statsPath,
		dataFile:  dataFile,
		statsFile: statsFile,
		data:      csv.NewWriter(dataFile),
		stats:     csv.NewWriter(statsFile),
	}

	if err := w.writeRow(w.stats, statsHeader); err != nil {
		w.Close()
		return nil, fmt.Errorf("writing stats header: %w", err)
	}

	return w, nil
}

// DataPath returns the record file path.
func (w *Writer) DataPath() string { return w.dataPath }

// StatsPath returns the statistics file path.
func (w *Writer) StatsPath() string { return w.statsPath }

// WriteRecord appends one row for rec, aligned to columns.
//
// The header is written once, from the columns of the first record.
// When the schema later grows, rows simply carry more cells than the
// header names: readers that index by position still see every early
// column in its original place. Absent columns render as empty cells.
func (w *Writer) WriteRecord(columns []string, rec telemetry.Record) error {
	if w.closed {
		return ErrWriterClosed
	}

	if !w.headerWritten {
		if err := w.writeRow(w.data, columns); err != nil {
			return fmt.Errorf("writing data header: %w", err)
		}
		w.headerWritten = true
	}

	values := telemetry.FieldMap(rec.Fields)
	row := make([]string, len(columns))
	for i, col := range columns {
		if col == telemetry.TimestampColumn {
			row[i] = rec.Timestamp.Format(rowTimeFormat)
			continue
		}
		row[i] = values[col]
	}

	if err := w.writeRow(w.data, row); err != nil {
		return fmt.Errorf("writing data row: %w", err)
	}
	return nil
}

// WriteStats appends one snapshot: a row per parameter, covering the
// union of parameters with accumulated statistics and parameters that
// only ever erred. Error-only parameters render zeros with a good
// count of 0.
func (w *Writer) WriteStats(at time.Time, acc *telemetry.Accumulator, quality *telemetry.Quality) error {
	if w.closed {
		return ErrWriterClosed
	}

	timestamp := at.Format(rowTimeFormat)
	for _, code := range snapshotCodes(acc, quality) {
		var minVal, maxVal, mean, stdDev float64
		var goodCount int
		if stat, ok := acc.Get(code); ok {
			minVal, maxVal = stat.Min, stat.Max
			mean, stdDev = stat.Mean, stat.StdDev
			goodCount = stat.Count
		}

		var errorCount, totalReadings uint64
		var errorRate float64
		if counts, ok := quality.ParamCounts(code); ok {
			errorCount = counts.Errors
			totalReadings = counts.Total
			errorRate = counts.ErrorRatePercent()
		} else {
			totalReadings = uint64(goodCount)
		}

		row := []string{
			timestamp,
			code,
			fmt.Sprintf("%.6f", minVal),
			fmt.Sprintf("%.6f", maxVal),
			fmt.Sprintf("%.6f", mean),
			fmt.Sprintf("%.6f", stdDev),
			strconv.Itoa(goodCount),
			strconv.FormatUint(errorCount, 10),
			fmt.Sprintf("%.2f", errorRate),
			strconv.FormatUint(totalReadings, 10),
		}
		if err := w.writeRow(w.stats, row); err != nil {
			return fmt.Errorf("writing stats row for %s: %w", code, err)
		}
	}

	return nil
}

// writeRow writes and flushes one row, surfacing any buffered error.
func (w *Writer) writeRow(cw *csv.Writer, row []string) error {
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// Close flushes and closes both files. Safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.data.Flush()
	w.stats.Flush()

	var firstErr error
	for _, err := range []error{w.data.Error(), w.dataFile.Close(), w.stats.Error(), w.statsFile.Close()} {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// snapshotCodes returns the sorted union of accumulated and error-only
// parameter codes.
func snapshotCodes(acc *telemetry.Accumulator, quality *telemetry.Quality) []string {
	seen := make(map[string]struct{})
	var codes []string
	for _, c := range acc.Codes() {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			codes = append(codes, c)
		}
	}
	for _, c := range quality.Codes() {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			codes = append(codes, c)
		}
	}
	sort.Strings(codes)
	return codes
}
