package datalogger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anemotech/trisonica-logger/internal/infrastructure/database"
)

// indexTimeFormat is how session timestamps are stored in SQLite.
// sqlite has no native time type; RFC 3339 text sorts correctly.
const indexTimeFormat = time.RFC3339

// SessionRecord is one row of the session index.
type SessionRecord struct {
	ID         int64
	StartedAt  time.Time
	EndedAt    time.Time // zero until Finish
	Port       string
	DataFile   string
	StatsFile  string
	Points     uint64
	Errors     uint64
	Reconnects uint64
}

// SessionIndex records one row per logging session in a local SQLite
// database, so a card pulled from a long-running deployment carries its
// own catalogue of which files cover which time ranges.
//
// The index is auxiliary: callers log its errors and keep running.
type SessionIndex struct {
	db *database.DB
}

// NewSessionIndex wraps an open, migrated database handle.
func NewSessionIndex(db *database.DB) *SessionIndex {
	return &SessionIndex{db: db}
}

// Start inserts a session row at startup and returns its id for the
// matching Finish call.
func (s *SessionIndex) Start(ctx context.Context, startedAt time.Time, dataFile, statsFile string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (started_at, data_file, stats_file) VALUES (?, ?, ?)`,
		startedAt.Format(indexTimeFormat), dataFile, statsFile,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting session id: %w", err)
	}
	return id, nil
}

// Finish completes a session row with its end time and final counters.
func (s *SessionIndex) Finish(ctx context.Context, id int64, endedAt time.Time, port string, points, errCount, reconnects uint64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		 SET ended_at = ?, port = ?, points = ?, errors = ?, reconnects = ?
		 WHERE id = ?`,
		endedAt.Format(indexTimeFormat), port, points, errCount, reconnects, id,
	)
	if err != nil {
		return fmt.Errorf("finishing session %d: %w", id, err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (s *SessionIndex) Recent(ctx context.Context, limit int) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, ended_at, port, data_file, stats_file, points, errors, reconnects
		 FROM sessions
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var (
			rec         SessionRecord
			started     string
			ended, port sql.NullString
			statsFile   sql.NullString
		)
		if err := rows.Scan(&rec.ID, &started, &ended, &port, &rec.DataFile, &statsFile,
			&rec.Points, &rec.Errors, &rec.Reconnects); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}

		rec.StartedAt, err = time.Parse(indexTimeFormat, started)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at %q: %w", started, err)
		}
		if ended.Valid && ended.String != "" {
			rec.EndedAt, err = time.Parse(indexTimeFormat, ended.String)
			if err != nil {
				return nil, fmt.Errorf("parsing ended_at %q: %w", ended.String, err)
			}
		}
		rec.Port = port.String
		rec.StatsFile = statsFile.String

		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}

	return sessions, nil
}
