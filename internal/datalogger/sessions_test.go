package datalogger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/anemotech/trisonica-logger/internal/infrastructure/database"
)

func openTestIndex(t *testing.T) *SessionIndex {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "sessions.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	return NewSessionIndex(db)
}

func TestSessionIndexRoundTrip(t *testing.T) {
	index := openTestIndex(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	id, err := index.Start(ctx, started, "/data/TrisonicaData_x.csv", "/data/TrisonicaStats_x.csv")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ended := started.Add(2 * time.Hour)
	if err := index.Finish(ctx, id, ended, "/dev/ttyUSB0", 7200, 3, 1); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	sessions, err := index.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Recent() returned %d sessions, want 1", len(sessions))
	}

	got := sessions[0]
	if got.ID != id {
		t.Errorf("ID = %d, want %d", got.ID, id)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if !got.EndedAt.Equal(ended) {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, ended)
	}
	if got.Port != "/dev/ttyUSB0" {
		t.Errorf("Port = %q", got.Port)
	}
	if got.Points != 7200 || got.Errors != 3 || got.Reconnects != 1 {
		t.Errorf("counters = {%d %d %d}, want {7200 3 1}", got.Points, got.Errors, got.Reconnects)
	}
}

func TestSessionIndexUnfinishedSession(t *testing.T) {
	index := openTestIndex(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Second)
	if _, err := index.Start(ctx, started, "/data/a.csv", "/data/b.csv"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sessions, err := index.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Recent() returned %d sessions, want 1", len(sessions))
	}
	if !sessions[0].EndedAt.IsZero() {
		t.Errorf("EndedAt = %v, want zero for unfinished session", sessions[0].EndedAt)
	}
	if sessions[0].Port != "" {
		t.Errorf("Port = %q, want empty", sessions[0].Port)
	}
}

func TestSessionIndexRecentOrder(t *testing.T) {
	index := openTestIndex(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := index.Start(ctx, base.Add(time.Duration(i)*time.Hour), "/data/a.csv", ""); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	}

	sessions, err := index.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Recent(2) returned %d sessions", len(sessions))
	}
	if !sessions[0].StartedAt.After(sessions[1].StartedAt) {
		t.Errorf("sessions not newest-first: %v, %v", sessions[0].StartedAt, sessions[1].StartedAt)
	}
}
