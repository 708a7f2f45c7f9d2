package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/anemotech/trisonica-logger/internal/datalogger"
	"github.com/anemotech/trisonica-logger/internal/infrastructure/config"
	"github.com/anemotech/trisonica-logger/internal/infrastructure/database"
	"github.com/anemotech/trisonica-logger/internal/storage"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent logging sessions from the session index",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listSessions(cmd.Context())
	},
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to list")
	rootCmd.AddCommand(sessionsCmd)
}

// listSessions prints the session index, newest first.
func listSessions(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyOverrides(cfg)

	path, err := findSessionIndex(cfg)
	if err != nil {
		return err
	}

	db, err := database.Open(database.Config{
		Path:        path,
		WALMode:     cfg.Storage.SessionIndex.WALMode,
		BusyTimeout: cfg.Storage.SessionIndex.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening session index: %w", err)
	}
	defer db.Close()

	sessions, err := datalogger.NewSessionIndex(db).Recent(ctx, sessionsLimit)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tENDED\tPORT\tPOINTS\tERRORS\tRECONNECTS\tDATA FILE")
	for _, s := range sessions {
		ended := "-"
		if !s.EndedAt.IsZero() {
			ended = s.EndedAt.Format(time.RFC3339)
		}
		port := s.Port
		if port == "" {
			port = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			s.ID, s.StartedAt.Format(time.RFC3339), ended, port,
			s.Points, s.Errors, s.Reconnects, s.DataFile)
	}
	return w.Flush()
}

// findSessionIndex locates the index file: the configured location
// first, then the fallback data directory a past run may have used.
func findSessionIndex(cfg *config.Config) (string, error) {
	primary := cfg.SessionIndexPath(cfg.Storage.DataDir)
	if _, err := os.Stat(primary); err == nil {
		return primary, nil
	}

	fallbackDir := cfg.Storage.FallbackDir
	if fallbackDir == "" {
		var err error
		fallbackDir, err = storage.DefaultFallbackDir()
		if err != nil {
			return "", fmt.Errorf("no session index found at %s", primary)
		}
	}
	alt := cfg.SessionIndexPath(fallbackDir)
	if _, err := os.Stat(alt); err == nil {
		return alt, nil
	}

	return "", fmt.Errorf("no session index found at %s", primary)
}
