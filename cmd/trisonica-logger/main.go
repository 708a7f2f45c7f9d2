// Trisonica Logger - serial data logger for ultrasonic anemometers.
//
// Acquires data lines from a Trisonica sensor over a serial link and
// persists them, with rolling statistics and health tracking, to CSV
// files on local or removable storage. Designed for unattended field
// deployment on small Linux boards.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anemotech/trisonica-logger/internal/cli"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancel on Ctrl+C or SIGTERM so a running session shuts down
	// cleanly: final statistics flush, device release, file close.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli.SetBuildInfo(version, commit, date)

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
