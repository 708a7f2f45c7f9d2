package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirPermissions = 0750

	// probeFile is written and removed to verify a directory accepts
	// writes. Mount points for removable media can exist read-only, so
	// a plain stat is not enough.
	probeFile = "write_test.tmp"

	fallbackDirName = "trisonica_data"
)

// ErrNoWritableDir indicates neither the preferred nor the fallback
// directory accepted a write probe.
var ErrNoWritableDir = errors.New("storage: no writable data directory")

// Logger receives storage resolution events. The logging package's
// Logger satisfies this interface.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Resolve returns the first writable data directory, trying preferred
// then fallback. An empty fallback defaults to ~/trisonica_data.
//
// Each candidate is created if missing and probed with a throwaway
// file, so a read-only mount is skipped rather than discovered on the
// first real write.
//
// Parameters:
//   - preferred: Primary data directory, typically a removable card mount
//   - fallback: Secondary directory; "" selects ~/trisonica_data
//   - logger: Optional logger for resolution events (may be nil)
//
// Returns:
//   - string: The resolved, writable directory
//   - error: ErrNoWritableDir if no candidate accepts writes
func Resolve(preferred, fallback string, logger Logger) (string, error) {
	if fallback == "" {
		var err error
		fallback, err = DefaultFallbackDir()
		if err != nil {
			return "", err
		}
	}

	for _, dir := range []string{preferred, fallback} {
		if dir == "" {
			continue
		}
		if err := EnsureWritable(dir); err != nil {
			if logger != nil {
				logger.Warn("data directory not writable", "dir", dir, "error", err)
			}
			continue
		}
		if logger != nil {
			logger.Info("using data directory", "dir", dir)
		}
		return dir, nil
	}

	return "", fmt.Errorf("%w: tried %q and %q", ErrNoWritableDir, preferred, fallback)
}

// DefaultFallbackDir returns the fallback directory used when none is
// configured: trisonica_data under the user's home.
func DefaultFallbackDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("storage: resolving home directory: %w", err)
	}
	return filepath.Join(home, fallbackDirName), nil
}

// EnsureWritable creates dir if needed and verifies it accepts writes
// by creating and removing a probe file.
func EnsureWritable(dir string) error {
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	probe := filepath.Join(dir, probeFile)
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("write probe: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(probe)
		return fmt.Errorf("closing probe: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("removing probe: %w", err)
	}

	return nil
}
