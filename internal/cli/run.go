package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/anemotech/trisonica-logger/internal/datalogger"
	"github.com/anemotech/trisonica-logger/internal/device"
	"github.com/anemotech/trisonica-logger/internal/indicator"
	"github.com/anemotech/trisonica-logger/internal/infrastructure/config"
	"github.com/anemotech/trisonica-logger/internal/infrastructure/database"
	"github.com/anemotech/trisonica-logger/internal/infrastructure/logging"
	"github.com/anemotech/trisonica-logger/internal/storage"
)

const defaultConfigPath = "configs/config.yaml"

// Flag overrides for the logging session. Flags beat environment
// variables, which beat the config file.
var (
	portOverride    string
	baudOverride    int
	dataDirOverride string
	noStats         bool
	noWait          bool
)

func init() {
	rootCmd.Flags().StringVar(&portOverride, "port", "",
		`serial port path, or "auto" for discovery`)
	rootCmd.Flags().IntVar(&baudOverride, "baud", 0, "serial baud rate")
	rootCmd.Flags().StringVar(&dataDirOverride, "data-dir", "", "output directory")
	rootCmd.Flags().BoolVar(&noStats, "no-stats", false, "disable the statistics sink")
	rootCmd.Flags().BoolVar(&noWait, "no-wait", false,
		"exit instead of waiting when no device is present")
}

// loadConfig resolves the configuration source: explicit --config flag,
// TRISONICA_CONFIG, the conventional file path if present, or built-in
// defaults when nothing on disk exists.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("TRISONICA_CONFIG")
	}
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return config.Load(defaultConfigPath)
	}
	return config.Default(), nil
}

// applyOverrides folds the command-line flags into cfg.
func applyOverrides(cfg *config.Config) {
	if portOverride != "" {
		cfg.Device.Port = portOverride
	}
	if baudOverride > 0 {
		cfg.Device.BaudRate = baudOverride
	}
	if dataDirOverride != "" {
		cfg.Storage.DataDir = dataDirOverride
	}
	if noStats {
		cfg.Statistics.Enabled = false
	}
	if noWait {
		cfg.Device.WaitForDevice = false
	}
}

// runLogger wires the full pipeline and runs it until ctx is cancelled
// or the session ends.
func runLogger(ctx context.Context) error {
	log := logging.Default()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting trisonica logger",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	dataDir, err := storage.Resolve(cfg.Storage.DataDir, cfg.Storage.FallbackDir, log)
	if err != nil {
		return err
	}

	var index *datalogger.SessionIndex
	if cfg.Storage.SessionIndex.Enabled {
		db, err := database.Open(database.Config{
			Path:        cfg.SessionIndexPath(dataDir),
			WALMode:     cfg.Storage.SessionIndex.WALMode,
			BusyTimeout: cfg.Storage.SessionIndex.BusyTimeout,
		})
		switch {
		case err != nil:
			// The index is auxiliary; losing it never stops logging.
			log.Warn("session index unavailable", "error", err)
		default:
			defer func() {
				if closeErr := db.Close(); closeErr != nil {
					log.Error("closing session index", "error", closeErr)
				}
			}()
			if err := db.Migrate(ctx); err != nil {
				log.Warn("migrating session index", "error", err)
			} else {
				index = datalogger.NewSessionIndex(db)
				log.Info("session index ready", "path", db.Path())
			}
		}
	}

	session := device.NewSession(device.Config{
		PortPath:      cfg.Device.Port,
		BaudRate:      cfg.Device.BaudRate,
		WaitForDevice: cfg.Device.WaitForDevice,
		PollInterval:  cfg.Device.PollInterval.Std(),
		ReadTimeout:   cfg.Device.ReadTimeout.Std(),
		ProbeLines:    cfg.Device.ProbeLines,
	})
	session.SetLogger(log)

	ind := indicator.NewLogIndicator(log)
	blinker := indicator.NewBlinker(ind, indicator.DefaultHeartbeatInterval)
	blinker.Start()
	defer blinker.Stop()

	engine, err := datalogger.New(session, datalogger.Config{
		DataDir:           dataDir,
		StatsEnabled:      cfg.Statistics.Enabled,
		SnapshotEvery:     cfg.Statistics.SnapshotEvery,
		WindowSize:        cfg.Statistics.WindowSize,
		HistorySize:       cfg.Statistics.HistorySize,
		StrictTemperature: cfg.Device.StrictTemperature,
		Index:             index,
		Indicator:         ind,
		Logger:            log,
	})
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	return engine.Run(ctx)
}
