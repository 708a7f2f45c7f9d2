package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// Build metadata, injected by SetBuildInfo from main's ldflags vars.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// cfgFile is the --config flag value; empty means the default lookup
// order (TRISONICA_CONFIG, then configs/config.yaml, then built-in
// defaults).
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "trisonica-logger",
	Short: "Serial data logger for Trisonica ultrasonic anemometers",
	Long: `Acquires, validates, and persists data from a Trisonica ultrasonic
anemometer over a serial link. Running with no subcommand starts a
logging session: the device is discovered (or opened explicitly),
every data line lands in a timestamped CSV, and rolling per-parameter
statistics go to a companion file.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLogger(cmd.Context())
	},
}

// SetBuildInfo records version metadata for logging and --version.
func SetBuildInfo(v, c, d string) {
	version, commit, date = v, c, d
	rootCmd.Version = v
}

// Execute runs the CLI under ctx. Cancellation of ctx shuts a running
// session down cleanly.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default configs/config.yaml)")
}
