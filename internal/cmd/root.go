// Package cmd implements the proverd command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/powdr-labs/proverd/internal/config"
	"github.com/powdr-labs/proverd/internal/observability"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo is called from main with values injected at build time.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var logLevelFlag string

var rootCmd = &cobra.Command{
	Use:   "proverd",
	Short: "Operational harness for the block proving pipeline",
	Long: `proverd runs the operational side of the proving pipeline: a job control
service that spawns and tracks prove script runs, a block interval poller that
proves one block per interval and reports to the attestation API, and offline
analyzers for proving-time and precompile data.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Optional .env for local runs; a missing file is not an error.
		_ = godotenv.Load()

		overrides := map[string]any{}
		if logLevelFlag != "" {
			overrides["logging.level"] = logLevelFlag
		}
		cfg, err := config.Load(cmd.Context(), overrides)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return observability.InitLogging(cfg.Logging.Level, cfg.Logging.Profile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("proverd %s (commit %s, built %s)\n",
			versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	},
}

// Execute runs the root command.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
