// Package cmd implements the CLI commands for retroscale.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/retroscale/retroscale/internal/config"
	"github.com/retroscale/retroscale/internal/observability"
	"github.com/retroscale/retroscale/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "retroscale",
	Short:   "Batch enhancement for standard-definition video",
	Version: version.Short(),
	Long: `retroscale restores standard-definition video captures (VHS rips, DVB
recordings, DVD extracts) into clean modern encodes. It deinterlaces,
denoises, deflickers, and sharpens each frame, then streams the result
into ffmpeg for HEVC/AV1/H.264 encoding.

Single files are enhanced with 'enhance', whole directories with 'batch',
and a drop directory can be watched continuously with 'watch' or through
the HTTP API with 'serve'.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// loadConfig reads configuration and installs the default logger. The CLI
// flags override config and environment values only when explicitly set, so
// the priority stays: flag > env var > config file > default.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("log-level") {
		level, _ := cmd.Flags().GetString("log-level")
		cfg.Logging.Level = strings.ToLower(level)
	}
	if cmd.Flags().Changed("log-format") {
		format, _ := cmd.Flags().GetString("log-format")
		cfg.Logging.Format = strings.ToLower(format)
	}
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)
	return cfg, nil
}
