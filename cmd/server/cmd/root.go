package cmd

import (
	"fmt"
	"os"

	"github.com/Wideyedwonderer/buscuit-maker/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// configPath to the optional YAML file; env and defaults apply without it.
	configPath string
	// logLevel overrides log.level when set.
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "biscuit-maker",
		Short: "Run the biscuit machine controller.",
		Long: `Runs the biscuit machine controller: oven, motor and conveyor simulation
with a websocket feed, a REST and gRPC control surface and optional MQTT,
InfluxDB and journal sinks. Stops gracefully on SIGINT or SIGTERM.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServer,
	}
)

// Execute runs the CLI and exits with non-zero status on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

//nolint:gochecknoinits // cobra wiring
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(configCmd, tokenCmd, commandCmd, statusCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
