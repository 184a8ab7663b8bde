package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/shehackedyou/scriptcomplete"
)

// Set at build time
var version = "dev"

var (
	logLevelFlag string
	bindingsFlag string
	noDiskCache  bool
)

var rootCmd = &cobra.Command{
	Use:           "scriptcomplete",
	Short:         "Completion hints for $variables in script macros",
	Long:          `Compute completion hints for $name and $name.member references in Velocity scripts and wiki pages embedding them, serve them over HTTP, and manage the bindings catalog cache.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error) - overrides config")
	rootCmd.PersistentFlags().StringVar(&bindingsFlag, "bindings", "", "Bindings file (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&noDiskCache, "no-disk-cache", false, "Do not use the on-disk bindings catalog cache")

	rootCmd.AddCommand(hintsCmd, bindingsCmd, serveCmd, catalogCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// newLogger builds the stderr logger for the chosen level, falling back to info.
func newLogger(level string) *slog.Logger {
	logLevel, err := scriptcomplete.ParseLogLevel(level)
	if err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}

// newCompleter loads the configuration, applies the command-line overrides,
// and returns a ready Completer. Configuration warnings are logged, not fatal.
func newCompleter() (*scriptcomplete.Completer, *slog.Logger, error) {
	// Warn keeps the initial config load quiet unless something is wrong.
	tempLogger := newLogger("warn")
	cfg, cfgErr := scriptcomplete.LoadConfig(tempLogger)
	if cfgErr != nil && !errors.Is(cfgErr, scriptcomplete.ErrConfig) {
		return nil, nil, cfgErr
	}

	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	logger := newLogger(level)
	if cfgErr != nil {
		logger.Warn("Loaded configuration with warnings", "error", cfgErr)
	}

	if bindingsFlag != "" {
		cfg.BindingsFile = bindingsFlag
	}
	if noDiskCache {
		cfg.UseDiskCache = false
	}

	completer, err := scriptcomplete.NewCompleterWithConfig(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing completer: %w", err)
	}
	return completer, logger, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		pterm.Printf("scriptcomplete %s\n", version)
	},
}
