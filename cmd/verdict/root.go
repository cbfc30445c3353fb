package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"verdict/internal/config"
	"verdict/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string
}

var rootCmd = &cobra.Command{
	Use:   "verdict",
	Short: "Test failure classification and flaky analysis",
	Long: "Verdict reconciles test execution records with HTML run artifacts,\n" +
		"refines AI failure classifications with deterministic rules, and\n" +
		"reports flaky tests and trend direction over a window of recent runs.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "Path to YAML config file")
	pf.StringVar(&rootFlags.dbPath, "db", "", "Path to the SQLite execution datastore")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "Log format (text, json)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(flakyCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.Version = version
}

// loadConfig merges the config file with the root flag overrides, validates
// the result and initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return nil, err
	}
	if rootFlags.dbPath != "" {
		cfg.DBPath = rootFlags.dbPath
	}
	if rootFlags.logLevel != "" {
		cfg.LogLevel = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		cfg.LogFormat = rootFlags.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logging.Init(level, cfg.LogFormat, os.Stderr)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
