// Command fuzzyfinder is the CLI front end for the index store, the
// candidate finder and the probabilistic scorer: ingest records into a
// store, search it, inspect its stats, or serve it over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/moj-analytical-services/fuzzyfinder-go/internal/logging"
	"github.com/moj-analytical-services/fuzzyfinder-go/pkg/config"
)

// Version is set during build.
var Version = "0.1.0"

var (
	cfgFile   string
	dbPath    string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "fuzzyfinder",
	Short: "Probabilistic fuzzy record matching over an embedded full-text index",
	Long: `fuzzyfinder ingests tabular records into an embedded SQLite index,
then finds and scores fuzzy candidate matches for a query record using
full-text search seeded by corpus rarity, with phonetic and misspelling
tolerance.

Examples:
  fuzzyfinder ingest people.ndjson --id-col person_id
  fuzzyfinder search query.json --limit 20
  fuzzyfinder stats
  fuzzyfinder serve --port 3702`,
	Version: Version,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "store path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console, json (overrides config)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig loads configuration, applies command-line overrides, and
// initialises logging from the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: "stderr"})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	Execute()
}
