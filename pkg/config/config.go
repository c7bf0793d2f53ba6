package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Profile string        `mapstructure:"profile"`
	Store   StoreConfig   `mapstructure:"store"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Search  SearchConfig  `mapstructure:"search"`
	RestAPI RestAPIConfig `mapstructure:"rest_api"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StoreConfig holds the embedded index-store configuration.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// IngestConfig holds batched-ingest configuration, spec.md §6.
type IngestConfig struct {
	UniqueIDCol      string `mapstructure:"unique_id_col"`
	BatchSize        int    `mapstructure:"batch_size"`
	WriteCountersNow bool   `mapstructure:"write_counters_now"`
	Workers          int    `mapstructure:"workers"`
}

// SearchConfig holds Finder configuration, spec.md §4.D.
type SearchConfig struct {
	ReturnRecordsLimit    int     `mapstructure:"return_records_limit"`
	SearchIntensity       int     `mapstructure:"search_intensity"`
	IndividualSearchLimit int     `mapstructure:"individual_search_limit"`
	BestScoreThreshold    float64 `mapstructure:"best_score_threshold"`
}

// RestAPIConfig holds REST API server configuration.
type RestAPIConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	AutoPort bool   `mapstructure:"auto_port"`
	Port     int    `mapstructure:"port"`
	Host     string `mapstructure:"host"`
	CORS     bool   `mapstructure:"cors"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// DefaultConfig returns configuration with default values matching spec.md §6.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".fuzzyfinder")

	return &Config{
		Profile: "default",
		Store: StoreConfig{
			Path: filepath.Join(configDir, "fuzzyfinder.db"),
		},
		Ingest: IngestConfig{
			UniqueIDCol:      "unique_id",
			BatchSize:        10_000,
			WriteCountersNow: true,
			Workers:          0, // not read by the store; its ingest pool uses runtime.NumCPU()
		},
		Search: SearchConfig{
			ReturnRecordsLimit:    50,
			SearchIntensity:       500,
			IndividualSearchLimit: 50,
			BestScoreThreshold:    math.Inf(1),
		},
		RestAPI: RestAPIConfig{
			Enabled:  true,
			AutoPort: true,
			Port:     3702,
			Host:     "localhost",
			CORS:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from YAML file with fallback to defaults.
// Searches in multiple locations:
// 1. ./config.yaml (current directory)
// 2. ~/.fuzzyfinder/config.yaml (user home)
// 3. /etc/fuzzyfinder/config.yaml (system-wide)
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom behaves like Load, but reads explicitly from path when path is
// non-empty instead of searching the default locations.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".fuzzyfinder"))
		v.AddConfigPath("/etc/fuzzyfinder")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && path == "" {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// A best_score_threshold of 0 or less (0 being the YAML-safe stand-in
	// for "unset") means no threshold, the same +Inf DefaultConfig uses.
	if config.Search.BestScoreThreshold <= 0 {
		config.Search.BestScoreThreshold = math.Inf(1)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("profile", d.Profile)
	v.SetDefault("store.path", d.Store.Path)

	v.SetDefault("ingest.unique_id_col", d.Ingest.UniqueIDCol)
	v.SetDefault("ingest.batch_size", d.Ingest.BatchSize)
	v.SetDefault("ingest.write_counters_now", d.Ingest.WriteCountersNow)
	v.SetDefault("ingest.workers", d.Ingest.Workers)

	v.SetDefault("search.return_records_limit", d.Search.ReturnRecordsLimit)
	v.SetDefault("search.search_intensity", d.Search.SearchIntensity)
	v.SetDefault("search.individual_search_limit", d.Search.IndividualSearchLimit)
	// Infinity does not round-trip through YAML/viper cleanly; 0 here means "no threshold".
	v.SetDefault("search.best_score_threshold", 0.0)

	v.SetDefault("rest_api.enabled", d.RestAPI.Enabled)
	v.SetDefault("rest_api.auto_port", d.RestAPI.AutoPort)
	v.SetDefault("rest_api.port", d.RestAPI.Port)
	v.SetDefault("rest_api.host", d.RestAPI.Host)
	v.SetDefault("rest_api.cors", d.RestAPI.CORS)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("ingest.batch_size must be >= 1")
	}
	if c.Search.ReturnRecordsLimit < 1 {
		return fmt.Errorf("search.return_records_limit must be >= 1")
	}
	if c.Search.SearchIntensity < 0 {
		return fmt.Errorf("search.search_intensity must be >= 0")
	}

	if c.RestAPI.Enabled {
		if c.RestAPI.Port < 1 || c.RestAPI.Port > 65535 {
			return fmt.Errorf("rest_api.port must be between 1 and 65535")
		}
		if c.RestAPI.Host == "" {
			return fmt.Errorf("rest_api.host is required when REST API is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	return nil
}

// EnsureStoreDir creates the directory that will hold the store file.
func (c *Config) EnsureStoreDir() error {
	dir := filepath.Dir(c.Store.Path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	return nil
}

// ConfigPath returns the path to the configuration directory.
func ConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".fuzzyfinder")
}
