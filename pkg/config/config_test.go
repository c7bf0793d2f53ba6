package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Profile != "default" {
		t.Errorf("Expected Profile=default, got %s", cfg.Profile)
	}
	if filepath.Base(cfg.Store.Path) != "fuzzyfinder.db" {
		t.Errorf("Expected store file named fuzzyfinder.db, got %s", cfg.Store.Path)
	}

	// Test ingest defaults, spec.md §6
	if cfg.Ingest.BatchSize != 10_000 {
		t.Errorf("Expected BatchSize=10000, got %d", cfg.Ingest.BatchSize)
	}
	if !cfg.Ingest.WriteCountersNow {
		t.Error("Expected WriteCountersNow=true")
	}
	if cfg.Ingest.Workers != 0 {
		t.Errorf("Expected Workers=0, got %d", cfg.Ingest.Workers)
	}

	// Test search defaults, spec.md §4.D
	if cfg.Search.ReturnRecordsLimit != 50 {
		t.Errorf("Expected ReturnRecordsLimit=50, got %d", cfg.Search.ReturnRecordsLimit)
	}
	if cfg.Search.SearchIntensity != 500 {
		t.Errorf("Expected SearchIntensity=500, got %d", cfg.Search.SearchIntensity)
	}
	if cfg.Search.IndividualSearchLimit != 50 {
		t.Errorf("Expected IndividualSearchLimit=50, got %d", cfg.Search.IndividualSearchLimit)
	}
	if !math.IsInf(cfg.Search.BestScoreThreshold, 1) {
		t.Errorf("Expected BestScoreThreshold=+Inf, got %v", cfg.Search.BestScoreThreshold)
	}

	// Test REST API defaults
	if !cfg.RestAPI.Enabled {
		t.Error("Expected RestAPI.Enabled=true")
	}
	if !cfg.RestAPI.AutoPort {
		t.Error("Expected RestAPI.AutoPort=true")
	}
	if cfg.RestAPI.Port != 3702 {
		t.Errorf("Expected Port=3702, got %d", cfg.RestAPI.Port)
	}
	if cfg.RestAPI.Host != "localhost" {
		t.Errorf("Expected Host=localhost, got %s", cfg.RestAPI.Host)
	}
	if !cfg.RestAPI.CORS {
		t.Error("Expected CORS=true")
	}

	// Test logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected Level=info, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Expected Format=console, got %s", cfg.Logging.Format)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		expectErr bool
	}{
		{
			name:      "valid config",
			modify:    func(c *Config) {},
			expectErr: false,
		},
		{
			name: "empty store path",
			modify: func(c *Config) {
				c.Store.Path = ""
			},
			expectErr: true,
		},
		{
			name: "non-positive batch size",
			modify: func(c *Config) {
				c.Ingest.BatchSize = 0
			},
			expectErr: true,
		},
		{
			name: "negative search intensity",
			modify: func(c *Config) {
				c.Search.SearchIntensity = -1
			},
			expectErr: true,
		},
		{
			name: "zero return records limit",
			modify: func(c *Config) {
				c.Search.ReturnRecordsLimit = 0
			},
			expectErr: true,
		},
		{
			name: "invalid port",
			modify: func(c *Config) {
				c.RestAPI.Port = 99999
			},
			expectErr: true,
		},
		{
			name: "empty host when REST API enabled",
			modify: func(c *Config) {
				c.RestAPI.Enabled = true
				c.RestAPI.Host = ""
			},
			expectErr: true,
		},
		{
			name: "invalid logging level",
			modify: func(c *Config) {
				c.Logging.Level = "invalid"
			},
			expectErr: true,
		},
		{
			name: "invalid logging format",
			modify: func(c *Config) {
				c.Logging.Format = "xml"
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd) //nolint:errcheck
	_ = os.Chdir(tmpDir)

	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", oldHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error with missing config, got: %v", err)
	}

	if cfg == nil {
		t.Fatal("Expected config, got nil")
	}

	if cfg.RestAPI.Port != 3702 {
		t.Errorf("Expected default port 3702, got %d", cfg.RestAPI.Port)
	}
	if !math.IsInf(cfg.Search.BestScoreThreshold, 1) {
		t.Errorf("Expected default best_score_threshold=+Inf, got %v", cfg.Search.BestScoreThreshold)
	}
}

func TestLoadConfig_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
profile: test
store:
  path: /tmp/test-fuzzyfinder.db
ingest:
  batch_size: 500
  write_counters_now: false
rest_api:
  enabled: true
  port: 4000
  host: 127.0.0.1
  cors: false
logging:
  level: debug
  format: json
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd) //nolint:errcheck
	_ = os.Chdir(tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Profile != "test" {
		t.Errorf("Expected profile=test, got %s", cfg.Profile)
	}
	if cfg.Store.Path != "/tmp/test-fuzzyfinder.db" {
		t.Errorf("Expected store path=/tmp/test-fuzzyfinder.db, got %s", cfg.Store.Path)
	}
	if cfg.Ingest.BatchSize != 500 {
		t.Errorf("Expected batch_size=500, got %d", cfg.Ingest.BatchSize)
	}
	if cfg.Ingest.WriteCountersNow {
		t.Error("Expected write_counters_now=false, got true")
	}
	if cfg.RestAPI.Port != 4000 {
		t.Errorf("Expected port=4000, got %d", cfg.RestAPI.Port)
	}
	if cfg.RestAPI.CORS {
		t.Error("Expected CORS=false, got true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected level=debug, got %s", cfg.Logging.Level)
	}
	// best_score_threshold absent from file, so it should fall back to +Inf.
	if !math.IsInf(cfg.Search.BestScoreThreshold, 1) {
		t.Errorf("Expected best_score_threshold=+Inf when unset, got %v", cfg.Search.BestScoreThreshold)
	}
}

func TestEnsureStoreDir(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &Config{
		Store: StoreConfig{
			Path: filepath.Join(tmpDir, "subdir", "fuzzyfinder.db"),
		},
	}

	if err := cfg.EnsureStoreDir(); err != nil {
		t.Fatalf("EnsureStoreDir failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "subdir")); os.IsNotExist(err) {
		t.Error("Store directory was not created")
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if path == "" {
		t.Error("ConfigPath returned empty string")
	}

	homeDir, _ := os.UserHomeDir()
	expected := filepath.Join(homeDir, ".fuzzyfinder")
	if path != expected {
		t.Errorf("Expected %s, got %s", expected, path)
	}
}
