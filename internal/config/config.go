package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML accepts both the natural string form
// ("30s", "1h") and raw nanosecond integers.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds all application configuration.
type Config struct {
	DataSource struct {
		Provider string   `yaml:"provider"` // "yahoo" or "alphavantage"
		APIKey   string   `yaml:"api_key"`
		Symbols  []string `yaml:"symbols"`
	} `yaml:"data_source"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
		MetaFile   string `yaml:"meta_file"`
	} `yaml:"database"`
	Download struct {
		Concurrency  int      `yaml:"concurrency"`
		FetchTimeout Duration `yaml:"fetch_timeout"`
		StaleAfter   Duration `yaml:"stale_after"`
	} `yaml:"download"`
	Schedule struct {
		RefreshCron string `yaml:"refresh_cron"`
	} `yaml:"schedule"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("MARKETVAULT_PROVIDER"); v != "" {
		cfg.DataSource.Provider = v
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.DataSource.APIKey = v
	}
	if v := os.Getenv("MARKETVAULT_SYMBOLS"); v != "" {
		cfg.DataSource.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("META_FILE"); v != "" {
		cfg.Database.MetaFile = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("FETCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Download.Concurrency = n
		}
	}
	if v := os.Getenv("REFRESH_CRON"); v != "" {
		cfg.Schedule.RefreshCron = v
	}

	// Defaults
	if cfg.DataSource.Provider == "" {
		cfg.DataSource.Provider = "yahoo"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/marketvault.db"
	}
	if cfg.Database.MetaFile == "" {
		cfg.Database.MetaFile = "data/series_meta.json"
	}
	if cfg.Download.Concurrency == 0 {
		cfg.Download.Concurrency = 5
	}
	if cfg.Download.FetchTimeout == 0 {
		cfg.Download.FetchTimeout = Duration(30 * time.Second)
	}
	if cfg.Download.StaleAfter == 0 {
		cfg.Download.StaleAfter = Duration(time.Hour)
	}
	if cfg.Schedule.RefreshCron == "" {
		cfg.Schedule.RefreshCron = "0 */15 * * * *"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.DataSource.Provider != "yahoo" && c.DataSource.Provider != "alphavantage" {
		return fmt.Errorf("data_source.provider must be yahoo or alphavantage, got %q", c.DataSource.Provider)
	}
	if c.DataSource.Provider == "alphavantage" && c.DataSource.APIKey == "" {
		return fmt.Errorf("data_source.api_key is required for alphavantage")
	}
	if c.Download.Concurrency < 1 {
		return fmt.Errorf("download.concurrency must be at least 1")
	}
	return nil
}
