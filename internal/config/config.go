// Package config loads tally's YAML configuration file and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sadopc/tally/internal/period"
	"github.com/sadopc/tally/internal/store"
)

const (
	AppDir   = "tally"
	FileName = "config.yaml"
	DBName   = "tally.db"

	EnvDataDir  = "TALLY_DATA_DIR"
	EnvLogLevel = "TALLY_LOG_LEVEL"
	EnvConfig   = "TALLY_CONFIG"
)

type Config struct {
	DataDir    string           `yaml:"data_dir"`
	DeviceID   string           `yaml:"device_id"`
	WeekStart  string           `yaml:"week_start,omitempty"`
	LogLevel   string           `yaml:"log_level"`
	Categories []store.Category `yaml:"categories,omitempty"`

	path string
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		DataDir:  DefaultDataDir(),
		LogLevel: "warn",
	}
}

// DefaultDataDir returns $XDG_CONFIG_HOME/tally, or ~/.config/tally.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			home = "."
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, AppDir)
}

// DefaultPath returns the config file location, honoring TALLY_CONFIG.
func DefaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(DefaultDataDir(), FileName)
}

// Load reads the config at path. A missing file yields the defaults. A
// device id is generated and written back the first time one is needed.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
		if err := cfg.Save(); err != nil {
			// The id still works for this run; it will be regenerated next time.
			slog.Warn("could not persist device id", "path", path, "error", err)
		}
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
}

// Validate checks the fields that have a closed set of values.
func (c *Config) Validate() error {
	if c.WeekStart != "" {
		if _, err := period.ParseWeekday(c.WeekStart); err != nil {
			return fmt.Errorf("config week_start: %w", err)
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config log_level: %w", err)
	}
	seen := map[string]bool{}
	for _, cat := range c.Categories {
		if cat.ID == "" || seen[cat.ID] {
			return fmt.Errorf("config categories: missing or duplicate id %q", cat.ID)
		}
		seen[cat.ID] = true
	}
	return nil
}

// Save writes the config back to the path it was loaded from.
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("save config: no path")
	}
	return c.SaveTo(c.path)
}

func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	c.path = path
	return nil
}

func (c *Config) Path() string { return c.path }

// DBPath returns the SQLite database location inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DBName)
}

// Weekday returns the configured week start, and false when unset.
func (c *Config) Weekday() (period.Weekday, bool) {
	w, err := period.ParseWeekday(c.WeekStart)
	return w, err == nil
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() slog.Level {
	l, _ := ParseLevel(c.LogLevel)
	return l
}

// ParseLevel accepts debug, info, warn, and error. Empty means warn.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelWarn, fmt.Errorf("unknown log level %q", s)
}
