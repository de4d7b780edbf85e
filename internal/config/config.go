// Package config loads textgrab configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (TEXTGRAB_*)
//  2. Config file
//  3. Built-in defaults
//
// Config file search order:
//  1. .textgrab.yaml in current directory
//  2. ~/.config/textgrab/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all textgrab configuration.
type Config struct {
	// IPC settings
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`

	// Capture settings
	Channels     []string `yaml:"channels"`      // Subset of socket, accessibility, system_event, instrumentation. Empty means all.
	AgentPath    string   `yaml:"agent_path"`    // Engine-specific instrumentation agent executable
	HelperPaths  []string `yaml:"helper_paths"`  // Extra candidate locations for the 32-bit helper, tried before the built-in ones
	MaxChars     int      `yaml:"max_chars"`     // Emitted text is truncated to this many runes
	PollInterval string   `yaml:"poll_interval"` // Accessibility poll cadence, Go duration string
	Debounce     string   `yaml:"debounce"`      // Identical-text suppression window
	FlushAfter   string   `yaml:"flush_after"`   // Typewriter silence before a sentence is considered complete
	StartupGrace string   `yaml:"startup_grace"` // Ignore captures for this long after session start

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs, e.g. "Authorization=Basic abc123"

	// Parsed durations (not from YAML, set after loading)
	PollIntervalDuration time.Duration `yaml:"-"`
	DebounceDuration     time.Duration `yaml:"-"`
	FlushAfterDuration   time.Duration `yaml:"-"`
	StartupGraceDuration time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Host:         "127.0.0.1",
		Port:         37123,
		MaxChars:     200,
		PollInterval: "200ms",
		Debounce:     "120ms",
		FlushAfter:   "300ms",
		StartupGrace: "1s",
	}
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values.
func Load() (*Config, error) {
	cfg := Defaults()

	// Try to load config file
	if path, data, err := findConfigFile(); err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	// Environment variables override everything
	mergeEnv(cfg)

	// Parse durations
	var err error
	cfg.PollIntervalDuration, err = parseDurationOrDisable(cfg.PollInterval, 200*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid poll interval %q: %w", cfg.PollInterval, err)
	}
	cfg.DebounceDuration, err = parseDurationOrDisable(cfg.Debounce, 120*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid debounce window %q: %w", cfg.Debounce, err)
	}
	cfg.FlushAfterDuration, err = parseDurationOrDisable(cfg.FlushAfter, 300*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid flush interval %q: %w", cfg.FlushAfter, err)
	}
	cfg.StartupGraceDuration, err = parseDurationOrDisable(cfg.StartupGrace, time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid startup grace %q: %w", cfg.StartupGrace, err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file and returns its path and contents.
func findConfigFile() (string, []byte, error) {
	// 1. Current directory
	if data, err := os.ReadFile(".textgrab.yaml"); err == nil {
		return ".textgrab.yaml", data, nil
	}

	// 2. XDG config dir / ~/.config
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "textgrab", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("no config file found")
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.Host != "" {
		cfg.Host = file.Host
	}
	if file.Port > 0 {
		cfg.Port = file.Port
	}
	if len(file.Channels) > 0 {
		cfg.Channels = file.Channels
	}
	if file.AgentPath != "" {
		cfg.AgentPath = file.AgentPath
	}
	if len(file.HelperPaths) > 0 {
		cfg.HelperPaths = file.HelperPaths
	}
	if file.MaxChars > 0 {
		cfg.MaxChars = file.MaxChars
	}
	if file.PollInterval != "" {
		cfg.PollInterval = file.PollInterval
	}
	if file.Debounce != "" {
		cfg.Debounce = file.Debounce
	}
	if file.FlushAfter != "" {
		cfg.FlushAfter = file.FlushAfter
	}
	if file.StartupGrace != "" {
		cfg.StartupGrace = file.StartupGrace
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) {
	if v := os.Getenv("TEXTGRAB_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("TEXTGRAB_PORT"); v != "" {
		if p, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.Port = uint16(p)
		}
	}
	if v := os.Getenv("TEXTGRAB_AGENT_PATH"); v != "" {
		cfg.AgentPath = v
	}
	if v := os.Getenv("TEXTGRAB_MAX_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxChars = n
		}
	}
	if v := os.Getenv("TEXTGRAB_POLL_INTERVAL"); v != "" {
		cfg.PollInterval = v
	}
	if v := os.Getenv("TEXTGRAB_DEBOUNCE"); v != "" {
		cfg.Debounce = v
	}
	if v := os.Getenv("TEXTGRAB_FLUSH_AFTER"); v != "" {
		cfg.FlushAfter = v
	}
	if v := os.Getenv("TEXTGRAB_STARTUP_GRACE"); v != "" {
		cfg.StartupGrace = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}
}

// parseDurationOrDisable parses a duration string. "0", "off", "disable" return 0.
// Empty string returns the fallback value.
func parseDurationOrDisable(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "0" || s == "off" || s == "disable" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
