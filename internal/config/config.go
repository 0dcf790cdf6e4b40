// Package config resolves the gateway's runtime configuration in order
// of precedence: CLI flags, environment variables, an optional YAML
// file, built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/warren/internal/lock"
)

// Config holds every setting the gateway needs to start.
type Config struct {
	Bind        string
	Port        int
	DataDir     string
	LogLevel    string
	LogJSON     bool
	LockTTL     time.Duration
	LockTimeout time.Duration
	MetricsAddr string
}

// Defaults returns the built-in configuration defaults.
func Defaults() Config {
	return Config{
		Bind:        "0.0.0.0",
		Port:        6379,
		DataDir:     "./data",
		LogLevel:    "info",
		LogJSON:     false,
		LockTTL:     lock.TTL,
		LockTimeout: lock.DefaultTimeout,
		MetricsAddr: "",
	}
}

// fileConfig mirrors Config's fields for YAML unmarshaling, using
// pointers so an absent key leaves the corresponding Config field
// untouched.
type fileConfig struct {
	Bind          *string `yaml:"bind"`
	Port          *int    `yaml:"port"`
	DataDir       *string `yaml:"data_dir"`
	LogLevel      *string `yaml:"log_level"`
	LogJSON       *bool   `yaml:"log_json"`
	LockTTLMs     *int64  `yaml:"lock_ttl_ms"`
	LockTimeoutMs *int64  `yaml:"lock_timeout_ms"`
	MetricsAddr   *string `yaml:"metrics_addr"`
}

// LoadFile overlays settings from a YAML file onto cfg. A missing file
// is not an error — the file is optional and cfg is returned unchanged.
func LoadFile(path string, cfg Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if fc.Bind != nil {
		cfg.Bind = *fc.Bind
	}
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.DataDir != nil {
		cfg.DataDir = *fc.DataDir
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.LogJSON != nil {
		cfg.LogJSON = *fc.LogJSON
	}
	if fc.LockTTLMs != nil {
		cfg.LockTTL = time.Duration(*fc.LockTTLMs) * time.Millisecond
	}
	if fc.LockTimeoutMs != nil {
		cfg.LockTimeout = time.Duration(*fc.LockTimeoutMs) * time.Millisecond
	}
	if fc.MetricsAddr != nil {
		cfg.MetricsAddr = *fc.MetricsAddr
	}
	return cfg, nil
}

// ApplyEnv overlays environment variable overrides onto cfg, returning
// the result. Flags (applied by the caller afterward) take precedence
// over env, which takes precedence over the YAML file, which takes
// precedence over defaults.
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("GATEWAY_BIND"); v != "" {
		cfg.Bind = v
	}
	if v := os.Getenv("GATEWAY_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("GATEWAY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("GATEWAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GATEWAY_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogJSON = b
		}
	}
	if v := os.Getenv("GATEWAY_LOCK_TTL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.LockTTL = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("GATEWAY_LOCK_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.LockTimeout = time.Duration(n) * time.Millisecond
		}
	}
	return cfg
}

// Addr formats the bind address and port for net.Listen.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}
