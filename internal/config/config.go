package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WPPARCHIVE_"

const (
	DefaultServerURL = "http://localhost:3000/api"
	DefaultSocketURL = "ws://localhost:3000/ws"
)

// Config represents the global ~/.wpparchive/config.toml. Durations are
// written as Go duration strings ("10s").
type Config struct {
	DefaultSession string `toml:"default_session,omitempty" env:"DEFAULT_SESSION"`
	ServerURL      string `toml:"server_url,omitempty" env:"SERVER_URL"`
	SocketURL      string `toml:"socket_url,omitempty" env:"SOCKET_URL"`
	// LogLevel is a zap level name: debug, info, warn or error.
	LogLevel string `toml:"log_level,omitempty" env:"LOG_LEVEL"`

	ProbeTimeout        time.Duration `toml:"probe_timeout,omitempty" env:"PROBE_TIMEOUT"`
	SettleDelay         time.Duration `toml:"settle_delay,omitempty" env:"SETTLE_DELAY"`
	ReconnectMin        time.Duration `toml:"reconnect_min,omitempty" env:"RECONNECT_MIN"`
	ReconnectMax        time.Duration `toml:"reconnect_max,omitempty" env:"RECONNECT_MAX"`
	AlertDuration       time.Duration `toml:"alert_duration,omitempty" env:"ALERT_DURATION"`
	SystemAlertDuration time.Duration `toml:"system_alert_duration,omitempty" env:"SYSTEM_ALERT_DURATION"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerURL:           DefaultServerURL,
		SocketURL:           DefaultSocketURL,
		LogLevel:            "info",
		ProbeTimeout:        10 * time.Second,
		SettleDelay:         200 * time.Millisecond,
		ReconnectMin:        time.Second,
		ReconnectMax:        30 * time.Second,
		AlertDuration:       4 * time.Second,
		SystemAlertDuration: 5 * time.Second,
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve builds the effective configuration: defaults, then the file at
// path if it exists, then the dotenv file if it exists, then WPPARCHIVE_*
// environment variables. The result is validated.
func Resolve(path, dotenv string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", dotenv, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks URLs and durations.
func (c *Config) Validate() error {
	var errs []error
	if err := checkURL("server_url", c.ServerURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL("socket_url", c.SocketURL, "ws", "wss", "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"probe_timeout", c.ProbeTimeout},
		{"settle_delay", c.SettleDelay},
		{"reconnect_min", c.ReconnectMin},
		{"reconnect_max", c.ReconnectMax},
		{"alert_duration", c.AlertDuration},
		{"system_alert_duration", c.SystemAlertDuration},
	} {
		if d.v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", d.name))
		}
	}
	if c.ReconnectMax > 0 && c.ReconnectMax < c.ReconnectMin {
		errs = append(errs, fmt.Errorf("reconnect_max (%s) is below reconnect_min (%s)", c.ReconnectMax, c.ReconnectMin))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel. Empty means info.
func (c *Config) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

func checkURL(name, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s %q: want a %v URL with a host", name, raw, schemes)
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
