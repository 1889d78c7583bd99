// Package config provides configuration for the Marketa client.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultAPIURL is the hosted Marketa backend.
const DefaultAPIURL = "https://marketa-server.onrender.com"

// Config holds the client configuration.
type Config struct {
	// Backend
	APIURL      string
	HTTPTimeout time.Duration

	// Local storage
	DBPath string

	// Chat feed
	PollInterval    time.Duration
	PollMaxAttempts int
	ReconnectDelay  time.Duration
	DisablePush     bool

	// Local listeners
	DevServerPort     int
	DevReplyDelay     time.Duration
	OAuthCallbackPort int

	// Logging
	LogLevel string
	LogFile  string
}

// raw mirrors Config in the units used by the YAML file and the environment.
type raw struct {
	APIURL            string `yaml:"api_url" env:"MARKETA_API_URL"`
	HTTPTimeoutMs     int    `yaml:"http_timeout_ms" env:"MARKETA_HTTP_TIMEOUT_MS"`
	DBPath            string `yaml:"db_path" env:"MARKETA_DB_PATH"`
	PollIntervalMs    int    `yaml:"poll_interval_ms" env:"MARKETA_POLL_INTERVAL_MS"`
	PollMaxAttempts   int    `yaml:"poll_max_attempts" env:"MARKETA_POLL_MAX_ATTEMPTS"`
	ReconnectMs       int    `yaml:"reconnect_ms" env:"MARKETA_RECONNECT_MS"`
	DisablePush       bool   `yaml:"disable_push" env:"MARKETA_DISABLE_PUSH"`
	DevServerPort     int    `yaml:"devserver_port" env:"MARKETA_DEVSERVER_PORT"`
	DevReplyDelayMs   int    `yaml:"devserver_reply_delay_ms" env:"MARKETA_DEVSERVER_REPLY_DELAY_MS"`
	OAuthCallbackPort int    `yaml:"oauth_callback_port" env:"MARKETA_OAUTH_CALLBACK_PORT"`
	LogLevel          string `yaml:"log_level" env:"MARKETA_LOG_LEVEL"`
	LogFile           string `yaml:"log_file" env:"MARKETA_LOG_FILE"`
}

func defaults() raw {
	return raw{
		APIURL:            DefaultAPIURL,
		HTTPTimeoutMs:     30000,
		DBPath:            filepath.Join(Dir(), "marketa.db"),
		PollIntervalMs:    2000,
		PollMaxAttempts:   20,
		ReconnectMs:       3000,
		DevServerPort:     8095,
		DevReplyDelayMs:   500,
		OAuthCallbackPort: 8096,
		LogLevel:          "info",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// MARKETA_CONFIG (or ~/.marketa/config.yaml when present), then environment
// variables.
func Load() (*Config, error) {
	path := os.Getenv("MARKETA_CONFIG")
	explicit := path != ""
	if !explicit {
		path = filepath.Join(Dir(), "config.yaml")
	}
	return LoadFile(path, explicit)
}

// LoadFile is Load with an explicit file path. A missing file is an error only
// when required is set.
func LoadFile(path string, required bool) (*Config, error) {
	r := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &r); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := env.Parse(&r); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{
		APIURL:            r.APIURL,
		HTTPTimeout:       time.Duration(r.HTTPTimeoutMs) * time.Millisecond,
		DBPath:            r.DBPath,
		PollInterval:      time.Duration(r.PollIntervalMs) * time.Millisecond,
		PollMaxAttempts:   r.PollMaxAttempts,
		ReconnectDelay:    time.Duration(r.ReconnectMs) * time.Millisecond,
		DisablePush:       r.DisablePush,
		DevServerPort:     r.DevServerPort,
		DevReplyDelay:     time.Duration(r.DevReplyDelayMs) * time.Millisecond,
		OAuthCallbackPort: r.OAuthCallbackPort,
		LogLevel:          r.LogLevel,
		LogFile:           r.LogFile,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the client cannot run with.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("config: api url is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll interval must be positive, got %s", c.PollInterval)
	}
	if c.PollMaxAttempts <= 0 {
		return fmt.Errorf("config: poll max attempts must be positive, got %d", c.PollMaxAttempts)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("config: http timeout must be positive, got %s", c.HTTPTimeout)
	}
	return nil
}

// Dir is the per-user directory holding the database, logs, and config file.
func Dir() string {
	if dir := os.Getenv("MARKETA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".marketa"
	}
	return filepath.Join(home, ".marketa")
}
