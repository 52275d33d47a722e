package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	defaultServiceURL = "http://localhost:8080"
	defaultTimeout    = 10 * time.Second
)

// Client configures the druid command line client. Values come from an
// optional YAML file; environment variables override the file.
type Client struct {
	ServiceURL   string        `yaml:"service_url" env:"DRUID_SERVICE_URL"`
	Timeout      time.Duration `yaml:"timeout" env:"DRUID_TIMEOUT"`
	SessionPath  string        `yaml:"session_path" env:"DRUID_SESSION_PATH"`
	SessionKey   string        `yaml:"session_key" env:"DRUID_SESSION_KEY"`
	RedisURL     string        `yaml:"redis_url" env:"DRUID_REDIS_URL"`
	LogLevel     string        `yaml:"log_level" env:"DRUID_LOG_LEVEL"`
	OTelEndpoint string        `yaml:"otel_endpoint" env:"DRUID_OTEL_ENDPOINT"`
}

// DefaultClientPath is where the client looks for its config file.
func DefaultClientPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "druid", "config.yaml")
}

// LoadClient reads the file at path, if it exists, then applies environment
// overrides and defaults.
func LoadClient(path string) (Client, error) {
	cfg := Client{
		ServiceURL: defaultServiceURL,
		Timeout:    defaultTimeout,
		LogLevel:   "warn",
	}

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Client{}, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Client{}, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Client{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.ServiceURL = strings.TrimRight(strings.TrimSpace(cfg.ServiceURL), "/")
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.ServiceURL == "" {
		return Client{}, fmt.Errorf("service_url must be set")
	}
	if cfg.Timeout <= 0 {
		return Client{}, fmt.Errorf("timeout must be positive")
	}
	if cfg.SessionKey != "" && len(cfg.SessionKey) < 16 {
		return Client{}, fmt.Errorf("session_key must be at least 16 characters")
	}
	if cfg.SessionPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return Client{}, fmt.Errorf("locate config dir: %w", err)
		}
		cfg.SessionPath = filepath.Join(dir, "druid", "session.db")
	}
	return cfg, nil
}
