// Package config layers defaults, a JSON config file, and DAYBOOK_*
// environment variables. Secrets are settable only via environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Anthropic AnthropicConfig
	Storage   StorageConfig
	Worker    WorkerConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	MCPPort  int
	APIToken string
}

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

type StorageConfig struct {
	DataDir string
}

type WorkerConfig struct {
	PollInterval  string
	SweepInterval string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4400,
			MCPPort: 4401,
		},
		Anthropic: AnthropicConfig{
			BaseURL: "https://api.anthropic.com/v1",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Worker: WorkerConfig{
			PollInterval:  "500ms",
			SweepInterval: "1h",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/daybook/config.json, then applies DAYBOOK_* environment
// overrides. Secrets (API key, API token) can only come from the
// environment.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if cfg.Anthropic.APIKey == "" {
		return Config{}, fmt.Errorf(
			"missing required config: Anthropic API key. Set it via environment variable DAYBOOK_ANTHROPIC_API_KEY")
	}

	return cfg, nil
}

// Poll returns the worker poll interval, falling back to the default on an
// unparseable value.
func (c WorkerConfig) Poll() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// Sweep returns the rate-limit sweep interval, falling back to the default
// on an unparseable value.
func (c WorkerConfig) Sweep() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// SlogLevel maps the configured level string onto a slog.Level.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
