// Package config loads the chat client's settings from ~/.adichat/config.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Reveal    RevealConfig    `toml:"reveal"`
	Reactions ReactionsConfig `toml:"reactions"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ReadRetries    int    `toml:"read_retries"`
}

type AuthConfig struct {
	Token string `toml:"token"`
}

type RevealConfig struct {
	// IntervalMS is the delay between two revealed words
	IntervalMS int `toml:"interval_ms"`
}

type ReactionsConfig struct {
	Path string `toml:"path"`
}

type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

func Default() *Config {
	dir, _ := Dir()
	return &Config{
		Server: ServerConfig{
			URL:            "http://localhost:8080",
			TimeoutSeconds: 90,
			ReadRetries:    2,
		},
		Reveal:    RevealConfig{IntervalMS: 100},
		Reactions: ReactionsConfig{Path: filepath.Join(dir, "reactions")},
		Log:       LogConfig{Level: "warn"},
	}
}

// Dir is the per-user directory holding the config and the reactions store
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".adichat"), nil
}

func DefaultPath() string {
	dir, err := Dir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(dir, "config.toml")
}

// Load reads path over the defaults. A missing file is not an error.
// ADICHAT_SERVER_URL and ADICHAT_TOKEN override the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ADICHAT_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("ADICHAT_TOKEN"); v != "" {
		c.Auth.Token = v
	}
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Server.URL == "" {
		c.Server.URL = d.Server.URL
	}
	if c.Server.TimeoutSeconds <= 0 {
		c.Server.TimeoutSeconds = d.Server.TimeoutSeconds
	}
	if c.Reveal.IntervalMS <= 0 {
		c.Reveal.IntervalMS = d.Reveal.IntervalMS
	}
	if c.Reactions.Path == "" {
		c.Reactions.Path = d.Reactions.Path
	}
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

func (c *Config) RevealInterval() time.Duration {
	return time.Duration(c.Reveal.IntervalMS) * time.Millisecond
}

// Save writes the config with owner-only permissions since it holds the token
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
