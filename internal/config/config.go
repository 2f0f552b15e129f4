// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for braid.
//
// Configuration lives in ~/.braid/config.toml, with sensible defaults and
// environment variable overrides.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/braid-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete braid configuration.
type Config struct {
	Backend BackendConfig `toml:"backend"`
	Stream  StreamConfig  `toml:"stream"`
	Storage StorageConfig `toml:"storage"`
	UI      UIConfig      `toml:"ui"`
}

// BackendConfig contains the conversation backend connection settings.
type BackendConfig struct {
	// URL is the base URL of the conversation backend
	URL string `toml:"url"`
	// Token is the bearer token for authentication.
	// Prefer the BRAID_TOKEN environment variable over storing it here.
	Token string `toml:"token"`
	// RequestTimeoutSecs bounds non-streaming requests
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
}

// StreamConfig controls the chunked delivery path.
type StreamConfig struct {
	// Enabled selects streamed delivery; when false every request uses
	// the single round-trip path
	Enabled bool `toml:"enabled"`
	// DeadlineSecs bounds one streamed response end to end
	DeadlineSecs int `toml:"deadline_secs"`
	// RedrawsPerSecond caps progressive redraws during streaming
	RedrawsPerSecond int `toml:"redraws_per_second"`
	// AudioMode forces the non-streaming path (audio output needs the
	// complete response)
	AudioMode bool `toml:"audio_mode"`
}

// StorageConfig contains local history settings.
type StorageConfig struct {
	// DatabasePath is where the SQLite history database lives
	// (empty = ~/.braid/history.db)
	DatabasePath string `toml:"database_path"`
}

// UIConfig contains rendering settings.
type UIConfig struct {
	// Markdown enables markdown rendering of assistant messages
	Markdown bool `toml:"markdown"`
	// Theme is the glamour style name ("dark", "light", "notty", ...)
	Theme string `toml:"theme"`
}

// =============================================================================
// DEFAULTS AND PATHS
// =============================================================================

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			RequestTimeoutSecs: 60,
		},
		Stream: StreamConfig{
			Enabled:          true,
			DeadlineSecs:     300,
			RedrawsPerSecond: 30,
		},
		UI: UIConfig{
			Markdown: true,
			Theme:    "dark",
		},
	}
}

// ConfigDir returns ~/.braid, creating nothing.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".braid"), nil
}

// Path returns the TOML config file path.
func Path() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ExportDir returns the directory for markdown exports.
func ExportDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "exports"), nil
}

// DatabasePath resolves the history database path, falling back to the
// default under the config directory.
func (c *Config) DatabasePath() (string, error) {
	if c.Storage.DatabasePath != "" {
		return c.Storage.DatabasePath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// RequestTimeout returns the non-streaming request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeoutSecs) * time.Second
}

// StreamDeadline returns the streamed-response deadline.
func (c *Config) StreamDeadline() time.Duration {
	return time.Duration(c.Stream.DeadlineSecs) * time.Second
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the config file if present, applies environment overrides, and
// validates. A missing file is not an error; defaults are returned.
func Load() (*Config, error) {
	cfg := Default()

	path, err := Path()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config file: %w", err)
			}
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides to the config.
// Environment variables always win over file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("BRAID_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("BRAID_TOKEN"); v != "" {
		c.Backend.Token = v
	}
	if v := os.Getenv("BRAID_NO_STREAM"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Stream.Enabled = !b
		}
	}
	if v := os.Getenv("BRAID_AUDIO_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Stream.AudioMode = b
		}
	}
	if v := os.Getenv("BRAID_DB_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}
}

// SetDefaults fills zero values with usable defaults.
func (c *Config) SetDefaults() {
	if c.Backend.RequestTimeoutSecs <= 0 {
		c.Backend.RequestTimeoutSecs = 60
	}
	if c.Stream.DeadlineSecs <= 0 {
		c.Stream.DeadlineSecs = 300
	}
	if c.Stream.RedrawsPerSecond <= 0 {
		c.Stream.RedrawsPerSecond = 30
	}
	if c.UI.Theme == "" {
		c.UI.Theme = "dark"
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Backend.URL != "" {
		u, err := url.Parse(c.Backend.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("backend.url must be an http(s) URL, got %q", c.Backend.URL)
		}
	}
	if c.Stream.DeadlineSecs < 10 {
		return fmt.Errorf("stream.deadline_secs must be at least 10, got %d", c.Stream.DeadlineSecs)
	}
	if c.Stream.RedrawsPerSecond > 240 {
		return fmt.Errorf("stream.redraws_per_second must be at most 240, got %d", c.Stream.RedrawsPerSecond)
	}
	return nil
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to the default path. The write is atomic
// and the file is owner-only: the token may be in it.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the configuration to an explicit path.
func SaveTo(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# braid configuration file\n")
	buf.WriteString("# Generated by braid - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
