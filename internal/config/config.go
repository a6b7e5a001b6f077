// Package config loads the mediadupfinder YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"mediadupfinder/internal/embed"
	"mediadupfinder/internal/engine"
)

// Config is the top-level configuration file
type Config struct {
	// Roots are the folders that make up the media library
	Roots    []string      `yaml:"roots"`
	Database string        `yaml:"database"`
	LogLevel string        `yaml:"log_level"`
	FFmpeg   string        `yaml:"ffmpeg"`
	Trash    string        `yaml:"trash"` // empty uses the platform trash
	Server   ServerConfig  `yaml:"server"`
	Engine   engine.Config `yaml:"engine"`
	Embed    embed.Config  `yaml:"embedding"`
}

// ServerConfig controls the serve command
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// IdleTimeout shuts the server down after this long without clients;
	// zero keeps it running
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// Dir returns the per-user state directory
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mediadupfinder"
	}
	return filepath.Join(home, ".mediadupfinder")
}

// DefaultPath is where Load looks when no --config flag is given
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Database: filepath.Join(Dir(), "mediadupfinder.db"),
		LogLevel: "info",
		FFmpeg:   "ffmpeg",
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Engine: engine.DefaultConfig(),
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is set.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	for name, cc := range map[string]engine.ClassConfig{"photo": c.Engine.Photo, "video": c.Engine.Video} {
		if cc.BatchSize < 0 {
			return fmt.Errorf("engine.%s.batch_size must not be negative", name)
		}
		if cc.MaxConcurrentBatches < 0 {
			return fmt.Errorf("engine.%s.max_concurrent_batches must not be negative", name)
		}
	}
	t := c.Engine.Thresholds
	if t.PixelDiff < 0 || t.PixelDiff > 1 {
		return fmt.Errorf("engine.thresholds.pixel_diff must be in [0, 1], got %v", t.PixelDiff)
	}
	if t.Embedding < 0 {
		return fmt.Errorf("engine.thresholds.embedding must not be negative, got %v", t.Embedding)
	}
	return nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
