// Package config resolves the CLI flag set plus an optional TOML defaults
// file into a validated Config used by the fetch pipeline.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable of the fetch pipeline. Flag values override
// whatever a defaults file supplies.
type Config struct {
	IndexPath   string `toml:"index_path"`
	OutputRoot  string `toml:"output_root"`
	Fields      []int  `toml:"fields"`
	URLField    int    `toml:"url_field"`
	MaxSize     uint   `toml:"max_size"`
	Extension   string `toml:"extension"`
	Quality     int    `toml:"quality"`
	TimeoutSecs int    `toml:"timeout_secs"`
	WorkerCount int    `toml:"worker_count"`
	Resume      bool   `toml:"resume"`
	NoHeader    bool   `toml:"no_header"`
	Progress    bool   `toml:"progress"`
	Verbose     int    `toml:"verbose"`
	Listen      string `toml:"listen"`
	Bundle      bool   `toml:"bundle"`
	BundleSizeGB int64 `toml:"bundle_size_gb"`
	BundlesOut  string `toml:"bundles_out"`
	SidecarMetadata bool `toml:"sidecar_metadata"`
}

// Defaults returns a Config with every default named in the external
// interface table, before a defaults file or flags are applied.
func Defaults() Config {
	return Config{
		Fields:       []int{0},
		URLField:     -1,
		MaxSize:      640,
		Extension:    "webp",
		Quality:      90,
		TimeoutSecs:  5,
		WorkerCount:  2 * runtime.NumCPU(),
		BundleSizeGB: 8,
		BundlesOut:   "bundles",
	}
}

// LoadDefaultsFile overlays path's TOML contents onto cfg, for any field the
// file sets. Called before flags are applied so that flags win.
func LoadDefaultsFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Timeout returns the configured read timeout as a time.Duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Validate rejects invalid flag combinations and missing required fields,
// mirroring the startup-fatal taxonomy.
func (c Config) Validate() error {
	if c.IndexPath == "" {
		return fmt.Errorf("index path is required")
	}
	if c.OutputRoot == "" {
		return fmt.Errorf("output root is required")
	}
	if c.Progress && c.Verbose > 0 {
		return fmt.Errorf("--progress and verbose logging are mutually exclusive")
	}
	switch c.Extension {
	case "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("unsupported extension %q: must be jpg or webp", c.Extension)
	}
	if c.Quality < 0 || c.Quality > 100 {
		return fmt.Errorf("quality must be in [0, 100], got %d", c.Quality)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if _, err := os.Stat(c.IndexPath); err != nil {
		return fmt.Errorf("index path %s: %w", c.IndexPath, err)
	}
	return nil
}
