// Package config provides configuration types and defaults for cardforge.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/zjrosen/cardforge/internal/transform"
)

// AugmentationConfig controls how derived variants are produced.
type AugmentationConfig struct {
	// Count is the number of derived variants per source image.
	Count int `mapstructure:"count"`

	// Types is the ordered transform catalog. Slot i applies
	// types[i mod len(types)], so the catalog cycles when Count exceeds
	// its length.
	Types []string `mapstructure:"types"`

	// Quality is the encoder quality for lossy output formats (1-100).
	Quality int `mapstructure:"quality"`

	// Seed seeds the transform parameter draws. 0 means time-seeded.
	Seed int64 `mapstructure:"seed"`

	// Backend selects the transform implementation: "imaging" (default)
	// or "basic".
	Backend string `mapstructure:"backend"`
}

// WatchConfig controls the watch command.
type WatchConfig struct {
	// Debounce batches bursts of file events into one incremental run.
	Debounce time.Duration `mapstructure:"debounce"`
}

// TracingConfig mirrors the tracing subsystem's options.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"` // "file", "stdout", "otlp"
	FilePath     string  `mapstructure:"file_path"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// Config holds all configuration options for cardforge.
type Config struct {
	SourceDir    string             `mapstructure:"source_dir"`
	OutputDir    string             `mapstructure:"output_dir"`
	StateFile    string             `mapstructure:"state_file"`
	RegistryPath string             `mapstructure:"registry_path"`
	Augmentation AugmentationConfig `mapstructure:"augmentation"`
	Watch        WatchConfig        `mapstructure:"watch"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		SourceDir: "./cards",
		OutputDir: "./cards_augmented",
		Augmentation: AugmentationConfig{
			Count: 4,
			Types: []string{
				transform.KindRotate,
				transform.KindBrightness,
				transform.KindContrast,
				transform.KindSaturation,
				transform.KindCombined,
			},
			Quality: 95,
			Seed:    0,
			Backend: transform.BackendImaging,
		},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// StateFilePath returns the configured state file, defaulting to a
// hidden directory under the output root.
func (c Config) StateFilePath() string {
	if c.StateFile != "" {
		return c.StateFile
	}
	return filepath.Join(c.OutputDir, ".cardforge", "state.json")
}

// RegistryDBPath returns the configured registry database, defaulting to
// a hidden directory under the output root.
func (c Config) RegistryDBPath() string {
	if c.RegistryPath != "" {
		return c.RegistryPath
	}
	return filepath.Join(c.OutputDir, ".cardforge", "registry.db")
}

// Validate rejects configurations that cannot make progress. These are
// fatal at startup, unlike per-artifact errors during a run.
func (c Config) Validate() error {
	if c.SourceDir == "" {
		return fmt.Errorf("source_dir is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}

	a := c.Augmentation
	if a.Count < 1 {
		return fmt.Errorf("augmentation.count must be at least 1, got %d", a.Count)
	}
	if a.Quality < 1 || a.Quality > 100 {
		return fmt.Errorf("augmentation.quality must be 1-100, got %d", a.Quality)
	}
	if len(a.Types) == 0 {
		return fmt.Errorf("augmentation.types must list at least one transform")
	}
	for i, kind := range a.Types {
		if !transform.Supported(kind) {
			return fmt.Errorf("augmentation.types[%d]: unknown transform %q (known: %v)", i, kind, transform.Kinds())
		}
	}
	if a.Backend != "" && a.Backend != transform.BackendImaging && a.Backend != transform.BackendBasic {
		return fmt.Errorf("augmentation.backend must be %q or %q, got %q",
			transform.BackendImaging, transform.BackendBasic, a.Backend)
	}

	switch c.Tracing.Exporter {
	case "", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be file, stdout or otlp, got %q", c.Tracing.Exporter)
	}
	return nil
}
