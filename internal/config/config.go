// Package config handles daetool configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/Faultbox/daeprim/internal/logger"
	"github.com/Faultbox/daeprim/pkg/collada"
)

// Export formats.
const (
	FormatGLTF = "gltf"
	FormatGLB  = "glb"
	FormatYAML = "yaml"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all tool settings.
type Config struct {
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Import  ImportConfig  `yaml:"import" toml:"import"`
	Export  ExportConfig  `yaml:"export" toml:"export"`
	Batch   BatchConfig   `yaml:"batch" toml:"batch"`
	Watch   WatchConfig   `yaml:"watch" toml:"watch"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
	JSON    bool   `yaml:"json" toml:"json"` // JSON lines in LogFile
}

// ImportConfig holds document decoding settings.
type ImportConfig struct {
	VersionConstraint string `yaml:"version_constraint" toml:"version_constraint"`
}

// ExportConfig holds export settings.
type ExportConfig struct {
	Format    string `yaml:"format" toml:"format"`         // gltf, glb or yaml
	OutputDir string `yaml:"output_dir" toml:"output_dir"` // Empty means next to the input
}

// BatchConfig holds concurrent import settings.
type BatchConfig struct {
	Workers int `yaml:"workers" toml:"workers"`
}

// WatchConfig holds file watcher settings.
type WatchConfig struct {
	Debounce Duration `yaml:"debounce" toml:"debounce"`
}

// Duration is a time.Duration written as text ("250ms") in config files.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
		Import: ImportConfig{
			VersionConstraint: collada.DefaultVersionConstraint,
		},
		Export: ExportConfig{
			Format: FormatGLB,
		},
		Batch: BatchConfig{
			Workers: runtime.NumCPU(),
		},
		Watch: WatchConfig{
			Debounce: Duration(250 * time.Millisecond),
		},
	}
}

// Validate checks values that cannot be repaired silently.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging: %v", ErrInvalid, err)
	}
	if _, err := semver.NewConstraint(c.Import.VersionConstraint); err != nil {
		return fmt.Errorf("%w: import.version_constraint %q: %v", ErrInvalid, c.Import.VersionConstraint, err)
	}
	switch c.Export.Format {
	case FormatGLTF, FormatGLB, FormatYAML:
	default:
		return fmt.Errorf("%w: export.format %q (want gltf, glb or yaml)", ErrInvalid, c.Export.Format)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("%w: batch.workers must be at least 1, got %d", ErrInvalid, c.Batch.Workers)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("%w: watch.debounce is negative", ErrInvalid)
	}
	return nil
}

// DecoderOptions returns the collada decoder settings.
func (c *Config) DecoderOptions() collada.DecoderOptions {
	return collada.DecoderOptions{VersionConstraint: c.Import.VersionConstraint}
}

// LoggerFile returns the file logging settings, zero when file logging is
// off.
func (c *Config) LoggerFile() logger.FileConfig {
	if c.Logging.LogFile == "" {
		return logger.FileConfig{}
	}
	fc := logger.DefaultFileConfig(c.Logging.LogFile)
	fc.JSON = c.Logging.JSON
	return fc
}
