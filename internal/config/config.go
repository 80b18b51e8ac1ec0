// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/promptslot/internal/imaging"
)

// Default arbiter settings.
const (
	DefaultStaleLockTimeout = 12 * time.Hour
	DefaultImageQuality     = string(imaging.DefaultQuality)
)

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Supports formats like "30m", "12h", "1h30m", or integer milliseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML and YAML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '30m', '12h', '1h30m' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// File is the on-disk promptslot configuration.
type File struct {
	Metadata Metadata      `toml:"metadata" yaml:"metadata"`
	Arbiter  ArbiterConfig `toml:"arbiter" yaml:"arbiter"`
}

// ArbiterConfig tunes the display arbiter and the durable state around it.
type ArbiterConfig struct {
	StaleLockTimeout Duration `toml:"stale_lock_timeout" yaml:"stale_lock_timeout"` // e.g. "12h"
	ImageQuality     string   `toml:"image_quality" yaml:"image_quality"`           // default, none, speed, best
	JournalPath      string   `toml:"journal_path" yaml:"journal_path"`             // Empty = DataPath()/journal.jsonl
	SavedStatePath   string   `toml:"saved_state_path" yaml:"saved_state_path"`     // Empty = DataPath()/surface.json
}

// DefaultFile returns a File with default values.
func DefaultFile() *File {
	return &File{
		Metadata: Metadata{},
		Arbiter: ArbiterConfig{
			StaleLockTimeout: Duration(DefaultStaleLockTimeout),
			ImageQuality:     DefaultImageQuality,
		},
	}
}

// Path returns the path to the config file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func Path() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "promptslot", "config.toml")
}

// DataPath returns the path to the data directory.
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share.
func DataPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "promptslot")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	path := DataPath()
	if path == "" {
		return errors.New("unable to determine data directory")
	}
	return os.MkdirAll(path, 0755)
}

// Journal returns the configured journal path or the default one.
func (a ArbiterConfig) Journal() string {
	if a.JournalPath != "" {
		return expandPath(a.JournalPath)
	}
	return filepath.Join(DataPath(), "journal.jsonl")
}

// SavedState returns the configured saved state path or the default one.
func (a ArbiterConfig) SavedState() string {
	if a.SavedStatePath != "" {
		return expandPath(a.SavedStatePath)
	}
	return filepath.Join(DataPath(), "surface.json")
}

// Codec returns the image codec for the configured quality.
func (a ArbiterConfig) Codec() *imaging.Codec {
	return imaging.NewCodec(imaging.Quality(a.ImageQuality))
}

// isYAML reports whether path should be parsed as YAML rather than TOML.
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFile loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns the default config if the file doesn't exist.
func LoadFile(path string) (*File, error) {
	if path == "" {
		path = Path()
	}

	cfg := DefaultFile()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Metadata == nil {
		cfg.Metadata = Metadata{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration as TOML to the specified path.
// Creates parent directories if needed and writes atomically via a temp file.
func (f *File) Save(path string) error {
	if path == "" {
		path = Path()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (f *File) Validate() error {
	if f.Arbiter.StaleLockTimeout <= 0 {
		return fmt.Errorf("stale_lock_timeout must be positive, got %s", f.Arbiter.StaleLockTimeout.Duration())
	}

	if !slices.Contains(imaging.ValidQualities(), imaging.Quality(f.Arbiter.ImageQuality)) {
		return fmt.Errorf("invalid image_quality %q, must be one of: %v", f.Arbiter.ImageQuality, imaging.ValidQualities())
	}

	return f.SDK(slog.New(slog.DiscardHandler)).Validate()
}

// SDK derives the SDK options from the metadata section.
func (f *File) SDK(logger *slog.Logger) *SDKConfig {
	return FromMetadata(f.Metadata, logger)
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
