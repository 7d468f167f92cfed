package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// OutputConfig selects where MIDI is sent
type OutputConfig struct {
	// Port name fragment, port number, or "serial:<device>[@baud]".
	// Empty picks the first output port.
	Target string `yaml:"target,omitempty"`
}

// DisplayConfig tunes frame pacing
type DisplayConfig struct {
	FallbackFPS       int `yaml:"fallbackFPS"`
	MeasureWindowMs   int `yaml:"measureWindowMs"`
	PresentOverheadUs int `yaml:"presentOverheadUs"` // assumed clear+present cost
}

// PlaybackConfig holds scheduler and control settings
type PlaybackConfig struct {
	ScalePermille       int  `yaml:"scalePermille"`
	SeekStepMs          int  `yaml:"seekStepMs"`
	LeadInMs            int  `yaml:"leadInMs"`
	CommandLatencyCapMs int  `yaml:"commandLatencyCapMs"`
	ExitOnEnd           bool `yaml:"exitOnEnd,omitempty"`
}

// KeyboardConfig is the visible key range (MIDI note numbers)
type KeyboardConfig struct {
	LeftKey  int `yaml:"leftKey"`
	RightKey int `yaml:"rightKey"`
}

// LogConfig controls the debug log
type LogConfig struct {
	File  string `yaml:"file,omitempty"`
	Level string `yaml:"level,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Output   OutputConfig   `yaml:"output"`
	Display  DisplayConfig  `yaml:"display"`
	Playback PlaybackConfig `yaml:"playback"`
	Keyboard KeyboardConfig `yaml:"keyboard"`
	Log      LogConfig      `yaml:"log,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Display: DisplayConfig{
			FallbackFPS:       60,
			MeasureWindowMs:   300,
			PresentOverheadUs: 1000,
		},
		Playback: PlaybackConfig{
			ScalePermille:       1000,
			SeekStepMs:          5000,
			CommandLatencyCapMs: 20,
		},
		Keyboard: KeyboardConfig{
			LeftKey:  21,
			RightKey: 108,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	return homedir.Expand("~/.config/go-pianofall")
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads a config file. Missing keys keep their defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating the directory
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks ranges that would otherwise fail later
func (c *Config) Validate() error {
	k := c.Keyboard
	if k.LeftKey < 0 || k.RightKey > 127 || k.LeftKey > k.RightKey {
		return fmt.Errorf("keyboard range %d..%d outside 0..127", k.LeftKey, k.RightKey)
	}
	if c.Display.FallbackFPS <= 0 {
		return fmt.Errorf("fallbackFPS must be positive, got %d", c.Display.FallbackFPS)
	}
	if s := c.Playback.ScalePermille; s < 250 || s > 4000 {
		return fmt.Errorf("scalePermille %d outside 250..4000", s)
	}
	return nil
}

// Durations in the units the rest of the program uses

func (d DisplayConfig) MeasureWindow() time.Duration {
	return time.Duration(d.MeasureWindowMs) * time.Millisecond
}

func (d DisplayConfig) PresentOverhead() time.Duration {
	return time.Duration(d.PresentOverheadUs) * time.Microsecond
}

func (p PlaybackConfig) SeekStep() time.Duration {
	return time.Duration(p.SeekStepMs) * time.Millisecond
}

func (p PlaybackConfig) LeadIn() time.Duration {
	return time.Duration(p.LeadInMs) * time.Millisecond
}

func (p PlaybackConfig) LatencyCap() time.Duration {
	return time.Duration(p.CommandLatencyCapMs) * time.Millisecond
}
