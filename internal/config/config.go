// Package config loads engine settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSampleRate   = 48000
	DefaultBackend      = "ebiten"
	DefaultPolyphony    = 32
	DefaultStealPolicy  = "oldest"
	DefaultMasterVolume = 0.8
)

// Config holds engine and host settings. Zero fields take defaults.
type Config struct {
	SampleRate   int      `yaml:"sampleRate"`
	Backend      string   `yaml:"backend"`
	Polyphony    int      `yaml:"polyphony"`
	StealPolicy  string   `yaml:"stealPolicy"`
	MasterVolume *float64 `yaml:"masterVolume,omitempty"`
	Seed         int64    `yaml:"seed"`
	Patch        string   `yaml:"patch,omitempty"`
	MIDIPort     string   `yaml:"midiPort,omitempty"`
	Debug        bool     `yaml:"debug,omitempty"`
}

// Default returns a config with every default filled in.
func Default() Config {
	c := Config{}
	c.fill()
	return c
}

// Volume returns the configured master volume or the default.
func (c Config) Volume() float64 {
	if c.MasterVolume == nil {
		return DefaultMasterVolume
	}
	return *c.MasterVolume
}

func (c *Config) fill() {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.Polyphony == 0 {
		c.Polyphony = DefaultPolyphony
	}
	if c.StealPolicy == "" {
		c.StealPolicy = DefaultStealPolicy
	}
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.SampleRate < 0 {
		return errors.New("sampleRate must be positive")
	}
	if c.Polyphony < 0 {
		return errors.New("polyphony must be positive")
	}
	return nil
}

// Parse decodes YAML and fills defaults.
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	c.fill()
	return c, nil
}

// Load reads a YAML config file. An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
