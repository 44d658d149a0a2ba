// Package config handles byterun.toml tool configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents a byterun.toml configuration file.
type Config struct {
	VM       VMConfig       `toml:"vm"`
	Analysis AnalysisConfig `toml:"analysis"`
	Log      LogConfig      `toml:"log"`

	// Dir is the directory containing the byterun.toml file (set at load time).
	Dir string `toml:"-"`
}

// VMConfig sizes the interpreter's slabs.
type VMConfig struct {
	StackWords int `toml:"stack-words"`
	FrameDepth int `toml:"frame-depth"`
}

// AnalysisConfig configures the idiom scanner.
type AnalysisConfig struct {
	Store string `toml:"store"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the configuration used when no byterun.toml exists.
func Default() *Config {
	return &Config{}
}

// Load parses a byterun.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "byterun.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Dir = dir
	return &c, nil
}

// FindAndLoad walks up from startDir looking for a byterun.toml. When
// none is found, the defaults apply.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "byterun.toml")); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}
