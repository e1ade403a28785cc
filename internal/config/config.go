// Package config loads rplibc run settings from YAML.
package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Runtime kinds.
const (
	RuntimeHost   = "host"
	RuntimeMemory = "memory"
)

// DefaultMaxString bounds guest path reads, terminator included.
const DefaultMaxString = 4096

// Config describes how a guest is run.
type Config struct {
	Runtime   string            `yaml:"runtime"`
	Root      string            `yaml:"root"`
	Files     map[string]string `yaml:"files"`
	Stdin     string            `yaml:"stdin"`
	MaxString int               `yaml:"max_string"`
	MaxInsn   uint64            `yaml:"max_insn"`
	Fallbacks bool              `yaml:"fallbacks"`
	Debug     bool              `yaml:"debug"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Runtime:   RuntimeHost,
		MaxString: DefaultMaxString,
		Fallbacks: true,
	}
}

// Load reads path over the defaults. Keys absent from the file keep their
// default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch c.Runtime {
	case RuntimeHost, RuntimeMemory:
	default:
		return fmt.Errorf("unknown runtime %q (want %s or %s)", c.Runtime, RuntimeHost, RuntimeMemory)
	}
	if c.MaxString <= 0 {
		return fmt.Errorf("max_string must be positive, got %d", c.MaxString)
	}
	if c.Runtime == RuntimeHost && (len(c.Files) > 0 || c.Stdin != "") {
		return fmt.Errorf("files and stdin require the %s runtime", RuntimeMemory)
	}
	if c.Runtime == RuntimeMemory && c.Root != "" {
		return fmt.Errorf("root requires the %s runtime", RuntimeHost)
	}
	return nil
}

// FilePaths returns the preloaded file paths in sorted order.
func (c *Config) FilePaths() []string {
	paths := make([]string, 0, len(c.Files))
	for p := range c.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Marshal encodes the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
