// Package config loads the bridge configuration file. Every field is optional;
// command-line flags override whatever the file sets.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/codeshield-bridge/internal/serialmux"
)

const (
	DefaultDevice = "/dev/ttyACM0"
	DefaultListen = ":50207"
)

type Config struct {
	Serial SerialConfig `yaml:"serial"`

	// Listen is the TCP address the Scratch client connects to.
	Listen string `yaml:"listen"`

	// Database is the SQLite history file. Empty disables history.
	Database string `yaml:"database"`

	// DebugListen serves the /debug/ admin routes. Empty disables them.
	DebugListen string `yaml:"debug_listen"`
}

// ---- SERIAL ----

type SerialConfig struct {
	Device string `yaml:"device"`

	serialmux.PortOptions `yaml:",inline"`
}

// Load reads a YAML config file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data. Empty input yields the zero Config.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
