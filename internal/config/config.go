// Package config loads the daemon's YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the daemon configuration.
type Config struct {
	// DataPath is the data directory.
	DataPath string `yaml:"dataPath"`

	// Identity is the node's public identity. Empty derives one from the
	// data path.
	Identity string `yaml:"identity"`

	// ListenAddr accepts peer connections, e.g. ":7420". Empty disables
	// the listener.
	ListenAddr string `yaml:"listenAddr"`

	// Bootstrap addresses are dialed on startup and on pool churn.
	Bootstrap []string `yaml:"bootstrap"`

	// MinimumFreeGB refuses startup below this free-space threshold.
	MinimumFreeGB uint `yaml:"minimumFreeGB"`

	ChunkSize       int `yaml:"chunkSize"`
	MaxLinksPerNode int `yaml:"maxLinksPerNode"`

	Debug bool `yaml:"debug"`
}

// Load reads a YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.DataPath == "" {
		return cfg, fmt.Errorf("config: dataPath is required")
	}
	return cfg, nil
}
