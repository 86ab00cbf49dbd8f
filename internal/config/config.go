// Package config loads zugzug's ambient runtime settings: logging and
// the default resource caps a Host is constructed with when the CLI
// does not override them.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"
	DefaultMemoryLimit = 1 << 20 // 1 MiB, mirrors alloc.DefaultLimit
	DefaultTimeout     = 5 * time.Second
)

// Config is the on-disk shape of configs/zugzug.yaml.
type Config struct {
	LogLevel     string        `yaml:"logLevel"`
	LogFormat    string        `yaml:"logFormat"`
	LogPath      string        `yaml:"logPath"`
	MemoryLimit  uint64        `yaml:"memoryLimit"`
	Timeout      time.Duration `yaml:"timeout"`
	ScriptRoot   string        `yaml:"scriptRoot"`
	AllowedPaths []string      `yaml:"allowedPaths"`
}

// Load reads and parses a YAML config file at path, applying defaults
// for any field left unset. A missing path is not an error — the
// caller gets a config with only defaults applied, matching the CLI's
// "run with no config file present" path.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		applyDefaults(&cfg)
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = DefaultLogFormat
	}
	if cfg.MemoryLimit == 0 {
		cfg.MemoryLimit = DefaultMemoryLimit
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
}
