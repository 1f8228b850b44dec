// Package config provides configuration management for the leapmeta CLI.
//
// It extends the shared project configuration from internal/config with
// CLI-only settings (output mode, verbosity) and loads everything through
// koanf: defaults, then leapmeta.yaml, then LEAPMETA_* environment
// variables, then command-line flags.
package config

import (
	intconfig "github.com/leapstack-labs/leapmeta/internal/config"
)

// Config holds all CLI configuration options.
type Config struct {
	intconfig.ProjectConfig `koanf:",squash"`

	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
	// ConfigFile is the config file that was loaded, if any.
	ConfigFile string `koanf:"-"`
}

// Default configuration values not shared with other packages.
const (
	DefaultOutput = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	EnvPrefix     = "LEAPMETA_"
)

// Default returns the configuration used when nothing is loaded, rooted at dir.
func Default(dir string) *Config {
	cfg := &Config{OutputFormat: DefaultOutput, ProjectRoot: dir}
	intconfig.ApplyDefaults(&cfg.ProjectConfig)
	intconfig.ResolvePaths(&cfg.ProjectConfig, dir)
	return cfg
}
