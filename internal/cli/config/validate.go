package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
)

// ErrNoSources is returned by RequireSources when no source is configured.
var ErrNoSources = errors.New("no sources configured")

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.OutputFormat != "" && c.OutputFormat != "md" && !slices.Contains(output.Modes, c.OutputFormat) {
		return fmt.Errorf("invalid output %q (available: %v)", c.OutputFormat, output.Modes)
	}
	return c.ProjectConfig.Validate()
}

// RequireSources fails when the project has no sources to collect.
func (c *Config) RequireSources() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("%w\nHint: add a sources list to leapmeta.yaml or run 'leapmeta sample <dir>'", ErrNoSources)
	}
	return nil
}
