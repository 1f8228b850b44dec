package config

import "runtime"

// Default configuration values.
const (
	DefaultStatePath     = ".leapmeta/catalog.db"
	DefaultGlossaryPath  = "business_glossary.json"
	DefaultPipelinesPath = "pipelines.yaml"
	DefaultRulesDir      = "rules"
	DefaultServerPort    = 8787
)

// DefaultConcurrency bounds parallel collection work.
func DefaultConcurrency() int {
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	return n
}

// ApplyDefaults fills unset values of a ProjectConfig.
func ApplyDefaults(c *ProjectConfig) {
	if c == nil {
		return
	}
	if c.StatePath == "" {
		c.StatePath = DefaultStatePath
	}
	if c.GlossaryPath == "" {
		c.GlossaryPath = DefaultGlossaryPath
	}
	if c.PipelinesPath == "" {
		c.PipelinesPath = DefaultPipelinesPath
	}
	if c.RulesDir == "" {
		c.RulesDir = DefaultRulesDir
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency()
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	for i := range c.Sources {
		if c.Sources[i].Type == SourceFiles && c.Sources[i].Options == nil {
			c.Sources[i].Options = map[string]any{}
		}
	}
}
