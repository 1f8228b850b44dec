// Package config provides shared configuration types for leapmeta.
// This package is decoupled from CLI concerns so the engine, collectors
// and server can use project configuration without importing cobra.
package config

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

// Source types understood by the collector factory.
const (
	SourceFiles    = "files"
	SourceSQLite   = "sqlite"
	SourceDuckDB   = "duckdb"
	SourcePostgres = "postgres"
	SourceS3       = "s3"
)

// SourceTypes lists every supported source type.
var SourceTypes = []string{SourceFiles, SourceSQLite, SourceDuckDB, SourcePostgres, SourceS3}

// Source describes one place metadata is collected from.
type Source struct {
	Name string `koanf:"name" yaml:"name"`
	Type string `koanf:"type" yaml:"type"` // files, sqlite, duckdb, postgres, s3

	// File-based sources (files, sqlite, duckdb)
	Path string `koanf:"path" yaml:"path,omitempty"`

	// Network sources (postgres)
	DSN string `koanf:"dsn" yaml:"dsn,omitempty"`

	// Options holds source-specific settings, decoded by each collector.
	Options map[string]any `koanf:"options" yaml:"options,omitempty"`
}

var sourceNamePattern = regexp.MustCompile(`^[a-z0-9_\-]+$`)

// Validate checks if the source configuration is valid.
func (s *Source) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if !sourceNamePattern.MatchString(s.Name) {
		return fmt.Errorf("source %q: name must be lower-case letters, digits, '_' or '-'", s.Name)
	}
	if !slices.Contains(SourceTypes, strings.ToLower(s.Type)) {
		return fmt.Errorf("source %s: unknown type %q (available: %s)", s.Name, s.Type, strings.Join(SourceTypes, ", "))
	}
	switch strings.ToLower(s.Type) {
	case SourceFiles, SourceSQLite:
		if s.Path == "" {
			return fmt.Errorf("source %s: path is required for type %s", s.Name, s.Type)
		}
	case SourceDuckDB:
		// empty path opens an in-memory database
	case SourcePostgres:
		if s.DSN == "" {
			return fmt.Errorf("source %s: dsn is required for type postgres", s.Name)
		}
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnv replaces ${VAR} references with environment values.
// Unset variables are left as written.
func ExpandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Expanded returns a copy of s with ${VAR} references expanded in the DSN,
// path and string options.
func (s Source) Expanded() Source {
	out := s
	out.Path = ExpandEnv(s.Path)
	out.DSN = ExpandEnv(s.DSN)
	if s.Options != nil {
		out.Options = make(map[string]any, len(s.Options))
		for k, v := range s.Options {
			if str, ok := v.(string); ok {
				v = ExpandEnv(str)
			}
			out.Options[k] = v
		}
	}
	return out
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Port  int  `koanf:"port" yaml:"port"`
	Watch bool `koanf:"watch" yaml:"watch"`
}

// ProjectConfig holds the project configuration shared by all components.
// It is a subset of the full CLI Config.
type ProjectConfig struct {
	StatePath     string       `koanf:"state_path" yaml:"state_path"`
	GlossaryPath  string       `koanf:"glossary_path" yaml:"glossary_path"`
	PipelinesPath string       `koanf:"pipelines_path" yaml:"pipelines_path"`
	RulesDir      string       `koanf:"rules_dir" yaml:"rules_dir"`
	Concurrency   int          `koanf:"concurrency" yaml:"concurrency"`
	Sources       []Source     `koanf:"sources" yaml:"sources"`
	Server        ServerConfig `koanf:"server" yaml:"server"`
}

// Validate checks every source and rejects duplicate source names.
func (c *ProjectConfig) Validate() error {
	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]
		if err := src.Validate(); err != nil {
			return err
		}
		if seen[src.Name] {
			return fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = true
	}
	return nil
}
