package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "leapmeta.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "leapmeta.yml"

// LoadFromDir loads a ProjectConfig from the given directory.
// Returns nil, nil if no config file is found (not an error condition).
// Relative paths in the file are resolved against dir.
func LoadFromDir(dir string) (*ProjectConfig, error) {
	configPath := findConfigFile(dir)
	if configPath == "" {
		return nil, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", configPath, err)
	}

	var cfg ProjectConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
	}
	ApplyDefaults(&cfg)
	ResolvePaths(&cfg, dir)
	return &cfg, nil
}

// ResolvePaths makes relative file paths absolute against base.
func ResolvePaths(c *ProjectConfig, base string) {
	c.StatePath = resolve(c.StatePath, base)
	c.GlossaryPath = resolve(c.GlossaryPath, base)
	c.PipelinesPath = resolve(c.PipelinesPath, base)
	c.RulesDir = resolve(c.RulesDir, base)
	for i := range c.Sources {
		switch c.Sources[i].Type {
		case SourceFiles, SourceSQLite, SourceDuckDB:
			c.Sources[i].Path = resolve(c.Sources[i].Path, base)
		}
	}
}

func resolve(path, base string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}

// findConfigFile looks for leapmeta.yaml or leapmeta.yml in the given directory.
// Returns empty string if not found.
func findConfigFile(dir string) string {
	yamlPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}

	ymlPath := filepath.Join(dir, ConfigFileNameAlt)
	if _, err := os.Stat(ymlPath); err == nil {
		return ymlPath
	}

	return ""
}

// FindProjectRoot walks up from the given directory to find a directory
// containing leapmeta.yaml or leapmeta.yml.
// Returns empty string if not found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if findConfigFile(dir) != "" {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
