// Package config provides YAML configuration parsing for keywatch.
//
// This package enables running keywatch as a standalone dashboard binary
// with a configuration file, as an alternative to the programmatic SDK
// approach.
//
// Example configuration:
//
//	title: Build Pipeline
//	port: 8080
//	log_level: info
//
//	seed:
//	  build: idle
//	  queue_depth: 0
//	  release: ${RELEASE_TAG:-dev}
//
//	watch: [build, queue_depth]
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort     = 8080
	defaultLogLevel = "info"
)

// Config is the root configuration structure for the keywatch binary.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "keywatch" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// LogLevel is the slog level for the binary: debug, info, warn or
	// error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// Seed contains the store's initial key/value assignments.
	// String values support environment variable substitution:
	// ${VAR} or ${VAR:-default}.
	Seed map[string]any `yaml:"seed"`

	// Watch lists the keys the dashboard observes and displays.
	// Defaults to the seed keys, sorted.
	Watch []string `yaml:"watch"`
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in string seed values are expanded after parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Defaults are applied for Port (8080), LogLevel (info) and Watch (the
// seed keys, sorted). Environment variables are expanded in string seed
// values.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	for k, v := range c.Seed {
		if k == "" {
			return errors.New("seed: empty key is not allowed")
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		expanded, err := expandEnvVars(s)
		if err != nil {
			return fmt.Errorf("seed[%s]: %w", k, err)
		}
		c.Seed[k] = expanded
	}

	seen := make(map[string]struct{}, len(c.Watch))
	for i, k := range c.Watch {
		if k == "" {
			return fmt.Errorf("watch[%d]: empty key is not allowed", i)
		}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("watch[%d]: duplicate key %q", i, k)
		}
		seen[k] = struct{}{}
	}

	if len(c.Watch) == 0 {
		c.Watch = sortedKeys(c.Seed)
	}

	if len(c.Seed) == 0 && len(c.Watch) == 0 {
		return errors.New("at least one seed value or watch key must be defined")
	}

	return nil
}

// SlogLevel maps the configured log level to a [slog.Level].
func (c *Config) SlogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
