// Package config loads runtime tunables with layered precedence:
// built-in defaults, then an optional YAML file, then CSVLAB_-prefixed
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CSVLAB_"

// Config holds every tunable the components accept.
type Config struct {
	// Detection and inference bounds.
	SampleBytes  int `koanf:"sample_bytes"`
	InferRows    int `koanf:"infer_rows"`
	DistinctCap  int `koanf:"distinct_cap"`
	SampleValues int `koanf:"sample_values"`

	// Parsing.
	TrimSpace bool `koanf:"trim_space"`

	// Query defaults.
	DefaultPageSize int `koanf:"default_page_size"`

	// Logging.
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	Export ExportConfig `koanf:"export"`
}

// ExportConfig carries the exporter defaults.
type ExportConfig struct {
	Delimiter      string `koanf:"delimiter"`
	Quote          string `koanf:"quote"`
	IncludeHeaders bool   `koanf:"include_headers"`
	Encoding       string `koanf:"encoding"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"sample_bytes":      16 * 1024,
		"infer_rows":        1000,
		"distinct_cap":      10000,
		"sample_values":     5,
		"trim_space":        true,
		"default_page_size": 100,
		"log_level":         "info",
		"log_format":        "text",
		"export": map[string]interface{}{
			"delimiter":       ",",
			"quote":           "auto",
			"include_headers": true,
			"encoding":        "utf-8",
		},
	}
}

// findConfigFile resolves the file layer. Priority: explicit path, then
// csvlab.yaml, then csvlab.yml in the working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"csvlab.yaml", "csvlab.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load builds the effective configuration. A missing explicit file is an
// error; absent default-named files are simply skipped.
func Load(cfgFile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	// CSVLAB_DISTINCT_CAP -> distinct_cap, CSVLAB_EXPORT__QUOTE -> export.quote.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SampleBytes < 1 {
		return fmt.Errorf("config: sample_bytes must be positive, got %d", c.SampleBytes)
	}
	if c.InferRows < 1 {
		return fmt.Errorf("config: infer_rows must be positive, got %d", c.InferRows)
	}
	if c.DistinctCap < 1 {
		return fmt.Errorf("config: distinct_cap must be positive, got %d", c.DistinctCap)
	}
	if c.DefaultPageSize < 1 {
		return fmt.Errorf("config: default_page_size must be positive, got %d", c.DefaultPageSize)
	}
	switch c.Export.Quote {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("config: export.quote must be auto, always, or never, got %q", c.Export.Quote)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}
