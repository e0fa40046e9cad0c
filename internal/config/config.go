package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// Dialect names the identifiers that make up the stream dialect in task
// sources.
type Dialect struct {
	// Package is the identifier used to qualify dialect types, e.g. "tlp" in
	// tlp.IStream[int32].
	Package      string `yaml:"package"`
	InputStream  string `yaml:"input_stream"`
	OutputStream string `yaml:"output_stream"`
	Task         string `yaml:"task"`
	Invoke       string `yaml:"invoke"`
	NewStream    string `yaml:"new_stream"`
}

// Config holds the settings of one tlpc invocation. Values come from
// Default, then an optional YAML file, then the environment, then flags.
type Config struct {
	Dialect    Dialect `yaml:"dialect"`
	DiagFormat string  `yaml:"diag_format"`
	// Format runs the lowered unit through goimports-style cleanup.
	Format bool `yaml:"format"`
	// Metadata is the path the task topology is written to (empty skips it).
	Metadata string `yaml:"metadata"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Dialect: Dialect{
			Package:      "tlp",
			InputStream:  "IStream",
			OutputStream: "OStream",
			Task:         "Task",
			Invoke:       "Invoke",
			NewStream:    "NewStream",
		},
		DiagFormat: "text",
		Format:     true,
	}
}

// Load reads a YAML configuration file on top of Default. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if len(bytes.TrimSpace(data)) == 0 {
			return cfg, nil
		}
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from TLPC_* environment variables.
func (c *Config) ApplyEnv() {
	c.DiagFormat = env.Str("TLPC_DIAG_FORMAT", c.DiagFormat)
	c.Dialect.Package = env.Str("TLPC_DIALECT_PACKAGE", c.Dialect.Package)
	c.Metadata = env.Str("TLPC_METADATA", c.Metadata)
	if env.Bool("TLPC_NO_FORMAT") {
		c.Format = false
	}
}

// Validate checks that every dialect identifier is set and the diagnostic
// format is known.
func (c Config) Validate() error {
	names := []struct{ key, value string }{
		{"dialect.package", c.Dialect.Package},
		{"dialect.input_stream", c.Dialect.InputStream},
		{"dialect.output_stream", c.Dialect.OutputStream},
		{"dialect.task", c.Dialect.Task},
		{"dialect.invoke", c.Dialect.Invoke},
		{"dialect.new_stream", c.Dialect.NewStream},
	}
	for _, n := range names {
		if n.value == "" {
			return fmt.Errorf("%s must not be empty", n.key)
		}
	}
	switch c.DiagFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown diag_format %q (want text or json)", c.DiagFormat)
	}
	return nil
}
