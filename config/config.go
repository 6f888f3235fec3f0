// Package config loads runtime settings for a mesh from YAML or TOML files.
//
// Files are overlaid onto Default(): keys that are absent keep their default
// value.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete runtime configuration.
type Config struct {
	Invocation InvocationConfig `yaml:"invocation" toml:"invocation"`
	Tracing    TracingConfig    `yaml:"tracing" toml:"tracing"`
	Graph      GraphConfig      `yaml:"graph" toml:"graph"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	// Agents maps agent names to the tools implementing them.
	Agents map[string]string `yaml:"agents" toml:"agents"`
}

// InvocationConfig bounds tool calls.
type InvocationConfig struct {
	MaxDepth int `yaml:"max_depth" toml:"max_depth"`
	// Timeout is the default per-call timeout; zero means unbounded.
	Timeout Duration `yaml:"timeout" toml:"timeout"`
	// ChainTimeout is the default chain budget; zero means unbounded.
	ChainTimeout        Duration `yaml:"chain_timeout" toml:"chain_timeout"`
	MaxBatchConcurrency int      `yaml:"max_batch_concurrency" toml:"max_batch_concurrency"`
}

// TracingConfig bounds the trace store.
type TracingConfig struct {
	MaxSpans    int    `yaml:"max_spans" toml:"max_spans"`
	MaxEvents   int    `yaml:"max_events" toml:"max_events"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

// GraphConfig bounds the handoff history.
type GraphConfig struct {
	MaxRecords int `yaml:"max_records" toml:"max_records"`
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	Level     string `yaml:"level" toml:"level"`
	Format    string `yaml:"format" toml:"format"`
	AddSource bool   `yaml:"add_source" toml:"add_source"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Invocation: InvocationConfig{
			MaxDepth:            core.DefaultMaxDepth,
			MaxBatchConcurrency: 8,
		},
		Tracing: TracingConfig{
			MaxSpans:    5000,
			MaxEvents:   10000,
			ServiceName: "toolmesh",
		},
		Graph: GraphConfig{
			MaxRecords: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Agents: map[string]string{},
	}
}

// Load reads a configuration file. The format follows the extension:
// .yaml/.yml or .toml.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	var cfg Config

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		cfg, err = ParseYAML(data)
	case ".toml":
		cfg, err = ParseTOML(data)
	default:
		return Config{}, fmt.Errorf("load config: unsupported extension %q", ext)
	}

	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}

	return cfg, nil
}

// ParseYAML overlays a YAML document onto Default and validates the result.
// Unknown keys are rejected.
func ParseYAML(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if cfg.Agents == nil {
		cfg.Agents = map[string]string{}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects non-positive bounds, negative timeouts and unknown
// logging settings.
func (c Config) Validate() error {
	var errs []error

	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.Invocation.MaxDepth > 0, "invocation.max_depth must be positive, got %d", c.Invocation.MaxDepth)
	check(c.Invocation.Timeout >= 0, "invocation.timeout must not be negative")
	check(c.Invocation.ChainTimeout >= 0, "invocation.chain_timeout must not be negative")
	check(c.Invocation.MaxBatchConcurrency > 0, "invocation.max_batch_concurrency must be positive, got %d", c.Invocation.MaxBatchConcurrency)
	check(c.Tracing.MaxSpans > 0, "tracing.max_spans must be positive, got %d", c.Tracing.MaxSpans)
	check(c.Tracing.MaxEvents > 0, "tracing.max_events must be positive, got %d", c.Tracing.MaxEvents)
	check(c.Graph.MaxRecords > 0, "graph.max_records must be positive, got %d", c.Graph.MaxRecords)

	_, err := logging.ParseLevel(c.Logging.Level)
	check(err == nil, "logging.level %q is unknown", c.Logging.Level)

	format := strings.ToLower(c.Logging.Format)
	check(format == "" || format == "text" || format == "json", "logging.format must be text or json, got %q", c.Logging.Format)

	for agent, toolName := range c.Agents {
		check(agent != "" && toolName != "", "agents entries need an agent and a tool name")
	}

	return errors.Join(errs...)
}

// NewLogger builds the logger described by the logging section.
func (c Config) NewLogger(out io.Writer) (*logging.ToolMeshLogger, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}

	cfg := logging.DefaultLoggerConfig()
	cfg.Level = level
	cfg.AddSource = c.Logging.AddSource
	cfg.Component = "toolmesh"

	if c.Logging.Format != "" {
		cfg.Format = strings.ToLower(c.Logging.Format)
	}

	if out != nil {
		cfg.Output = out
	}

	return logging.NewLogger(cfg), nil
}

// ContextOptions applies the invocation defaults to new root contexts.
func (c Config) ContextOptions() func(o *core.ContextOptions) {
	return func(o *core.ContextOptions) {
		o.MaxDepth = c.Invocation.MaxDepth
		o.Timeout = c.Invocation.Timeout.Std()
		o.ChainTimeout = c.Invocation.ChainTimeout.Std()
	}
}
