package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// ParseTOML overlays a TOML document onto Default and validates the result.
// Only keys present in the document replace defaults; unknown keys are
// rejected.
func ParseTOML(data []byte) (Config, error) {
	cfg := Default()

	var raw Config
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}

	if meta.IsDefined("invocation", "max_depth") {
		cfg.Invocation.MaxDepth = raw.Invocation.MaxDepth
	}
	if meta.IsDefined("invocation", "timeout") {
		cfg.Invocation.Timeout = raw.Invocation.Timeout
	}
	if meta.IsDefined("invocation", "chain_timeout") {
		cfg.Invocation.ChainTimeout = raw.Invocation.ChainTimeout
	}
	if meta.IsDefined("invocation", "max_batch_concurrency") {
		cfg.Invocation.MaxBatchConcurrency = raw.Invocation.MaxBatchConcurrency
	}
	if meta.IsDefined("tracing", "max_spans") {
		cfg.Tracing.MaxSpans = raw.Tracing.MaxSpans
	}
	if meta.IsDefined("tracing", "max_events") {
		cfg.Tracing.MaxEvents = raw.Tracing.MaxEvents
	}
	if meta.IsDefined("tracing", "service_name") {
		cfg.Tracing.ServiceName = strings.TrimSpace(raw.Tracing.ServiceName)
	}
	if meta.IsDefined("graph", "max_records") {
		cfg.Graph.MaxRecords = raw.Graph.MaxRecords
	}
	if meta.IsDefined("logging", "level") {
		cfg.Logging.Level = strings.TrimSpace(raw.Logging.Level)
	}
	if meta.IsDefined("logging", "format") {
		cfg.Logging.Format = strings.TrimSpace(raw.Logging.Format)
	}
	if meta.IsDefined("logging", "add_source") {
		cfg.Logging.AddSource = raw.Logging.AddSource
	}
	for agent, toolName := range raw.Agents {
		cfg.Agents[agent] = strings.TrimSpace(toolName)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
