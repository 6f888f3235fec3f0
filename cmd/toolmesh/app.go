package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hupe1980/toolmesh"
	"github.com/hupe1980/toolmesh/config"
	"github.com/hupe1980/toolmesh/tracing"
)

// app carries the state shared by all commands.
type app struct {
	opts   *Options
	out    io.Writer
	errOut io.Writer
}

// newMesh builds a mesh from the configured file (or defaults) with the demo
// tools and agents registered.
func (a *app) newMesh() (*toolmesh.Mesh, error) {
	cfg := config.Default()

	if a.opts.Config != "" {
		loaded, err := config.Load(a.opts.Config)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	}

	if a.opts.Verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := cfg.NewLogger(a.errOut)
	if err != nil {
		return nil, err
	}

	m, err := toolmesh.NewFromConfig(cfg, func(o *toolmesh.Options) {
		o.Logger = logger.WithComponent("cli")
	})
	if err != nil {
		return nil, err
	}

	if err := registerDemo(m); err != nil {
		return nil, err
	}

	return m, nil
}

// printTrace writes the exported trace of corr in the given format.
func (a *app) printTrace(m *toolmesh.Mesh, corr, format string) error {
	f, err := tracing.ParseFormat(format)
	if err != nil {
		return err
	}

	doc, err := m.ExportTrace(corr, f)
	if err != nil {
		return err
	}

	return a.writeJSON(doc)
}

func (a *app) printDiagrams(m *toolmesh.Mesh, which string) {
	switch which {
	case "flow":
		fmt.Fprintln(a.out, m.Mermaid())
	case "sequence":
		fmt.Fprintln(a.out, m.SequenceDiagram())
	default:
		fmt.Fprintln(a.out, m.Mermaid())
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, m.SequenceDiagram())
	}
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// parseInput decodes a JSON object given inline or, with a leading '@', from
// a file. Empty input is an empty object.
func parseInput(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]any{}, nil
	}

	data := []byte(s)

	if path, ok := strings.CutPrefix(s, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}

		data = b
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}

	if out == nil {
		out = map[string]any{}
	}

	return out, nil
}
