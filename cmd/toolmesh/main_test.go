package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh/core"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	err := run(args, &out, io.Discard)

	return out.String(), err
}

func TestInvoke(t *testing.T) {
	out, err := runCLI(t, "invoke", "-t", "double", "-i", `{"value":5}`)
	require.NoError(t, err)

	var res core.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.Equal(t, 10.0, res.Data)
	assert.Equal(t, "double", res.Metadata.ToolName)
}

func TestInvoke_NestedWithTrace(t *testing.T) {
	out, err := runCLI(t, "invoke", "-t", "quadruple", "-i", `{"value":2}`, "--trace", "json")
	require.NoError(t, err)

	dec := json.NewDecoder(strings.NewReader(out))

	var res core.Result
	require.NoError(t, dec.Decode(&res))
	assert.Equal(t, 8.0, res.Data)

	var trace struct {
		Spans []map[string]any `json:"spans"`
	}
	require.NoError(t, dec.Decode(&trace))
	assert.Len(t, trace.Spans, 3)
}

func TestInvoke_InputFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "args.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1,"b":2}`), 0o600))

	out, err := runCLI(t, "invoke", "-t", "add", "-i", "@"+path)
	require.NoError(t, err)
	assert.Contains(t, out, `"data": 3`)
}

func TestInvoke_Errors(t *testing.T) {
	_, err := runCLI(t, "invoke", "-t", "missing")
	assert.ErrorIs(t, err, core.ErrToolNotFound)

	_, err = runCLI(t, "invoke", "-t", "double", "-i", "{")
	assert.ErrorContains(t, err, "decode input")

	_, err = runCLI(t, "invoke")
	var ferr *flags.Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, flags.ErrRequired, ferr.Type)
}

func TestInvoke_ValidationFailureIsAResult(t *testing.T) {
	out, err := runCLI(t, "invoke", "-t", "double", "-i", `{"value":"x"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"success": false`)
}

func TestRun(t *testing.T) {
	out, err := runCLI(t, "run", "-w", "testdata/pipeline.yaml", "-i", `{"value":1}`, "--trace", "otlp")
	require.NoError(t, err)

	dec := json.NewDecoder(strings.NewReader(out))

	var res struct {
		Success bool           `json:"success"`
		Outputs map[string]any `json:"outputs"`
	}
	require.NoError(t, dec.Decode(&res))
	assert.True(t, res.Success)
	assert.Equal(t, 8.0, res.Outputs["quad"])
	assert.Equal(t, map[string]any{"text": "Mock response to: Report: 8", "model": "demo-reporter"}, res.Outputs["summary"])

	assert.Contains(t, out, "graph LR")
	assert.Contains(t, out, "sequenceDiagram")
	assert.Contains(t, out, "resourceSpans")
}

func TestRun_MissingWorkflow(t *testing.T) {
	_, err := runCLI(t, "run", "-w", "testdata/nope.yaml")
	assert.ErrorContains(t, err, "read workflow")
}

func TestGraph(t *testing.T) {
	out, err := runCLI(t, "graph", "--format", "sequence")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "sequenceDiagram"))
	assert.Contains(t, out, "user->>doubler: handoff")
	assert.Contains(t, out, "quad->>reporter: handoff")
	assert.NotContains(t, out, "graph LR")
}

func TestTools(t *testing.T) {
	out, err := runCLI(t, "tools")
	require.NoError(t, err)

	for _, name := range []string{"double", "add", "quadruple", "report", "state_manager", "call_tool", "doubler", "reporter"} {
		assert.Contains(t, out, name)
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolmesh.toml")
	require.NoError(t, os.WriteFile(path, []byte("[invocation]\nmax_depth = 1\n"), 0o600))

	_, err := runCLI(t, "-c", path, "invoke", "-t", "quadruple", "-i", `{"value":1}`)
	assert.ErrorIs(t, err, core.ErrRecursionDepth)
}

func TestHelp(t *testing.T) {
	out, err := runCLI(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage")
}
