package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jitgraph/jitgraph/jit"
	"github.com/stretchr/testify/require"
)

func TestRunTraceFileEvaluatesSimpleAddition(t *testing.T) {
	require.NoError(t, jit.Init(jit.InitOptions{CacheDir: t.TempDir()}))
	defer jit.Shutdown(true)

	script := `[
		{"id": 0, "op": "lit", "type": "float32", "size": 4, "value": 1},
		{"id": 1, "op": "lit", "type": "float32", "size": 4, "value": 2},
		{"id": 2, "op": "add", "type": "float32", "size": 4, "deps": [0, 1]}
	]`
	path := filepath.Join(t.TempDir(), "trace.jg")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))

	result, err := RunTraceFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, result)
}

func TestRunTraceFileRejectsUnknownDependency(t *testing.T) {
	require.NoError(t, jit.Init(jit.InitOptions{CacheDir: t.TempDir()}))
	defer jit.Shutdown(true)

	script := `[{"id": 0, "op": "add", "type": "float32", "size": 4, "deps": [99]}]`
	path := filepath.Join(t.TempDir(), "trace.jg")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))

	_, err := RunTraceFile(path)
	require.Error(t, err)
}

func TestRunTraceFileRejectsEmptyScript(t *testing.T) {
	require.NoError(t, jit.Init(jit.InitOptions{CacheDir: t.TempDir()}))
	defer jit.Shutdown(true)

	path := filepath.Join(t.TempDir(), "trace.jg")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))

	_, err := RunTraceFile(path)
	require.Error(t, err)
}
