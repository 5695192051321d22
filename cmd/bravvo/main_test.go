package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "memory")
	t.Setenv("ARTIFACT_STORAGE_TYPE", "memory")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("BRAVVO_PROFILE", "")
	t.Setenv("LOG_LEVEL", "ERROR")
}

func decodeResults(t *testing.T, out string) []map[string]any {
	t.Helper()
	var results []map[string]any
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var r map[string]any
		require.NoError(t, dec.Decode(&r))
		results = append(results, r)
	}
	return results
}

func TestRun_Usage(t *testing.T) {
	setEnv(t)
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, Run([]string{"bravvo"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage: bravvo")

	stderr.Reset()
	assert.Equal(t, 2, Run([]string{"bravvo", "launch"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Unknown command: launch")

	assert.Equal(t, 0, Run([]string{"bravvo", "version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "bravvo dev")

	stderr.Reset()
	assert.Equal(t, 2, Run([]string{"bravvo", "run"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "--script is required")
}

func TestRun_Script(t *testing.T) {
	setEnv(t)
	var stdout, stderr bytes.Buffer

	code := Run([]string{"bravvo", "run", "--script", filepath.Join("testdata", "launch.yaml")}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	results := decodeResults(t, stdout.String())
	require.Len(t, results, 13)
	for _, r := range results {
		assert.Equal(t, true, r["expected"], "step %v (%v)", r["step"], r["op"])
	}

	applied := results[9]["envelope"].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, "approved", applied["status"])
	assert.Equal(t, "1.1.0", applied["version"])

	events := results[11]["envelope"].(map[string]any)["data"].([]any)
	assert.Len(t, events, 2)
}

func TestRun_ScriptFailureStops(t *testing.T) {
	setEnv(t)
	path := filepath.Join(t.TempDir(), "blocked.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
fixtures:
  vault_analysis: [{summary: ok, score: 60}]
  gap_detection: [{gaps: []}]
steps:
  - op: mark_vault_complete
    vault: brand
    content: {mission: x}
  - op: generate_command_center
  - op: get_state
`), 0o600))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, Run([]string{"bravvo", "run", "--script", path}, &stdout, &stderr))
	results := decodeResults(t, stdout.String())
	require.Len(t, results, 2)
	env := results[1]["envelope"].(map[string]any)
	assert.Equal(t, "gated", env["error"].(map[string]any)["code"])
}

func TestRun_Weights(t *testing.T) {
	setEnv(t)
	signals := filepath.Join(t.TempDir(), "signals.yaml")
	require.NoError(t, os.WriteFile(signals, []byte(`
- {source: vaults, strength: 0.8, direction: increase}
- {source: performance, strength: 0.9, direction: decrease}
`), 0o600))

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, Run([]string{"bravvo", "weights", "--signals", signals}, &stdout, &stderr), stderr.String())

	var report weightsReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Contains(t, report.Presets, "seasonal")
	require.NotNil(t, report.Recommendation)
	assert.Equal(t, "increase", string(report.Recommendation.Action))

	stderr.Reset()
	assert.Equal(t, 2, Run([]string{"bravvo", "weights", "--preset", "nope"}, &stdout, &stderr))
}

func TestRun_Schedule(t *testing.T) {
	setEnv(t)
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, Run([]string{"bravvo", "schedule", "--period-end", "2024-06-09"}, &stdout, &stderr), stderr.String())

	var window map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &window))
	assert.Equal(t, "weekly", window["frequency"])
	assert.Equal(t, "2024-06-10", window["start"])
	assert.Equal(t, "2024-06-16", window["end"])

	stdout.Reset()
	require.Equal(t, 0, Run([]string{"bravvo", "schedule", "--period-end", "2024-06-09", "--frequency", "monthly"}, &stdout, &stderr))
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &window))
	assert.Equal(t, "2024-07-01", window["start"])

	assert.Equal(t, 2, Run([]string{"bravvo", "schedule"}, &stdout, &stderr))
}
