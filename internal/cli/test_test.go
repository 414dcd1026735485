package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: lamp
steps:
  - op: put
    id: urn:lamp
    document: { title: Lamp }
    expect: created
assertions:
  - type: event_count
    kind: thing_created
    count: 1
`

const failingScenario = `name: wrong_count
steps:
  - op: put
    id: urn:lamp
    document: { title: Lamp }
assertions:
  - type: event_count
    kind: thing_deleted
    count: 1
`

func TestTestCommand_Passing(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a/lamp.yaml": passingScenario,
		"notes.md":    "ignored",
	})

	out, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ lamp")
	assert.Contains(t, out, "All 1 scenario(s) passed")
}

func TestTestCommand_FailingJSON(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"lamp.yaml":   passingScenario,
		"wrong.yml":   failingScenario,
		"broken.yaml": "name: broken\nsteps: [{op: teleport}]\n",
	})

	out, err := execute(t, "--format", "json", "test", "--trace", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Data.Pass)
	require.Len(t, resp.Data.Scenarios, 3)

	byPath := map[string]ScenarioResult{}
	for _, s := range resp.Data.Scenarios {
		byPath[filepath.Base(s.Path)] = s
	}
	assert.False(t, byPath["broken.yaml"].Pass)
	assert.Contains(t, byPath["broken.yaml"].Errors[0], `unknown op "teleport"`)
	assert.True(t, byPath["lamp.yaml"].Pass)
	assert.JSONEq(t,
		`{"events":[{"id":"urn:lamp","kind":"thing_created","seq":1,"step":1}],"scenario":"lamp","steps":[{"id":"urn:lamp","op":"put","outcome":"created"}]}`,
		string(byPath["lamp.yaml"].Trace))
	assert.False(t, byPath["wrong.yml"].Pass)
	assert.Contains(t, byPath["wrong.yml"].Errors[0], "expected 1 events, got 0")
}

func TestTestCommand_NoFiles(t *testing.T) {
	dir := writeFiles(t, map[string]string{"notes.md": "x"})
	_, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "test", filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
