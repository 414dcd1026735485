package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thingdir/internal/queryir"
)

func TestQueryCompileText(t *testing.T) {
	out, err := execute(t, "query", "compile", `SELECT ?title WHERE { ?s td:title ?title }`)
	require.NoError(t, err)
	assert.Contains(t, out, "form:      SELECT")
	assert.Contains(t, out, "columns:   title")
	assert.Contains(t, out, "ORDER BY")
}

func TestQueryCompileJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "query", "compile", `SELECT ?s { ?s td:title "Lamp" }`)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   QueryPlan `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, queryir.FormSelect, resp.Data.Form)
	assert.True(t, resp.Data.ReadOnly)
	assert.True(t, resp.Data.ReportsIdentifiers)
	assert.Equal(t, []string{"s"}, resp.Data.Columns)
	assert.NotEmpty(t, resp.Data.SQL)
	assert.Contains(t, resp.Data.Args, "Lamp")
}

func TestQueryCompileUpdate(t *testing.T) {
	out, err := execute(t, "query", "compile", `DELETE WHERE { ?s ?p ?o }`)
	require.NoError(t, err)
	assert.Contains(t, out, "read-only: false")
	assert.NotContains(t, out, "SELECT")
}

func TestQueryCompileSyntaxError(t *testing.T) {
	out, err := execute(t, "--format", "json", "query", "compile", "SELECT ?s WHERE {")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeQuerySyntax, resp.Error.Code)
}
