package cli

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDocuments(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"b/lamp.json":   `{"title": "Lamp"}`,
		"a/sensor.json": `{"@id": "urn:sensor", "title": "Sensor"}`,
		"bad.json":      `[1, 2]`,
	})

	docs, errs := LoadDocuments(dir)
	require.Len(t, docs, 2)
	assert.Equal(t, "urn:sensor", docs[0].ID, "files load in path order")
	assert.Equal(t, "lamp", docs[1].ID, "file name stands in for a missing id")

	require.Len(t, errs, 1)
	var le *LoadError
	require.True(t, errors.As(errs[0], &le))
	assert.Equal(t, ErrCodeInvalidJSON, le.Code)
	assert.Equal(t, filepath.Join(dir, "bad.json"), le.Path)
}

func TestLoadDocuments_SingleFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"lamp.json": `{"id": "urn:lamp", "title": "Lamp"}`})

	docs, errs := LoadDocuments(filepath.Join(dir, "lamp.json"))
	assert.Empty(t, errs)
	require.Len(t, docs, 1)
	assert.Equal(t, "urn:lamp", docs[0].ID)
}
