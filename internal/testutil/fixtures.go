// Package testutil provides fixtures shared by package tests: sample Thing
// Descriptions, temporary stores and deterministic identifiers.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/thingdir/internal/document"
	"github.com/roach88/thingdir/internal/store"
)

// HumiditySensorID identifies the sample humidity sensor.
const HumiditySensorID = "urn:dev:ops:32473-HumiditySensor-001"

// HumiditySensorJSON is a complete Thing Description.
const HumiditySensorJSON = `{
  "@context": "https://www.w3.org/2019/wot/td/v1",
  "id": "urn:dev:ops:32473-HumiditySensor-001",
  "title": "Garden Humidity Sensor",
  "@type": "Thing",
  "securityDefinitions": {"nosec_sc": {"scheme": "nosec"}},
  "security": "nosec_sc",
  "properties": {
    "humidity": {
      "type": "number",
      "unit": "percent",
      "readOnly": true,
      "forms": [{"href": "https://sensor.example.com/humidity"}]
    }
  }
}`

// MustParse parses a JSON object or fails the test.
func MustParse(t testing.TB, raw string) document.Object {
	t.Helper()
	doc, err := document.ParseObject([]byte(raw))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

// HumiditySensor returns a fresh copy of the sample humidity sensor.
func HumiditySensor(t testing.TB) document.Object {
	t.Helper()
	return MustParse(t, HumiditySensorJSON)
}

// Thing returns a minimal valid Thing Description without an identifier.
func Thing(title string) document.Object {
	return document.Object{
		"@context":            document.String("https://www.w3.org/2019/wot/td/v1"),
		"title":               document.String(title),
		"securityDefinitions": document.Object{"nosec_sc": document.Object{"scheme": document.String("nosec")}},
		"security":            document.String("nosec_sc"),
	}
}

// OpenStore opens a store in a temporary directory and closes it when the
// test ends.
func OpenStore(t testing.TB, opts ...store.Option) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "thingdir.db"), opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
