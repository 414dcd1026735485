// Package harness runs directory scenarios: scripted mutations and
// continuous-query registrations executed against a real Service over a
// fresh SQLite database, followed by assertions on the emitted events.
//
// # Scenario Format
//
//	name: humidity_sensor
//	description: "A registered query is notified once per matching write"
//	steps:
//	  - op: register
//	    query: 'SELECT ?s WHERE { ?s td:title "Garden Humidity Sensor" }'
//	  - op: put
//	    id: urn:dev:ops:32473-HumiditySensor-001
//	    document: { title: Garden Humidity Sensor }
//	    expect: created
//	  - op: delete
//	    id: urn:dev:ops:32473-HumiditySensor-001
//	assertions:
//	  - type: event_order
//	    events:
//	      - { kind: thing_created, id: "urn:dev:ops:32473-HumiditySensor-001" }
//	      - { kind: query_notification, subscription: 1 }
//	  - type: no_event
//	    kind: query_notification
//	    after_step: 3
//
// # Steps
//
//   - put: create or replace id with document (expect created or updated)
//   - create: anonymous registration; ids are urn:scenario:thing-1, -2, ...
//   - patch: merge document into id
//   - delete: remove id
//   - register: register query as a continuous query (accept optional)
//   - revoke: revoke subscription
//
// Every step may name the outcome it expects: ok, created, updated or an
// error code such as not_found or invalid_document. Steps without expect
// must succeed.
//
// # Assertion Types
//
//   - event_order: the listed events occur in this relative order
//   - event_count: exactly count events match kind, id and subscription
//   - no_event: no matching event was emitted after step after_step
//   - thing_exists: id is (exists: true) or is not stored
//
// # Determinism
//
// Sequence numbers start at 1 and generated identifiers are sequential, so
// a scenario always produces the same trace. RunWithGolden compares that
// trace, as canonical JSON, against testdata/golden/<name>.golden.
package harness
