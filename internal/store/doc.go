// Package store keeps Thing Descriptions in two representations that must
// never disagree: a SQLite graph store (documents plus their triples) and an
// in-memory cache of documents keyed by thing identifier.
//
// # Consistency
//
// Every mutation runs inside a WriteTx. SQL statements execute against the
// transaction while cache changes are only staged; the staged changes are
// applied after the SQLite commit returns successfully. A failed commit or a
// rollback discards them, so a document is visible in the cache if and only
// if its rows are durable.
//
// The store's RWMutex is held for writing from BeginWrite until Commit or
// Rollback. Cache reads and graph queries take the read lock and therefore
// observe either the state before a mutation or the state after it.
//
// # Ordering
//
// Every query orders its rows with COLLATE BINARY so results are identical
// across runs and SQLite versions.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON: triples cascade with their thing
package store
