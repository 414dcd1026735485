// Package directory is the resource lifecycle service of the Thing
// Directory.
//
// A Service owns the store, the event log and multiplexer, and the
// continuous query registry. Every mutation (Put, Patch, Delete, Create)
// runs under one mutex that is held across the store write and the
// notification, so:
//
//   - a document is visible in the cache if and only if its SQLite
//     transaction committed
//   - if mutation m1 returns before m2 starts, every event of m1 has a lower
//     sequence number than every event of m2
//   - each successful mutation emits exactly one thing_* event, followed by
//     one query_notification per continuous query the thing now satisfies
//
// Notification failures are logged and never undo a committed write.
package directory
