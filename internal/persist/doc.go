// Package persist provides SQLite-backed persistence for a store.
//
// Two tables are kept:
//   - snapshots: canonical JSON dumps of the store, hashed for deduplication
//   - actions: an append-only log of finalized actions, in dispatch order
//
// # Critical Patterns
//
// Dumps are only taken and loaded while the store is not running, so a
// snapshot always describes a state between passes. Restore before Start,
// Checkpoint after Stop.
//
// Logged actions carry their dispatch seq, but the log is ordered by pos:
// seq restarts with each store unless the clock is resumed from LastSeq.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: wait for locks up to 5 seconds
package persist
