// Package storage persists relay state.
//
// Three implementations share the Store interface: SQLite (modernc.org/sqlite,
// the default), PostgreSQL (lib/pq) and an in-memory store for tests. The SQL
// backends keep the anti-replay ledger in a users table and enforce the
// monotonic timestamp rule with a single conditional upsert, so concurrent
// relay requests from one key cannot both pass.
package storage
