// Package db is the storage layer of Taskboard.
//
// One Adapter fronts either the embedded sqlite file store or a networked
// PostgreSQL/MySQL server. Callers write statements once, with ? placeholders,
// and the adapter's Dialect rewrites them for the active engine. Rows come
// back as Row maps whose values follow the semantic column types (text,
// integer, boolean, timestamp, uuid, json) regardless of how the engine
// stores them.
//
// Lifecycle
//   - New validates the configuration and the Table descriptors.
//   - Initialize opens the connection provider and reconciles the schema:
//     missing tables are created, missing columns added one statement at a
//     time, and each change recorded in schema_migrations. Nothing is ever
//     dropped, renamed or narrowed. A second run executes no DDL.
//   - Query, Execute and Transaction are only accepted once Initialize has
//     succeeded, and fail with ErrAdapterClosed after Close.
//
// Transactions
//   - The ctx passed to a TxFunc carries the transaction, so Adapter calls
//     made with it, including nested Transaction calls, join the enclosing
//     transaction instead of acquiring a new connection.
//
// Connections
//   - The embedded store has one handle guarded by a ctx-aware writer lock.
//     The networked pool is bounded by pool.min/pool.max.
//   - Acquisition waits at most acquire_timeout per attempt and retries
//     acquire_retries times with backoff before ErrPoolExhausted.
//
// Registry
//   - Registry keeps exactly one adapter per process and swaps it when the
//     configuration changes.
//
// Errors are *OpError values; use errors.Is with the Err* sentinels.
package db
