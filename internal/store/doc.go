// Package store provides the document store clients the provisioning
// engine writes through.
//
// Two backends implement Client:
//   - Store: SQLite-backed, durable, namespaced by project id so several
//     tenants can share one database file
//   - Memory: mutex-guarded maps for tests and dry runs
//
// # Documents
//
// A document is addressed by (collection, key) and holds an ir.IRObject
// payload. Payloads are persisted as RFC 8785 canonical JSON next to
// their content hash (internal/ir/hash.go), so equality checks never
// need to re-serialize stored data.
//
// # Errors
//
// Every backend maps its failures onto the same three sentinels:
// ErrNotFound, ErrStoreUnavailable, and ErrPermissionDenied. Callers
// classify with errors.Is and never inspect driver errors.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
