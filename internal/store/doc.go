// Package store provides SQLite-backed persistence for enrollment
// reconciliation.
//
// One Store implements every durable collaborator the engine needs:
//   - Policies: policies, their members, plans, and hbx id aliases
//   - Markers: idempotency markers keyed by (hbx id, action URI, content hash)
//   - Publisher: a confirmation outbox drained by a relay
//   - Acknowledger and Journal: notice dispositions and the per-batch action log
//
// # Idempotency
//
// Markers use UNIQUE(hbx_enrollment_id, action_uri, content_hash) with
// INSERT ... ON CONFLICT DO NOTHING; RowsAffected reports whether the
// marker is new. Outbox rows are keyed by the document hash, so
// republishing a confirmation never enqueues it twice.
//
// # Deterministic reads
//
// Every list query orders by its sequence column, then id COLLATE BINARY.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
