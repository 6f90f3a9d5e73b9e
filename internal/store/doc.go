// Package store provides SQLite-backed durable storage for a graft workspace.
//
// The store keeps:
//   - Assets: hierarchies as canonical JSON documents, keyed by locator
//   - Import Records: one per instance, keyed by (destination, instance)
//   - Sync Runs: an append-only journal of import and update sessions
//
// # Critical Patterns
//
// Logical Time
//   - All ordering uses seq INTEGER (logical clock), never timestamps
//   - The workspace resumes its clock from LastSeq
//
// Deterministic Query Results
//   - Every list query has a total ORDER BY with COLLATE BINARY on text keys
//
// Atomic Commit
//   - CommitSync writes asset, record and run in one transaction
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Digests are computed by hierarchy.Digest over the canonical document.
package store
