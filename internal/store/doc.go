// Package store manages the persistent run state backed by SQLite: raw
// posts, labeling decisions, run metadata, actor-run provenance, and final
// sample records. It is the single source of truth for resumability: seen
// keys, eligible counts, and per-owner counts are all reconstructable by
// querying it.
//
// Schema changes are expressed as embedded, forward-only migrations applied
// at most once each inside a transaction and tracked in a schema_migrations
// ledger, so opening the store is safe on every process start.
package store
