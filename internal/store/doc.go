// Package store provides the SQLite-backed index store with FTS5
// full-text search.
//
// It owns the `df` dataset table, the `fts_target` full-text index the
// Finder queries, and the per-column token-count tables the Scorer reads
// rarity from, plus the batched ingest pipeline that populates all three.
package store
