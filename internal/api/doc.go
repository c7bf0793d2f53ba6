// Package api exposes the index store, finder and scorer over a small
// REST surface: ingest records, fetch one by id, run a fuzzy search,
// read store stats, and a health check.
package api
