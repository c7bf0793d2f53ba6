// Package finder drives the candidate search over a store's full-text
// index: given a query record, it fires a sequence of FTS lookups of
// decreasing specificity, scores every candidate it turns up against the
// query, and returns everything found within the configured limits.
package finder
