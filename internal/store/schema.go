package store

import "fmt"

// SchemaVersion tags the static schema shape. Per-column token-count
// tables are created dynamically and are not part of this version.
const SchemaVersion = 1

// CoreSchema defines the dataset table, the key-value state table used to
// track counter-sync status, and a schema_version bookkeeping table.
const CoreSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
INSERT OR IGNORE INTO schema_version (version) VALUES (1);

-- df holds every ingested record: its original field map as JSON plus the
-- concatenation of all its tokens (including phonetic variants), which
-- fts_target indexes for full text search.
CREATE TABLE IF NOT EXISTS df (
	unique_id TEXT NOT NULL PRIMARY KEY,
	original_record TEXT NOT NULL,
	concat_all TEXT NOT NULL
);

-- db_state is a small key-value table for flags that must survive a
-- process restart, notably whether column counters and the stats tables
-- built from them are known to be in sync with df.
CREATE TABLE IF NOT EXISTS db_state (
	key TEXT NOT NULL PRIMARY KEY,
	value TEXT NOT NULL
);
`

// FTSSchema creates the FTS5 virtual table the Finder's candidate searches
// query. Unlike the FTS5 table in the original dataset, this one is kept
// continuously in sync with df via triggers rather than rebuilt wholesale
// on every stats pass, since ingest here is incremental rather than a
// single bulk load.
const FTSSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS fts_target USING fts5(
	unique_id UNINDEXED,
	concat_all
);

CREATE TRIGGER IF NOT EXISTS df_fts_insert AFTER INSERT ON df BEGIN
	INSERT INTO fts_target(rowid, unique_id, concat_all)
	VALUES (new.rowid, new.unique_id, new.concat_all);
END;

CREATE TRIGGER IF NOT EXISTS df_fts_delete AFTER DELETE ON df BEGIN
	DELETE FROM fts_target WHERE rowid = old.rowid;
END;

CREATE TRIGGER IF NOT EXISTS df_fts_update AFTER UPDATE ON df BEGIN
	UPDATE fts_target SET unique_id = new.unique_id, concat_all = new.concat_all
	WHERE rowid = new.rowid;
END;
`

// tokenCountsTableName returns the per-column counter table name for col.
func tokenCountsTableName(col string) string {
	return fmt.Sprintf("%s_token_counts", col)
}

// createTokenCountsTableSQL returns the DDL to create col's token-count
// table and its lookup index, matching the original dataset's
// `<col>_token_counts (token, token_count, token_proportion)` shape.
func createTokenCountsTableSQL(col string) string {
	table := tokenCountsTableName(col)
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	token TEXT NOT NULL PRIMARY KEY,
	token_count INTEGER NOT NULL DEFAULT 0,
	token_proportion REAL
);
CREATE INDEX IF NOT EXISTS %s_idx ON %s (token);
`, table, table, table)
}

// dbStateKey names for the db_state key-value table, matching spec.md
// §4.C/§7's literal, separately-keyed state schema.
const (
	stateKeyUniqueIDCol    = "unique_id_col"
	stateKeyColsToIgnore   = "cols_to_ignore"
	stateKeyDmetaCols      = "dmeta_cols"
	stateKeyCountersInSync = "col_counters_in_sync"
)
