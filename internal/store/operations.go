package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"runtime"
	"strings"

	"github.com/alitto/pond"

	"github.com/moj-analytical-services/fuzzyfinder-go/internal/record"
)

// errors surfaced by the store.
var (
	ErrConfigConflict = fmt.Errorf("store: requested configuration conflicts with an already-initialised store")
	ErrStorage        = fmt.Errorf("store: underlying storage error")
)

// WriteStats summarises one WriteBatch call.
type WriteStats struct {
	RecordsWritten int
	RecordsSkipped int // duplicate unique_id, ignored like the dataset does
}

// chunkResult is what a single ingest worker produces for one record: the
// row ready for the df table, and that record's contribution to each
// column's token counts.
type chunkResult struct {
	uniqueID       string
	originalJSON   string
	concatAll      string
	perColumnCount map[string]map[string]int
	err            error
}

// WriteBatch tokenises and ingests every record from records in batches of
// batchSize, using a bounded worker pool for the CPU-bound tokenisation
// work. Workers never touch the store; only the calling goroutine issues
// SQL, so SQLite's single-writer constraint is never contended.
//
// If the store has no unique_id_col yet, uniqueIDCol is adopted and
// persisted as its identity column (spec.md §4.C step 1); a later call
// naming a different column fails with ErrConfigConflict.
//
// A record whose unique_id already exists in df is skipped, mirroring the
// dataset's "ignore on duplicate" behaviour, and adds nothing to the
// counters. Per-column token counts of the inserted records are merged
// into the `<col>_token_counts` tables in the same transaction as each
// batch, whatever writeCountersNow says; writeCountersNow only decides
// whether col_counters_in_sync is set to "true" or "false" afterwards.
// token_proportion is not updated here in either case: it is recomputed
// only by BuildOrReplaceStatsTables.
func (s *Store) WriteBatch(ctx context.Context, records iter.Seq[map[string]string], uniqueIDCol string, batchSize int, writeCountersNow bool) (WriteStats, error) {
	if batchSize < 1 {
		batchSize = 1
	}

	if err := s.adoptUniqueIDCol(uniqueIDCol); err != nil {
		return WriteStats{}, err
	}

	colsToIgnore := s.colsToIgnore
	dmetaCols := s.dmetaCols

	stats := WriteStats{}
	var columns []string

	batch := make([]map[string]any, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if columns == nil {
			columns = columnsExceptID(batch[0], uniqueIDCol)
			if err := s.ensureTokenCountTables(columns); err != nil {
				return err
			}
		}

		written, skipped, err := s.writeRecordChunk(ctx, batch, uniqueIDCol, colsToIgnore, dmetaCols, columns)
		if err != nil {
			return err
		}
		stats.RecordsWritten += written
		stats.RecordsSkipped += skipped
		batch = batch[:0]
		return nil
	}

	for rec := range records {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		batch = append(batch, stringMapToAny(rec))
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}

	if err := s.setCountersInSync(writeCountersNow); err != nil {
		return stats, err
	}

	return stats, nil
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func columnsExceptID(fields map[string]any, uniqueIDCol string) []string {
	cols := make([]string, 0, len(fields))
	for c := range fields {
		if c != uniqueIDCol {
			cols = append(cols, c)
		}
	}
	return cols
}

// ensureTokenCountTables lazily creates the `<col>_token_counts` table for
// every column in cols that hasn't been seen before, matching the
// dataset's behaviour of deriving its per-column tables from the first
// ingested record's column set.
func (s *Store) ensureTokenCountTables(cols []string) error {
	s.columnsSeenMu.Lock()
	defer s.columnsSeenMu.Unlock()

	var missing []string
	for _, c := range cols {
		if !s.columnsSeen[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range missing {
		if _, err := s.db.Exec(createTokenCountsTableSQL(c)); err != nil {
			return fmt.Errorf("failed to create token counts table for column %q: %w", c, err)
		}
	}
	for _, c := range missing {
		s.columnsSeen[c] = true
	}
	return nil
}

// writeRecordChunk tokenises chunk in parallel with a bounded worker pool,
// then performs the bulk insert, falling back to row-by-row insertion so
// that one duplicate id doesn't abort the whole chunk.
func (s *Store) writeRecordChunk(ctx context.Context, chunk []map[string]any, uniqueIDCol string, colsToIgnore, dmetaCols, columns []string) (written, skipped int, err error) {
	results := make([]chunkResult, len(chunk))

	maxWorkers := 0 // 0 makes workerCount use runtime.NumCPU()
	pool := pond.New(workerCount(maxWorkers), len(chunk))
	for i, fields := range chunk {
		i, fields := i, fields
		pool.Submit(func() {
			results[i] = tokeniseRecord(fields, uniqueIDCol, colsToIgnore, dmetaCols)
		})
	}
	pool.StopAndWait()

	for _, r := range results {
		if r.err != nil {
			return written, skipped, r.err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return written, skipped, fmt.Errorf("failed to begin ingest transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	mergedCounts := make(map[string]map[string]int, len(columns))
	for _, c := range columns {
		mergedCounts[c] = make(map[string]int)
	}

	if err := bulkInsert(tx, results, &written, &skipped); err != nil {
		log.Warn("bulk insert failed, falling back to row-by-row", "error", err)
		tx.Rollback() //nolint:errcheck
		tx, err = s.db.Begin()
		if err != nil {
			return written, skipped, fmt.Errorf("failed to restart ingest transaction: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck
		written, skipped = 0, 0
		if err := insertRowByRow(tx, results, &written, &skipped); err != nil {
			return written, skipped, err
		}
	}

	for _, r := range results {
		for col, counts := range r.perColumnCount {
			for tok, n := range counts {
				mergedCounts[col][tok] += n
			}
		}
	}

	if err := mergeTokenCounts(tx, mergedCounts); err != nil {
		return written, skipped, err
	}

	if err := tx.Commit(); err != nil {
		return written, skipped, fmt.Errorf("failed to commit ingest transaction: %w", err)
	}

	return written, skipped, nil
}

func workerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	return runtime.NumCPU()
}

func tokeniseRecord(fields map[string]any, uniqueIDCol string, colsToIgnore, dmetaCols []string) chunkResult {
	rec, err := record.New(fields, uniqueIDCol, colsToIgnore, dmetaCols)
	if err != nil {
		return chunkResult{err: err}
	}

	jsonBytes, err := json.Marshal(fields)
	if err != nil {
		return chunkResult{err: fmt.Errorf("failed to marshal record: %w", err)}
	}

	byCol := rec.TokensWithPhoneticByColumn()
	perColumnCount := make(map[string]map[string]int, len(byCol))
	for col, toks := range byCol {
		counts := make(map[string]int, len(toks))
		for _, t := range toks {
			counts[t]++
		}
		perColumnCount[col] = counts
	}

	return chunkResult{
		uniqueID:       fmt.Sprintf("%v", rec.ID()),
		originalJSON:   string(jsonBytes),
		concatAll:      rec.ConcatAll(),
		perColumnCount: perColumnCount,
	}
}

func bulkInsert(tx *sql.Tx, results []chunkResult, written, skipped *int) error {
	stmt, err := tx.Prepare("INSERT INTO df (unique_id, original_record, concat_all) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.Exec(r.uniqueID, r.originalJSON, r.concatAll); err != nil {
			return err
		}
		*written++
	}
	return nil
}

// insertRowByRow inserts one record at a time, skipping (not failing on)
// unique_id collisions, matching the dataset's "ignore duplicate, keep
// going" integrity handling.
func insertRowByRow(tx *sql.Tx, results []chunkResult, written, skipped *int) error {
	stmt, err := tx.Prepare("INSERT INTO df (unique_id, original_record, concat_all) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range results {
		if _, err := stmt.Exec(r.uniqueID, r.originalJSON, r.concatAll); err != nil {
			if isUniqueConstraintErr(err) {
				log.Debug("record id already exists, skipping", "unique_id", r.uniqueID)
				// A skipped record contributes nothing to the token counters.
				results[i].perColumnCount = nil
				*skipped++
				continue
			}
			return err
		}
		*written++
	}
	return nil
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// mergeTokenCounts commutatively adds counts into each column's
// token-count table: an existing token gets its count incremented, a new
// one is inserted with the count as its starting value.
func mergeTokenCounts(tx *sql.Tx, counts map[string]map[string]int) error {
	for col, tokenCounts := range counts {
		if len(tokenCounts) == 0 {
			continue
		}
		table := tokenCountsTableName(col)

		upsert, err := tx.Prepare(fmt.Sprintf(`
			INSERT INTO %s (token, token_count) VALUES (?, ?)
			ON CONFLICT(token) DO UPDATE SET token_count = token_count + excluded.token_count
		`, table))
		if err != nil {
			return fmt.Errorf("failed to prepare counter merge for column %q: %w", col, err)
		}

		for tok, n := range tokenCounts {
			if _, err := upsert.Exec(tok, n); err != nil {
				upsert.Close()
				return fmt.Errorf("failed to merge counter for column %q token %q: %w", col, tok, err)
			}
		}
		upsert.Close()
	}
	return nil
}

// setCountersInSync records whether the counter tables are known to
// reflect df as of this write. It is persisted so a later process restart
// still knows a rebuild via BuildOrReplaceStatsTables is owed.
func (s *Store) setCountersInSync(inSync bool) error {
	return s.setState(stateKeyCountersInSync, boolToState(inSync))
}

// CountersInSync reports whether the per-column counters are believed to
// be in sync with df's current contents.
func (s *Store) CountersInSync() (bool, error) {
	v, ok, err := s.getState(stateKeyCountersInSync)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return v == "true", nil
}

func boolToState(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (s *Store) setState(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO db_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (s *Store) getState(key string) (value string, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	err = s.db.QueryRow("SELECT value FROM db_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// BuildOrReplaceStatsTables recomputes token_proportion for every known
// column's token-count table from the current token_count values, using
// sum(token_count) (not count(*)) as the denominator so proportion is a
// true share of token occurrences within the column, and flags the
// counters as in sync afterward.
func (s *Store) BuildOrReplaceStatsTables(ctx context.Context) error {
	s.columnsSeenMu.Lock()
	columns := make([]string, 0, len(s.columnsSeen))
	for c := range s.columnsSeen {
		columns = append(columns, c)
	}
	s.columnsSeenMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, col := range columns {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		table := tokenCountsTableName(col)
		_, err := s.db.Exec(fmt.Sprintf(`
			UPDATE %s
			SET token_proportion = CAST(token_count AS REAL) / (SELECT SUM(token_count) FROM %s)
		`, table, table))
		if err != nil {
			return fmt.Errorf("failed to recompute proportions for column %q: %w", col, err)
		}
	}

	if _, err := s.db.Exec(`INSERT INTO db_state (key, value) VALUES (?, 'true') ON CONFLICT(key) DO UPDATE SET value = 'true'`, stateKeyCountersInSync); err != nil {
		return fmt.Errorf("failed to mark counters in sync: %w", err)
	}

	return nil
}

// TokenProportion implements record.ProbabilityLookup against this store's
// `<col>_token_counts` tables.
func (s *Store) TokenProportion(column, tok string) (record.TokenProportion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table := tokenCountsTableName(column)
	var proportion sql.NullFloat64
	err := s.db.QueryRow(fmt.Sprintf("SELECT token_proportion FROM %s WHERE token = ?", table), tok).Scan(&proportion)
	if err == sql.ErrNoRows {
		return record.TokenProportion{Token: tok, Exists: false}, nil
	}
	if err != nil {
		return record.TokenProportion{}, fmt.Errorf("failed to look up proportion for column %q token %q: %w", column, tok, err)
	}
	if !proportion.Valid {
		// Counted but stats tables not yet (re)built from the counts.
		return record.TokenProportion{Token: tok, Exists: false}, nil
	}
	return record.TokenProportion{Token: tok, Proportion: proportion.Float64, Exists: true}, nil
}

// FTSMatch is one row returned by a full-text query against fts_target.
type FTSMatch struct {
	UniqueID  string
	BM25Score float64
}

// QueryFTS runs query (already-escaped MATCH syntax) against fts_target
// and returns up to limit matching unique_ids ranked by bm25, used by the
// Finder's candidate search strategies.
func (s *Store) QueryFTS(ctx context.Context, query string, limit int) ([]FTSMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT unique_id, bm25(fts_target) AS bm25_score FROM fts_target WHERE fts_target MATCH ? LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fts query failed: %w", err)
	}
	defer rows.Close()

	var out []FTSMatch
	for rows.Next() {
		var id string
		var bm25 float64
		if err := rows.Scan(&id, &bm25); err != nil {
			return nil, err
		}
		out = append(out, FTSMatch{UniqueID: id, BM25Score: bm25})
	}
	return out, rows.Err()
}

// GetRecord loads a record's original field map by unique_id.
func (s *Store) GetRecord(ctx context.Context, uniqueID string) (map[string]any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT original_record FROM df WHERE unique_id = ?", uniqueID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load record %q: %w", uniqueID, err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, false, fmt.Errorf("failed to decode record %q: %w", uniqueID, err)
	}
	return fields, true, nil
}

// approxEqual is used by tests comparing computed proportions, kept here
// since it is store-specific floating point tolerance.
func approxEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}
