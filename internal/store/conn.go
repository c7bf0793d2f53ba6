// Package store is the embedded SQLite-backed index store: the `df`
// dataset table, the FTS5 full-text index the Finder queries, and the
// per-column token-count tables the Scorer reads rarity from.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/moj-analytical-services/fuzzyfinder-go/internal/logging"
)

var log = logging.GetLogger("store")

// Store wraps a SQLite connection holding the dataset, its FTS5 index and
// its per-column token-count tables. SQLite only supports one writer at a
// time, so all mutating access goes through mu.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex

	uniqueIDCol  string
	colsToIgnore []string
	dmetaCols    []string // nil means every indexed column gets phonetic variants

	// columnsSeen tracks which <col>_token_counts tables have already been
	// created, avoiding a schema lookup on every ingest batch.
	columnsSeen   map[string]bool
	columnsSeenMu sync.Mutex
}

// Option configures a Store at Open time. WithColsToIgnore and
// WithDmetaCols only take effect the first time a path is opened; on a
// later reopen they are compared against the persisted configuration and
// a mismatch returns ErrConfigConflict.
type Option func(*openOptions)

type openOptions struct {
	busyTimeout  time.Duration
	colsToIgnore []string
	dmetaCols    []string
	dmetaColsSet bool
}

// WithBusyTimeout overrides the default SQLite busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *openOptions) { o.busyTimeout = d }
}

// WithColsToIgnore excludes the named columns from indexing and scoring.
func WithColsToIgnore(cols []string) Option {
	return func(o *openOptions) { o.colsToIgnore = cols }
}

// WithDmetaCols restricts phonetic-variant generation to the named
// columns. Omit this option to generate variants for every indexed
// column.
func WithDmetaCols(cols []string) Option {
	return func(o *openOptions) {
		o.dmetaCols = cols
		o.dmetaColsSet = true
	}
}

// Open opens (creating if necessary) the index store at path and ensures
// its static schema exists. A brand-new store has no unique id column yet
// ("unique_id_col=null" in db_state); the first WriteBatch call adopts and
// persists whichever column it is given, and every later WriteBatch or
// reopen is checked against that persisted choice.
func Open(path string, opts ...Option) (*Store, error) {
	o := &openOptions{busyTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(o)
	}

	log.Info("opening store", "path", path)

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Error("failed to create store directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, o.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.Error("failed to open store", "error", err)
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// SQLite only supports one writer; a single shared connection keeps
	// writes serialised without relying on database/sql's pool semantics.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		log.Error("failed to ping store", "error", err)
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	s := &Store{
		db:          db,
		path:        path,
		columnsSeen: make(map[string]bool),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.reconcileConfig(o); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.loadColumnsSeen(); err != nil {
		db.Close()
		return nil, err
	}

	if inSync, err := s.CountersInSync(); err == nil && !inSync {
		log.Warn("column counters are not known to be in sync with stored records; call BuildOrReplaceStatsTables before relying on search rarity")
	}

	log.Info("store ready", "path", path)
	return s, nil
}

// reconcileConfig persists cols_to_ignore/dmeta_cols/unique_id_col as the
// three separately-named db_state keys spec.md §4.C/§7 specify on a
// brand-new store, together with col_counters_in_sync="true", or validates
// the cols_to_ignore/dmeta_cols passed in o (when passed) against the
// previously-persisted ones on reopen and loads whatever unique_id_col a
// prior WriteBatch already adopted.
func (s *Store) reconcileConfig(o *openOptions) error {
	existingIgnore, ignoreOK, err := s.getState(stateKeyColsToIgnore)
	if err != nil {
		return fmt.Errorf("failed to read persisted cols_to_ignore: %w", err)
	}
	existingDmeta, dmetaOK, err := s.getState(stateKeyDmetaCols)
	if err != nil {
		return fmt.Errorf("failed to read persisted dmeta_cols: %w", err)
	}

	wantIgnore := sortedCopy(o.colsToIgnore)
	var wantDmeta []string
	if o.dmetaColsSet {
		wantDmeta = sortedCopy(o.dmetaCols)
	}

	if !ignoreOK && !dmetaOK {
		encodedIgnore, err := encodeStringSlice(wantIgnore)
		if err != nil {
			return fmt.Errorf("failed to encode cols_to_ignore: %w", err)
		}
		encodedDmeta := "null"
		if o.dmetaColsSet {
			encodedDmeta, err = encodeStringSlice(wantDmeta)
			if err != nil {
				return fmt.Errorf("failed to encode dmeta_cols: %w", err)
			}
		}
		if err := s.setState(stateKeyColsToIgnore, encodedIgnore); err != nil {
			return err
		}
		if err := s.setState(stateKeyDmetaCols, encodedDmeta); err != nil {
			return err
		}
		if err := s.setState(stateKeyUniqueIDCol, "null"); err != nil {
			return err
		}
		if err := s.setState(stateKeyCountersInSync, boolToState(true)); err != nil {
			return err
		}
		s.colsToIgnore = wantIgnore
		s.dmetaCols = wantDmeta
		return nil
	}

	haveIgnore, err := decodeStringSlice(existingIgnore)
	if err != nil {
		return fmt.Errorf("failed to decode persisted cols_to_ignore: %w", err)
	}
	haveDmeta, err := decodeStringSlice(existingDmeta)
	if err != nil {
		return fmt.Errorf("failed to decode persisted dmeta_cols: %w", err)
	}
	haveDmetaSet := existingDmeta != "null"

	if (o.colsToIgnore != nil && !stringSlicesEqual(haveIgnore, wantIgnore)) ||
		(o.dmetaColsSet && (!haveDmetaSet || !stringSlicesEqual(haveDmeta, wantDmeta))) {
		log.Warn("requested store configuration conflicts with the configuration it was created with",
			"path", s.path,
			"persisted_cols_to_ignore", haveIgnore, "requested_cols_to_ignore", wantIgnore,
			"persisted_dmeta_cols", haveDmeta, "requested_dmeta_cols", wantDmeta)
		return ErrConfigConflict
	}

	// Reopen without an explicit dmeta/ignore preference inherits what was
	// persisted, rather than silently narrowing the store's behaviour.
	s.colsToIgnore = haveIgnore
	if haveDmetaSet {
		s.dmetaCols = haveDmeta
	}

	uniqueIDCol, ok, err := s.getState(stateKeyUniqueIDCol)
	if err != nil {
		return fmt.Errorf("failed to read persisted unique_id_col: %w", err)
	}
	if ok && uniqueIDCol != "null" {
		s.uniqueIDCol = uniqueIDCol
	}
	return nil
}

// encodeStringSlice serialises a cols_to_ignore/dmeta_cols value the way
// spec.md's state-key schema expects: "null" for an absent list, otherwise
// a JSON array (even when empty, which is distinct from absent).
func encodeStringSlice(xs []string) (string, error) {
	if xs == nil {
		return "null", nil
	}
	encoded, err := json.Marshal(xs)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// decodeStringSlice is encodeStringSlice's inverse.
func decodeStringSlice(s string) ([]string, error) {
	if s == "" || s == "null" {
		return nil, nil
	}
	var xs []string
	if err := json.Unmarshal([]byte(s), &xs); err != nil {
		return nil, err
	}
	return xs, nil
}

// adoptUniqueIDCol is WriteBatch's step 1 (spec.md §4.C): the first write
// to a store establishes its unique_id_col and persists it under its own
// db_state key; every later write or reopen is checked against it.
func (s *Store) adoptUniqueIDCol(uniqueIDCol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uniqueIDCol != "" {
		if s.uniqueIDCol != uniqueIDCol {
			log.Warn("write_batch called with a different unique id column than the store was first written with",
				"path", s.path, "persisted", s.uniqueIDCol, "requested", uniqueIDCol)
			return ErrConfigConflict
		}
		return nil
	}

	if _, err := s.db.Exec(`
		INSERT INTO db_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, stateKeyUniqueIDCol, uniqueIDCol); err != nil {
		return fmt.Errorf("failed to persist unique id column: %w", err)
	}

	s.uniqueIDCol = uniqueIDCol
	return nil
}

func sortedCopy(in []string) []string {
	if in == nil {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// loadColumnsSeen discovers which `<col>_token_counts` tables already
// exist, so a reopened store doesn't try to recreate them.
func (s *Store) loadColumnsSeen() error {
	s.mu.RLock()
	rows, err := s.db.Query(`
		SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE '%\_token_counts' ESCAPE '\'
	`)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to enumerate token count tables: %w", err)
	}
	defer rows.Close()

	s.columnsSeenMu.Lock()
	defer s.columnsSeenMu.Unlock()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		col := strings.TrimSuffix(name, "_token_counts")
		s.columnsSeen[col] = true
	}
	return rows.Err()
}

func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Debug("creating core schema")
	if _, err := s.db.Exec(CoreSchema); err != nil {
		log.Error("failed to create core schema", "error", err)
		return fmt.Errorf("failed to create core schema: %w", err)
	}

	log.Debug("creating fts schema")
	if _, err := s.db.Exec(FTSSchema); err != nil {
		log.Error("failed to create fts schema", "error", err)
		return fmt.Errorf("failed to create fts schema: %w", err)
	}

	return nil
}

// Close closes the store's connection.
func (s *Store) Close() error {
	log.Info("closing store")
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Error("failed to close store", "error", err)
			return err
		}
	}
	return nil
}

// Path returns the store file's path.
func (s *Store) Path() string {
	return s.path
}

// UniqueIDCol returns the field name this store uses as a record's unique
// identifier.
func (s *Store) UniqueIDCol() string {
	return s.uniqueIDCol
}

// ColsToIgnore returns the columns excluded from indexing and scoring.
func (s *Store) ColsToIgnore() []string {
	return s.colsToIgnore
}

// DmetaCols returns the columns phonetic variants are generated for, or nil
// if every indexed column gets them.
func (s *Store) DmetaCols() []string {
	return s.dmetaCols
}

// DB returns the underlying *sql.DB for callers (such as tests) that need
// to issue their own queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// TableExists reports whether name exists as a table in the store.
func (s *Store) TableExists(name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountRows returns the row count of table. table is never user-supplied
// directly; callers validate it against known schema names first.
func (s *Store) CountRows(table string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := s.db.QueryRow(query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}

// Vacuum runs VACUUM to reclaim space after large deletes.
func (s *Store) Vacuum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("VACUUM")
	return err
}

// Checkpoint forces a WAL checkpoint, flushing the write-ahead log into
// the main database file.
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Stats summarises the store's current size, spec.md's `stats` operation.
type Stats struct {
	Path               string
	RecordCount        int
	FileSizeBytes      int64
	CounterColumns     int
	CountersInSync     bool
}

// GetStats returns a snapshot of the store's size and counter state.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{Path: s.path}

	if count, err := s.CountRows("df"); err == nil {
		stats.RecordCount = count
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.FileSizeBytes = info.Size()
	}

	inSync, err := s.CountersInSync()
	if err == nil {
		stats.CountersInSync = inSync
	}

	s.mu.RLock()
	rows, err := s.db.Query(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name LIKE '%_token_counts'
	`)
	s.mu.RUnlock()
	if err == nil {
		defer rows.Close()
		if rows.Next() {
			rows.Scan(&stats.CounterColumns)
		}
	}

	return stats, nil
}
