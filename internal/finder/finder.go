package finder

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/moj-analytical-services/fuzzyfinder-go/internal/logging"
	"github.com/moj-analytical-services/fuzzyfinder-go/internal/record"
	"github.com/moj-analytical-services/fuzzyfinder-go/internal/scorer"
	"github.com/moj-analytical-services/fuzzyfinder-go/internal/store"
)

var log = logging.GetLogger("finder")

// Store is the subset of *store.Store the Finder depends on. Declared as
// an interface so tests can exercise the search strategies against a fake
// in-memory index instead of a real sqlite file.
type Store interface {
	record.ProbabilityLookup
	UniqueIDCol() string
	ColsToIgnore() []string
	DmetaCols() []string
	QueryFTS(ctx context.Context, query string, limit int) ([]store.FTSMatch, error)
	GetRecord(ctx context.Context, uniqueID string) (map[string]any, bool, error)
}

// Config controls how aggressively the Finder searches and when it stops.
type Config struct {
	// ReturnRecordsLimit stops the overall search once more than this many
	// distinct records have been found, and caps how many FindMatches
	// returns (the highest-scoring ones are kept).
	ReturnRecordsLimit int
	// IndividualSearchLimit is the LIMIT applied to each single FTS query;
	// a query that hits this limit is considered saturated and discarded,
	// since a result set that large is unlikely to be a useful match.
	IndividualSearchLimit int
	// SearchIntensity is the number of randomised token-subset searches
	// the third strategy runs.
	SearchIntensity int
	// BestScoreThreshold stops the search early once a candidate's score
	// exceeds this value.
	BestScoreThreshold float64
}

// DefaultConfig mirrors pkg/config's defaults so a Finder can be built
// standalone in tests without pulling in the config package.
func DefaultConfig() Config {
	return Config{
		ReturnRecordsLimit:    50,
		IndividualSearchLimit: 50,
		SearchIntensity:       500,
		BestScoreThreshold:    math.Inf(1),
	}
}

// MatchRecord is a single result from FindMatches: the candidate's
// original fields, its probabilistic relevance score, and the bm25 score
// of the FTS query that first surfaced it.
type MatchRecord struct {
	Fields    map[string]any
	Score     float64
	BM25Score float64
}

// Finder runs the candidate search against a Store for a single query.
type Finder struct {
	store Store
	cfg   Config
}

// New builds a Finder over store using cfg.
func New(s Store, cfg Config) *Finder {
	return &Finder{store: s, cfg: cfg}
}

// searchState is the mutable state threaded through one FindMatches call.
// It is not safe for concurrent use; a Finder runs one search at a time.
type searchState struct {
	ctx             context.Context
	queryRecord     *record.Record
	numberOfSearches int
	foundRecords    map[string]MatchRecord
	bestScore       float64
	searches        map[string]bool
}

// FindMatches builds a query record from query, then runs the three
// search strategies in sequence (specific-to-general by suffix, sliding
// band, then randomised subsets), scoring and accumulating every distinct
// candidate it finds until a stop condition is reached.
func (f *Finder) FindMatches(ctx context.Context, query map[string]string) (map[string]MatchRecord, error) {
	queryRecord, err := f.buildQueryRecord(query)
	if err != nil {
		return nil, err
	}

	st := &searchState{
		ctx:          ctx,
		queryRecord:  queryRecord,
		foundRecords: make(map[string]MatchRecord),
		bestScore:    math.Inf(-1),
		searches:     make(map[string]bool),
	}

	rarityOrder, err := queryRecord.TokensInOrderOfRarity(f.store)
	if err != nil {
		return nil, fmt.Errorf("finder: failed to rank query tokens by rarity: %w", err)
	}

	strategies := []func(*searchState, []string) error{
		f.searchSpecificToGeneralAllTokens,
		f.searchSpecificToGeneralBand,
		f.searchRandom,
	}

	for _, strategy := range strategies {
		if f.stopSearching(st, nil) {
			break
		}
		if err := strategy(st, rarityOrder); err != nil {
			return nil, err
		}
		log.Debug("search strategy complete", "total_searches", st.numberOfSearches, "found", len(st.foundRecords))
	}

	if f.cfg.ReturnRecordsLimit > 0 && len(st.foundRecords) > f.cfg.ReturnRecordsLimit {
		ids := make([]string, 0, len(st.foundRecords))
		for id := range st.foundRecords {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return st.foundRecords[ids[i]].Score > st.foundRecords[ids[j]].Score })
		for _, id := range ids[f.cfg.ReturnRecordsLimit:] {
			delete(st.foundRecords, id)
		}
	}

	log.Info("search complete", "total_records_found", len(st.foundRecords), "total_searches", st.numberOfSearches)
	return st.foundRecords, nil
}

// buildQueryRecord wraps query as a record.Record, salting its unique id
// so it can never collide with an indexed record's id: a query missing
// the store's id column gets a fresh uuid, and one that has a value gets
// it suffixed with random hex, preventing any cross-run aliasing of
// per-id state.
func (f *Finder) buildQueryRecord(query map[string]string) (*record.Record, error) {
	idCol := f.store.UniqueIDCol()

	fields := make(map[string]any, len(query)+1)
	for k, v := range query {
		fields[k] = v
	}

	if existing, ok := fields[idCol]; ok {
		salt, err := randomHex(8)
		if err != nil {
			return nil, fmt.Errorf("finder: failed to salt query record id: %w", err)
		}
		fields[idCol] = fmt.Sprintf("%v_%s", existing, salt)
	} else {
		fields[idCol] = uuid.New().String()
	}

	return record.New(fields, idCol, f.store.ColsToIgnore(), f.store.DmetaCols())
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// stopSearching implements the shared stop predicate: a sufficiently
// confident best score, enough distinct records already found, or (when
// outcome is non-nil) the most recent query having hit its own limit and
// therefore being too unspecific to be useful.
func (f *Finder) stopSearching(st *searchState, outcome *searchOutcome) bool {
	if st.bestScore > f.cfg.BestScoreThreshold {
		return true
	}
	if len(st.foundRecords) > f.cfg.ReturnRecordsLimit {
		return true
	}
	if outcome != nil && outcome.numResults == f.cfg.IndividualSearchLimit {
		return true
	}
	return false
}

// searchOutcome reports what a single FTS query turned up, used only to
// evaluate the saturation stop condition.
type searchOutcome struct {
	numResults int
}

// ftsUsingTokens runs one FTS query over tokens, deduplicated against
// every token subset already searched this call (a different strategy
// may have already tried the exact same set). Matches are discarded
// wholesale if the query saturates its own limit, since that large a
// result set carries little discriminating signal.
func (f *Finder) ftsUsingTokens(st *searchState, tokens []string) (*searchOutcome, error) {
	key := subsetKey(tokens)
	if st.searches[key] {
		return nil, nil
	}
	st.searches[key] = true
	st.numberOfSearches++

	ftsString := buildFTSQuery(tokens)
	log.Debug("searching", "query", ftsString)

	matches, err := f.store.QueryFTS(st.ctx, ftsString, f.cfg.IndividualSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("finder: fts query failed: %w", err)
	}

	outcome := &searchOutcome{numResults: len(matches)}
	if outcome.numResults < f.cfg.IndividualSearchLimit {
		for _, m := range matches {
			if err := f.addRecordIfNotExists(st, m); err != nil {
				return nil, err
			}
		}
	}
	return outcome, nil
}

// addRecordIfNotExists loads and scores a candidate the first time its id
// is seen; later FTS hits on the same id are free.
func (f *Finder) addRecordIfNotExists(st *searchState, match store.FTSMatch) error {
	if _, ok := st.foundRecords[match.UniqueID]; ok {
		return nil
	}

	fields, found, err := f.store.GetRecord(st.ctx, match.UniqueID)
	if err != nil {
		return fmt.Errorf("finder: failed to load candidate %q: %w", match.UniqueID, err)
	}
	if !found {
		return nil
	}

	candidate, err := record.New(fields, f.store.UniqueIDCol(), f.store.ColsToIgnore(), f.store.DmetaCols())
	if err != nil {
		return fmt.Errorf("finder: failed to build candidate record %q: %w", match.UniqueID, err)
	}

	score, err := scorer.Score(st.queryRecord, candidate, f.store)
	if err != nil {
		return fmt.Errorf("finder: failed to score candidate %q: %w", match.UniqueID, err)
	}

	st.foundRecords[match.UniqueID] = MatchRecord{
		Fields:    fields,
		Score:     score,
		BM25Score: match.BM25Score,
	}
	if score > st.bestScore {
		st.bestScore = score
	}
	return nil
}

// subsetKey uniquely identifies a set of tokens regardless of order, so
// searches across strategies can be deduplicated.
func subsetKey(tokens []string) string {
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

// buildFTSQuery double-quotes every token so that sqlite FTS keywords
// (NOT, AND, OR, ...) appearing in a token are treated as literal text
// rather than query syntax.
func buildFTSQuery(tokens []string) string {
	escaped := make([]string, len(tokens))
	for i, t := range tokens {
		escaped[i] = `"` + t + `"`
	}
	return strings.Join(escaped, " ")
}
