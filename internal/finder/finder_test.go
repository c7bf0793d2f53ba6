package finder

import (
	"context"
	"testing"

	"github.com/moj-analytical-services/fuzzyfinder-go/internal/record"
	"github.com/moj-analytical-services/fuzzyfinder-go/internal/store"
)

// fakeStore is an in-memory stand-in for *store.Store, letting the search
// strategies be exercised without sqlite.
type fakeStore struct {
	uniqueIDCol  string
	colsToIgnore []string
	dmetaCols    []string
	records      map[string]map[string]any
	proportions  map[string]map[string]float64 // column -> token -> proportion
}

func (f *fakeStore) UniqueIDCol() string    { return f.uniqueIDCol }
func (f *fakeStore) ColsToIgnore() []string { return f.colsToIgnore }
func (f *fakeStore) DmetaCols() []string    { return f.dmetaCols }

func (f *fakeStore) TokenProportion(column, tok string) (record.TokenProportion, error) {
	if byTok, ok := f.proportions[column]; ok {
		if p, ok := byTok[tok]; ok {
			return record.TokenProportion{Token: tok, Proportion: p, Exists: true}, nil
		}
	}
	return record.TokenProportion{Token: tok, Exists: false}, nil
}

func (f *fakeStore) GetRecord(ctx context.Context, uniqueID string) (map[string]any, bool, error) {
	rec, ok := f.records[uniqueID]
	return rec, ok, nil
}

// QueryFTS is a crude stand-in for sqlite's FTS5 MATCH: a record matches a
// token query if every token appears exactly among its own tokenised
// values (including phonetic variants).
func (f *fakeStore) QueryFTS(ctx context.Context, query string, limit int) ([]store.FTSMatch, error) {
	needed := splitQuotedTokens(query)

	var out []store.FTSMatch
	for id, fields := range f.records {
		r, err := record.New(fields, f.uniqueIDCol, f.colsToIgnore, f.dmetaCols)
		if err != nil {
			continue
		}
		haystack := make(map[string]bool)
		for _, toks := range r.TokensWithPhoneticByColumn() {
			for _, t := range toks {
				haystack[t] = true
			}
		}

		matchesAll := true
		for _, n := range needed {
			if !haystack[n] {
				matchesAll = false
				break
			}
		}
		if matchesAll {
			out = append(out, store.FTSMatch{UniqueID: id, BM25Score: -1})
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func splitQuotedTokens(query string) []string {
	var out []string
	var cur []byte
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '"' {
			if inQuote {
				out = append(out, string(cur))
				cur = nil
			}
			inQuote = !inQuote
			continue
		}
		if inQuote {
			cur = append(cur, c)
		}
	}
	return out
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		uniqueIDCol: "unique_id",
		records:     make(map[string]map[string]any),
		proportions: make(map[string]map[string]float64),
	}
}

func (f *fakeStore) addRecord(id string, fields map[string]any) {
	fields["unique_id"] = id
	f.records[id] = fields

	r, err := record.New(fields, f.uniqueIDCol, f.colsToIgnore, f.dmetaCols)
	if err != nil {
		return
	}
	for col, toks := range r.TokensWithPhoneticByColumn() {
		if f.proportions[col] == nil {
			f.proportions[col] = make(map[string]float64)
		}
		for _, t := range toks {
			f.proportions[col][t] += 0.01
		}
	}
}

// TestFindMatchesLocatesExactAndFuzzyCandidates covers spec.md §8 scenario
// 4: a query for "Robin Linacre" should find the exact match and the
// phonetically equal "Robyn Linaker", and should not blow up when the
// corpus also contains unrelated names.
func TestFindMatchesLocatesExactAndFuzzyCandidates(t *testing.T) {
	fs := newFakeStore()
	fs.addRecord("1", map[string]any{"first_name": "Robin", "surname": "Linacre"})
	fs.addRecord("2", map[string]any{"first_name": "David", "surname": "Smith"})
	fs.addRecord("3", map[string]any{"first_name": "Robyn", "surname": "Linaker"})

	f := New(fs, DefaultConfig())

	matches, err := f.FindMatches(context.Background(), map[string]string{
		"first_name": "Robin",
		"surname":    "Linacre",
	})
	if err != nil {
		t.Fatalf("FindMatches failed: %v", err)
	}

	if _, ok := matches["1"]; !ok {
		t.Errorf("expected exact match record 1 to be found, got %v", matches)
	}
	if _, ok := matches["3"]; !ok {
		t.Errorf("expected fuzzy match record 3 to be found, got %v", matches)
	}
}

func TestFindMatchesRespectsReturnRecordsLimit(t *testing.T) {
	fs := newFakeStore()
	for i := 0; i < 5; i++ {
		fs.addRecord(itoa(i), map[string]any{"first_name": "Robin", "surname": "Linacre"})
	}

	cfg := DefaultConfig()
	cfg.ReturnRecordsLimit = 2
	f := New(fs, cfg)

	matches, err := f.FindMatches(context.Background(), map[string]string{
		"first_name": "Robin",
		"surname":    "Linacre",
	})
	if err != nil {
		t.Fatalf("FindMatches failed: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one match")
	}
	if len(matches) > cfg.ReturnRecordsLimit {
		t.Errorf("expected at most %d matches, got %d", cfg.ReturnRecordsLimit, len(matches))
	}
}

func TestBuildQueryRecordSaltsExistingID(t *testing.T) {
	fs := newFakeStore()
	f := New(fs, DefaultConfig())

	rec, err := f.buildQueryRecord(map[string]string{"unique_id": "42", "name": "Robin"})
	if err != nil {
		t.Fatal(err)
	}
	id, ok := rec.ID().(string)
	if !ok || id == "42" {
		t.Errorf("expected salted id distinct from original, got %v", rec.ID())
	}
}

func TestBuildQueryRecordAssignsIDWhenMissing(t *testing.T) {
	fs := newFakeStore()
	f := New(fs, DefaultConfig())

	rec, err := f.buildQueryRecord(map[string]string{"name": "Robin"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID() == nil || rec.ID() == "" {
		t.Error("expected a generated id for a query missing the id column")
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
