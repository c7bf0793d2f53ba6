// Package record represents a single row of a dataset and the
// tokenisation/rarity machinery that both ingest and search build on.
package record

import (
	"errors"
	"sort"

	"github.com/moj-analytical-services/fuzzyfinder-go/internal/token"
)

// ErrMissingIDColumn is returned when a record is constructed without its
// declared unique identifier column present in the field map.
var ErrMissingIDColumn = errors.New("record: unique id column not present in fields")

// Record is a single row of a dataset: a column-name-to-value map plus the
// bookkeeping needed to tokenise and score it against other records.
type Record struct {
	fields       map[string]any
	uniqueIDCol  string
	colsToIgnore map[string]bool
	dmetaCols    map[string]bool // nil means "all columns get phonetic variants"
}

// New builds a Record from fields, validating that uniqueIDCol is present.
// colsToIgnore are excluded from indexing and scoring entirely. dmetaCols,
// when non-nil, restricts phonetic-variant generation to that column set;
// pass nil to generate variants for every indexed column.
func New(fields map[string]any, uniqueIDCol string, colsToIgnore []string, dmetaCols []string) (*Record, error) {
	if _, ok := fields[uniqueIDCol]; !ok {
		return nil, ErrMissingIDColumn
	}

	ignore := make(map[string]bool, len(colsToIgnore))
	for _, c := range colsToIgnore {
		ignore[c] = true
	}

	var dmeta map[string]bool
	if dmetaCols != nil {
		dmeta = make(map[string]bool, len(dmetaCols))
		for _, c := range dmetaCols {
			dmeta[c] = true
		}
	}

	return &Record{
		fields:       fields,
		uniqueIDCol:  uniqueIDCol,
		colsToIgnore: ignore,
		dmetaCols:    dmeta,
	}, nil
}

// ID returns the record's unique identifier value.
func (r *Record) ID() any {
	return r.fields[r.uniqueIDCol]
}

// ColumnsToIndex returns every field column except the unique id column and
// any column listed in colsToIgnore, sorted lexically.
//
// fields is a plain Go map, and both Go and encoding/json discard any
// original key order before a value ever reaches this package — there is
// no insertion order left to preserve by the time a record.Record exists.
// A sorted order is the closest deterministic substitute: this is a
// documented deviation from the ordered-mapping Record abstraction,
// recorded in DESIGN.md.
func (r *Record) ColumnsToIndex() []string {
	cols := make([]string, 0, len(r.fields))
	for c := range r.fields {
		if c == r.uniqueIDCol || r.colsToIgnore[c] {
			continue
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// TokensByColumn returns the tokenised value of every indexed column,
// without phonetic variants.
func (r *Record) TokensByColumn() map[string][]string {
	out := make(map[string][]string, len(r.fields))
	for _, col := range r.ColumnsToIndex() {
		out[col] = token.Tokenize(r.fields[col])
	}
	return out
}

// TokensWithPhoneticByColumn returns each indexed column's tokens plus the
// Double Metaphone variants of those tokens, for columns eligible for
// phonetic expansion (all columns when dmetaCols was nil, otherwise only
// the named ones).
func (r *Record) TokensWithPhoneticByColumn() map[string][]string {
	byCol := r.TokensByColumn()
	out := make(map[string][]string, len(byCol))

	for col, toks := range byCol {
		combined := make([]string, len(toks))
		copy(combined, toks)

		if r.dmetaCols == nil || r.dmetaCols[col] {
			for _, t := range toks {
				combined = append(combined, token.PhoneticVariants(t)...)
			}
		}
		out[col] = combined
	}
	return out
}

// ConcatAll joins every token (including phonetic variants) from every
// indexed column into a single space-separated string, the form written
// into the full-text index.
func (r *Record) ConcatAll() string {
	byCol := r.TokensWithPhoneticByColumn()
	var all []string
	for _, col := range r.ColumnsToIndex() {
		all = append(all, byCol[col]...)
	}
	out := ""
	for i, t := range all {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}

// TokenProportion is how rare a token is within a column's corpus: the
// fraction of all token occurrences in that column that are this token.
// Exists reports whether the token has a proportion in the corpus at all;
// TokensInOrderOfRarity drops a token for which it is false, and the
// scorer treats such a token as proportion 1.
type TokenProportion struct {
	Token      string
	Proportion float64
	Exists     bool
}

// ProbabilityLookup resolves how common a token is within a given column,
// backed by the store's per-column token-count tables.
type ProbabilityLookup interface {
	TokenProportion(column, tok string) (TokenProportion, error)
}

// TokenProbabilities resolves the rarity of every token (including
// phonetic variants) in every indexed column using p.
func (r *Record) TokenProbabilities(p ProbabilityLookup) (map[string]map[string]TokenProportion, error) {
	byCol := r.TokensWithPhoneticByColumn()
	out := make(map[string]map[string]TokenProportion, len(byCol))

	for col, toks := range byCol {
		colOut := make(map[string]TokenProportion, len(toks))
		for _, t := range toks {
			prop, err := p.TokenProportion(col, t)
			if err != nil {
				return nil, err
			}
			colOut[t] = prop
		}
		out[col] = colOut
	}
	return out, nil
}

// TokensInOrderOfRarity returns every token that exists in the corpus,
// across all indexed columns, ordered from rarest to most common. Tokens
// absent from the corpus are dropped rather than treated as infinitely
// rare, matching the dataset's candidate-search strategy which only seeds
// queries with tokens it has actually seen before.
func (r *Record) TokensInOrderOfRarity(p ProbabilityLookup) ([]string, error) {
	byColProbs, err := r.TokenProbabilities(p)
	if err != nil {
		return nil, err
	}

	type rarity struct {
		token      string
		proportion float64
	}
	var all []rarity
	for _, colProbs := range byColProbs {
		for _, prop := range colProbs {
			if !prop.Exists {
				continue
			}
			all = append(all, rarity{token: prop.Token, proportion: prop.Proportion})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].proportion < all[j].proportion
	})

	out := make([]string, len(all))
	for i, a := range all {
		out[i] = a.token
	}
	return out, nil
}
