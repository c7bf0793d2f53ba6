package scorer

import (
	"testing"

	"github.com/moj-analytical-services/fuzzyfinder-go/internal/record"
)

type fakeLookup struct {
	proportions map[string]float64
}

func (f *fakeLookup) TokenProportion(column, tok string) (record.TokenProportion, error) {
	if p, ok := f.proportions[tok]; ok {
		return record.TokenProportion{Token: tok, Proportion: p, Exists: true}, nil
	}
	return record.TokenProportion{Token: tok, Exists: false}, nil
}

func mustRecord(t *testing.T, fields map[string]any) *record.Record {
	t.Helper()
	r, err := record.New(fields, "id", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// TestScoreExactMatchScoresHigherThanNoMatch checks the basic ordering
// property: a candidate identical to the query must score strictly higher
// (a larger score is "better" in this system, since rarer matched tokens
// push probability down and score up) than one sharing nothing.
func TestScoreExactMatchScoresHigherThanNoMatch(t *testing.T) {
	lookup := &fakeLookup{proportions: map[string]float64{
		"ROBIN":   0.001,
		"LINACRE": 0.0005,
		"DAVE":    0.01,
		"SMITH":   0.02,
	}}

	query := mustRecord(t, map[string]any{
		"id":         "q",
		"first_name": "Robin",
		"surname":    "Linacre",
	})

	exactMatch := mustRecord(t, map[string]any{
		"id":         "c1",
		"first_name": "Robin",
		"surname":    "Linacre",
	})

	noMatch := mustRecord(t, map[string]any{
		"id":         "c2",
		"first_name": "Dave",
		"surname":    "Smith",
	})

	scoreMatch, err := Score(query, exactMatch, lookup)
	if err != nil {
		t.Fatal(err)
	}
	scoreNoMatch, err := Score(query, noMatch, lookup)
	if err != nil {
		t.Fatal(err)
	}

	if scoreMatch <= scoreNoMatch {
		t.Errorf("expected exact match score (%v) > no-match score (%v)", scoreMatch, scoreNoMatch)
	}
}

// TestScoreMisspellingNeutrality covers spec.md scenario 6: a query token
// that is a likely misspelling of a candidate token (Levenshtein ratio >
// 0.65) must be treated as neutral, not punished as if it were simply
// absent.
func TestScoreMisspellingNeutrality(t *testing.T) {
	lookup := &fakeLookup{proportions: map[string]float64{
		"LINACRE": 0.0005,
		"LINAKER": 0.0005,
	}}

	query := mustRecord(t, map[string]any{
		"id":      "q",
		"surname": "Linacre",
	})

	misspelledCandidate := mustRecord(t, map[string]any{
		"id":      "c1",
		"surname": "Linaker",
	})

	unrelatedCandidate := mustRecord(t, map[string]any{
		"id":      "c2",
		"surname": "Jones",
	})

	misspelledScore, err := Score(query, misspelledCandidate, lookup)
	if err != nil {
		t.Fatal(err)
	}
	unrelatedScore, err := Score(query, unrelatedCandidate, lookup)
	if err != nil {
		t.Fatal(err)
	}

	if misspelledScore <= unrelatedScore {
		t.Errorf("expected misspelling candidate score (%v) to be better than an unrelated candidate (%v)", misspelledScore, unrelatedScore)
	}
}

func TestScoreUnseenTokenTreatedAsNeutral(t *testing.T) {
	lookup := &fakeLookup{proportions: map[string]float64{}}

	query := mustRecord(t, map[string]any{
		"id":      "q",
		"surname": "Zzzznevernotseen",
	})
	candidate := mustRecord(t, map[string]any{
		"id":      "c1",
		"surname": "Zzzznevernotseen",
	})

	score, err := Score(query, candidate, lookup)
	if err != nil {
		t.Fatal(err)
	}
	if score != 0 {
		t.Errorf("expected a neutral score of 0 when every token is unseen, got %v", score)
	}
}
