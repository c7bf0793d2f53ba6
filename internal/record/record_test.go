package record

import (
	"errors"
	"testing"
)

// fakeLookup is a stand-in for the store's token-proportion tables: it
// treats any token in its map as seen with the given proportion, and any
// other token as never seen.
type fakeLookup struct {
	proportions map[string]float64
}

func (f *fakeLookup) TokenProportion(column, tok string) (TokenProportion, error) {
	if p, ok := f.proportions[tok]; ok {
		return TokenProportion{Token: tok, Proportion: p, Exists: true}, nil
	}
	return TokenProportion{Token: tok, Exists: false}, nil
}

func TestNewMissingIDColumn(t *testing.T) {
	_, err := New(map[string]any{"first_name": "Robin"}, "id", nil, nil)
	if !errors.Is(err, ErrMissingIDColumn) {
		t.Fatalf("expected ErrMissingIDColumn, got %v", err)
	}
}

func TestColumnsToIndexExcludesIDAndIgnored(t *testing.T) {
	r, err := New(map[string]any{
		"id":         1,
		"first_name": "Robin",
		"surname":    "Linacre",
		"notes":      "internal only",
	}, "id", []string{"notes"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	cols := r.ColumnsToIndex()
	want := []string{"first_name", "surname"}
	if len(cols) != len(want) {
		t.Fatalf("got cols %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Fatalf("got cols %v, want %v", cols, want)
		}
	}
}

func TestTokensInOrderOfRarityDropsUnseenTokens(t *testing.T) {
	r, err := New(map[string]any{
		"id":         1,
		"first_name": "Robin",
		"surname":    "Smith",
	}, "id", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	// SMITH has a Double Metaphone variant too, but the lookup only knows
	// about ROBIN, so only ROBIN (and perhaps its own variants, left
	// unseen here) should survive the rarity ordering.
	lookup := &fakeLookup{proportions: map[string]float64{
		"ROBIN": 0.0001,
	}}

	rarity, err := r.TokensInOrderOfRarity(lookup)
	if err != nil {
		t.Fatal(err)
	}

	foundRobin := false
	for _, tok := range rarity {
		if tok == "SMITH" {
			t.Errorf("SMITH should have been dropped as unseen, got it in %v", rarity)
		}
		if tok == "ROBIN" {
			foundRobin = true
		}
	}
	if !foundRobin {
		t.Errorf("expected ROBIN in rarity order, got %v", rarity)
	}
}

func TestTokensInOrderOfRaritySortsRarestFirst(t *testing.T) {
	r, err := New(map[string]any{
		"id":         1,
		"first_name": "Robin",
		"surname":    "Linacre",
	}, "id", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	lookup := &fakeLookup{proportions: map[string]float64{
		"ROBIN":   0.01,
		"LINACRE": 0.0001,
	}}

	rarity, err := r.TokensInOrderOfRarity(lookup)
	if err != nil {
		t.Fatal(err)
	}
	if len(rarity) < 2 {
		t.Fatalf("expected at least 2 tokens, got %v", rarity)
	}
	if rarity[0] != "LINACRE" {
		t.Errorf("expected LINACRE (rarer) first, got %v", rarity)
	}
}

func TestConcatAllJoinsAllColumns(t *testing.T) {
	r, err := New(map[string]any{
		"id":      1,
		"forname": "Dave",
	}, "id", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	got := r.ConcatAll()
	if got == "" {
		t.Error("expected non-empty concatenation")
	}
}
