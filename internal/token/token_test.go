package token

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokenizeBasic(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  []string
	}{
		{"simple name", "Robin", []string{"ROBIN"}},
		{"collapses whitespace", "  David   Smith ", []string{"DAVID", "SMITH"}},
		{"strips punctuation", "O'Brien-Smith", []string{"O", "BRIEN", "SMITH"}},
		{"nil is empty", nil, nil},
		{"blank string is empty", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.value)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestTokenizeSplitsAlphaDigitBoundary(t *testing.T) {
	// Only triggers above length 5, so a short value like "A1" stays intact.
	got := Tokenize("A1")
	if !reflect.DeepEqual(got, []string{"A1"}) {
		t.Errorf("Tokenize(%q) = %v, want [A1] (no split under length 5)", "A1", got)
	}

	got = Tokenize("FLAT 12A")
	want := []string{"FLAT", "12", "A"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize(%q) = %v, want %v", "FLAT 12A", got, want)
	}
}

func TestTokenizeHardSplitsLongRuns(t *testing.T) {
	got := Tokenize("ABCDEFGHIJ")
	want := []string{"ABCDEFGH", "IJ"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize long run = %v, want %v", got, want)
	}
}

func TestTokenizeIsIdempotentAndMemoized(t *testing.T) {
	a := Tokenize("Robin Linacre")
	b := Tokenize("Robin Linacre")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("repeated calls diverged: %v vs %v", a, b)
	}
	c := Tokenize(strings.Join(a, " "))
	if !reflect.DeepEqual(a, c) {
		t.Errorf("re-tokenising the joined output changed it: %v vs %v", a, c)
	}
}

func TestPhoneticVariantsGating(t *testing.T) {
	if v := PhoneticVariants("AB"); v != nil {
		t.Errorf("expected no variants for token of length <= 2, got %v", v)
	}
	if v := PhoneticVariants("A1B"); v != nil {
		t.Errorf("expected no variants for token containing a digit, got %v", v)
	}
	if v := PhoneticVariants("ROBIN"); len(v) == 0 {
		t.Error("expected at least one phonetic variant for ROBIN")
	}
}

func TestPhoneticVariantsMemoized(t *testing.T) {
	a := PhoneticVariants("LINACRE")
	b := PhoneticVariants("LINACRE")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("repeated calls diverged: %v vs %v", a, b)
	}
}
