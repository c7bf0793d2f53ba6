package phonetic

// Variants returns the distinct, non-empty Double Metaphone codes for word.
// There are at most two: the primary code and, when the algorithm finds an
// alternate pronunciation, the secondary code.
func Variants(word string) []string {
	primary, secondary := Encode(word)

	out := make([]string, 0, 2)
	if primary != "" {
		out = append(out, primary)
	}
	if secondary != "" && secondary != primary {
		out = append(out, secondary)
	}
	return out
}
