package finder

import (
	"crypto/rand"
	"math/big"
)

// searchSpecificToGeneralAllTokens searches using every rarity-ordered
// token, then drops the rarest and searches again:
//
//	[a,b,c,d]
//	[b,c,d]
//	[c,d]
//	[d]
func (f *Finder) searchSpecificToGeneralAllTokens(st *searchState, rarityOrder []string) error {
	for i := range rarityOrder {
		outcome, err := f.ftsUsingTokens(st, rarityOrder[i:])
		if err != nil {
			return err
		}
		if f.stopSearching(st, outcome) {
			return nil
		}
	}
	return nil
}

// searchSpecificToGeneralBand searches in sliding windows of decreasing
// size over the rarity-ordered tokens, e.g. for [a,b,c,d]:
//
//	[abcd]
//	[abc] [bcd]
//	[ab] [bc] [cd]
//	[a] [b] [c] [d]
func (f *Finder) searchSpecificToGeneralBand(st *searchState, rarityOrder []string) error {
	numTokens := len(rarityOrder)

	for bandSize := numTokens; bandSize > 0; bandSize-- {
		take := numTokens - bandSize + 1
		var outcome *searchOutcome
		for start := 0; start < take; start++ {
			end := start + bandSize
			var err error
			outcome, err = f.ftsUsingTokens(st, rarityOrder[start:end])
			if err != nil {
				return err
			}
			if f.stopSearching(st, outcome) {
				return nil
			}
		}
		if f.stopSearching(st, outcome) {
			return nil
		}
	}
	return nil
}

// searchRandom fires off randomised subsets of the rarity-ordered tokens,
// gated on there being more than two tokens to choose from (a subset of
// fewer than two tokens is too unspecific to be worth trying).
func (f *Finder) searchRandom(st *searchState, rarityOrder []string) error {
	if len(rarityOrder) <= 2 {
		return nil
	}

	for i := 0; i < f.cfg.SearchIntensity; i++ {
		subset, err := randomTokenSubset(rarityOrder)
		if err != nil {
			return err
		}
		if _, err := f.ftsUsingTokens(st, subset); err != nil {
			return err
		}
		if f.stopSearching(st, nil) {
			return nil
		}
	}
	return nil
}

// randomTokenSubset picks a random subset of size n in [2, len(tokens)-1],
// sampled without replacement.
func randomTokenSubset(tokens []string) ([]string, error) {
	n, err := randIntRange(2, len(tokens)-1)
	if err != nil {
		return nil, err
	}

	pool := append([]string(nil), tokens...)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx, err := randIntn(len(pool))
		if err != nil {
			return nil, err
		}
		out = append(out, pool[idx])
		pool[idx] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]
	}
	return out, nil
}

// randIntRange returns a cryptographically random integer in [lo, hi].
func randIntRange(lo, hi int) (int, error) {
	if hi <= lo {
		return lo, nil
	}
	offset, err := randIntn(hi - lo + 1)
	if err != nil {
		return 0, err
	}
	return lo + offset, nil
}

// randIntn returns a cryptographically random integer in [0, n).
func randIntn(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
