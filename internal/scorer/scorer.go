// Package scorer implements the probabilistic relevance score that ranks
// full-text candidates against a query record: how well the query's
// tokens, including their phonetic variants, are explained by a
// candidate's own tokens and the corpus-wide rarity of each.
package scorer

import (
	"math"

	"github.com/agnivade/levenshtein"

	"github.com/moj-analytical-services/fuzzyfinder-go/internal/record"
)

// misspellingRatioThreshold is the Levenshtein-ratio cutoff above which an
// unmatched query token is treated as a likely misspelling of some token
// already present in the candidate, rather than penalised.
const misspellingRatioThreshold = 0.65

// scoreDivisor converts -log10(probability) into the final score scale.
const scoreDivisor = 30.0

// Score ranks candidate against query: per indexed column, it multiplies
// the corpus rarity of every matching token (prob_match) by the inverse
// corpus commonness of every unmatched query token that is not a likely
// misspelling of something in the candidate (prob_unmatch), then combines
// every column's result into a single probability and converts it to a
// score via -log10(probability) / 30.
func Score(query, candidate *record.Record, lookup record.ProbabilityLookup) (float64, error) {
	queryTokens := query.TokensWithPhoneticByColumn()
	candidateTokens := candidate.TokensWithPhoneticByColumn()

	queryProbs, err := query.TokenProbabilities(lookup)
	if err != nil {
		return 0, err
	}
	candidateProbs, err := candidate.TokenProbabilities(lookup)
	if err != nil {
		return 0, err
	}

	probability := 1.0
	for _, col := range query.ColumnsToIndex() {
		result := columnResult(col, queryTokens[col], candidateTokens[col], queryProbs[col], candidateProbs[col])
		probability *= result
	}

	return probToScore(probability), nil
}

// columnResult computes prob_match(c) * prob_unmatch(c) for a single
// column, given the query's and candidate's token sets and the merged
// per-token proportions looked up for each (the query's own lookup takes
// priority on a shared token; the candidate's lookup only fills in tokens
// the query didn't have a proportion for).
func columnResult(col string, queryColTokens, candidateColTokens []string, queryColProbs, candidateColProbs map[string]record.TokenProportion) float64 {
	probs := make(map[string]record.TokenProportion, len(candidateColProbs)+len(queryColProbs))
	for t, p := range candidateColProbs {
		probs[t] = p
	}
	for t, p := range queryColProbs {
		probs[t] = p
	}

	querySet := toSet(queryColTokens)
	candidateSet := toSet(candidateColTokens)

	var matching, unmatching []string
	for t := range querySet {
		if candidateSet[t] {
			matching = append(matching, t)
		} else {
			unmatching = append(unmatching, t)
		}
	}

	probMatch := probMatching(matching, probs)
	probUnmatch := probUnmatching(unmatching, candidateColTokens, probs)

	return probMatch * probUnmatch
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// probMatching multiplies the rarity of every matched token; rarer tokens
// (smaller proportion) contribute more weight toward a confident match.
func probMatching(matching []string, probs map[string]record.TokenProportion) float64 {
	prob := 1.0
	for _, t := range matching {
		prob *= tokenProportionOrOne(t, probs)
	}
	return prob
}

// probUnmatching multiplies the commonness of every unmatched query token
// that isn't a likely misspelling of something in the candidate, then
// inverts the product: a missing rare token punishes the score more than
// a missing common one.
func probUnmatching(unmatching, candidateColTokens []string, probs map[string]record.TokenProportion) float64 {
	prob := 1.0
	for _, t := range unmatching {
		if tokenIsMisspelling(t, candidateColTokens) {
			continue
		}
		prob *= tokenProportionOrOne(t, probs)
	}
	return 1 / prob
}

// tokenProportionOrOne returns a token's corpus proportion, or 1 when the
// token has never been seen in the corpus — spec.md's TokenNotInStore
// handling: neither reward nor punish an unknown token.
func tokenProportionOrOne(t string, probs map[string]record.TokenProportion) float64 {
	p, ok := probs[t]
	if !ok || !p.Exists {
		return 1
	}
	return p.Proportion
}

// tokenIsMisspelling reports whether t is a likely misspelling of any
// token already present in candidateTokens, per spec.md's Levenshtein
// ratio test.
func tokenIsMisspelling(t string, candidateTokens []string) bool {
	for _, other := range candidateTokens {
		if levenshteinRatio(t, other) > misspellingRatioThreshold {
			return true
		}
	}
	return false
}

func levenshteinRatio(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

func probToScore(prob float64) float64 {
	if prob <= 0 {
		return math.Inf(1)
	}
	return -math.Log10(prob) / scoreDivisor
}
