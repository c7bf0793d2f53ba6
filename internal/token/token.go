// Package token turns raw field values into the normalised token sequences
// that the store, finder and scorer all key on. Tokenisation is the exact
// homogenisation pass the dataset goes through before indexing: uppercase,
// collapse whitespace and punctuation, split digit/letter boundaries and
// long runs, producing deterministic, comparable tokens across records.
package token

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/moj-analytical-services/fuzzyfinder-go/internal/phonetic"
)

const cacheSize = 1_000_000

var (
	reMultiSpace   = regexp.MustCompile(`\s{2,}`)
	rePunctuation  = regexp.MustCompile(`[^\w\s]`)
	reLetterDigit  = regexp.MustCompile(`([A-Z])(\d)`)
	reDigitLetter  = regexp.MustCompile(`(\d)([A-Z])`)
	reEightRun     = regexp.MustCompile(`(\w{8})`)
	reScientific   = regexp.MustCompile(`e\+\d{1,4}`)
)

var (
	tokenCache   *lru.Cache[string, []string]
	tokenCacheMu sync.Mutex

	phoneticCache   *lru.Cache[string, []string]
	phoneticCacheMu sync.Mutex
)

func init() {
	var err error
	tokenCache, err = lru.New[string, []string](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("token: failed to allocate tokenisation cache: %v", err))
	}
	phoneticCache, err = lru.New[string, []string](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("token: failed to allocate phonetic cache: %v", err))
	}
}

// Tokenize normalises value into its token sequence. Supported value kinds
// are string, the numeric kinds and nil; anything else is formatted with
// fmt.Sprintf("%v", ...) before normalisation. The result is memoised, so
// repeated values across a large ingest are only normalised once.
func Tokenize(value any) []string {
	raw, ok := stringify(value)
	if !ok {
		return nil
	}
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	tokenCacheMu.Lock()
	if cached, ok := tokenCache.Get(raw); ok {
		tokenCacheMu.Unlock()
		return cached
	}
	tokenCacheMu.Unlock()

	tokens := tokenize(raw)

	tokenCacheMu.Lock()
	tokenCache.Add(raw, tokens)
	tokenCacheMu.Unlock()

	return tokens
}

// stringify converts a field value to the string form it is tokenised from,
// matching the float formatting the dataset's homogenisation pass uses:
// floats are rendered to four significant digits with the decimal point
// dropped, so 1234.5 and 12345 normalise the same way.
func stringify(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case float32:
		return formatFloat(float64(v)), true
	case float64:
		if math.IsNaN(v) {
			return "", true
		}
		return formatFloat(v), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%v", v), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', 4, 64)
	s = strings.ReplaceAll(s, ".", "")
	s = reScientific.ReplaceAllString(s, "")
	return s
}

// tokenize implements the homogenisation pipeline: uppercase, collapse
// whitespace, strip punctuation to spaces, split alpha/digit boundaries on
// values longer than five characters, then hard-split runs of eight
// word-characters. Returns nil for blank input.
func tokenize(value string) []string {
	v := strings.ToUpper(value)
	v = reMultiSpace.ReplaceAllString(v, " ")
	v = rePunctuation.ReplaceAllString(v, " ")

	if len(v) > 5 {
		v = reLetterDigit.ReplaceAllString(v, "$1 $2")
		v = reDigitLetter.ReplaceAllString(v, "$1 $2")
	}

	v = reEightRun.ReplaceAllString(v, "$1 ")
	v = reMultiSpace.ReplaceAllString(v, " ")
	v = strings.TrimSpace(v)

	if v == "" {
		return nil
	}
	return strings.Split(v, " ")
}

// PhoneticVariants returns the Double Metaphone codes for tok, or nil when
// the token is too short (length <= 2) or contains a digit, matching the
// gating the dataset's misspelling-tolerant columns use. Results are
// memoised per token.
func PhoneticVariants(tok string) []string {
	if len(tok) <= 2 || containsDigit(tok) {
		return nil
	}

	phoneticCacheMu.Lock()
	if cached, ok := phoneticCache.Get(tok); ok {
		phoneticCacheMu.Unlock()
		return cached
	}
	phoneticCacheMu.Unlock()

	variants := phonetic.Variants(tok)

	phoneticCacheMu.Lock()
	phoneticCache.Add(tok, variants)
	phoneticCacheMu.Unlock()

	return variants
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
