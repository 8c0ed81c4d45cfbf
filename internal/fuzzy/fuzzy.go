// Package fuzzy scores how similar two short strings are on a 0-100 scale.
//
// Scores are built on the edit-distance ratio from golang-levenshtein and
// combined the way weighted ratio scorers usually are: plain ratio for strings
// of similar length, best substring/token alignment otherwise.
package fuzzy

import (
	"sort"
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

const (
	unbaseScale      = 0.95
	partialScale     = 0.9
	longPartialScale = 0.6
)

// Clean lowercases s, replaces anything that is not a letter or digit with a
// space and collapses runs of spaces.
func Clean(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// Ratio is the edit-distance similarity of a and b scaled to 0-100.
// Substitutions cost two, so the score tracks the longest common subsequence.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	return levenshtein.RatioForStrings(ra, rb, levenshtein.DefaultOptions) * 100
}

// PartialRatio is the best Ratio of the shorter string against every window of
// the same length in the longer one.
func PartialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}
	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		r := levenshtein.RatioForStrings(short, long[i:i+len(short)], levenshtein.DefaultOptions) * 100
		if r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// TokenSortRatio compares the strings after sorting their tokens.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedTokens(Clean(a)), sortedTokens(Clean(b)))
}

// PartialTokenSortRatio is TokenSortRatio with substring alignment.
func PartialTokenSortRatio(a, b string) float64 {
	return PartialRatio(sortedTokens(Clean(a)), sortedTokens(Clean(b)))
}

// TokenSetRatio compares the shared tokens against each side's remainder.
func TokenSetRatio(a, b string) float64 {
	return tokenSet(Clean(a), Clean(b), Ratio)
}

// PartialTokenSetRatio is TokenSetRatio with substring alignment.
func PartialTokenSetRatio(a, b string) float64 {
	return tokenSet(Clean(a), Clean(b), PartialRatio)
}

func tokenSet(a, b string, score func(string, string) float64) float64 {
	if a == "" || b == "" {
		return 0
	}
	setA := tokenSetOf(a)
	setB := tokenSetOf(b)

	var sect, diffAB, diffBA []string
	for t := range setA {
		if _, ok := setB[t]; ok {
			sect = append(sect, t)
		} else {
			diffAB = append(diffAB, t)
		}
	}
	for t := range setB {
		if _, ok := setA[t]; !ok {
			diffBA = append(diffBA, t)
		}
	}
	sort.Strings(sect)
	sort.Strings(diffAB)
	sort.Strings(diffBA)

	s := strings.Join(sect, " ")
	c1 := strings.TrimSpace(s + " " + strings.Join(diffAB, " "))
	c2 := strings.TrimSpace(s + " " + strings.Join(diffBA, " "))

	return max(score(s, c1), score(s, c2), score(c1, c2))
}

func tokenSetOf(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		set[t] = struct{}{}
	}
	return set
}

// WRatio is the weighted similarity used for descriptions and merchant names.
// Inputs are cleaned first; an empty side scores 0.
func WRatio(a, b string) float64 {
	a, b = Clean(a), Clean(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	base := Ratio(a, b)
	la, lb := float64(len([]rune(a))), float64(len([]rune(b)))
	lenRatio := max(la, lb) / min(la, lb)

	if lenRatio < 1.5 {
		return max(base,
			TokenSortRatio(a, b)*unbaseScale,
			TokenSetRatio(a, b)*unbaseScale,
		)
	}

	scale := partialScale
	if lenRatio >= 8 {
		scale = longPartialScale
	}
	return max(base,
		PartialRatio(a, b)*scale,
		PartialTokenSortRatio(a, b)*unbaseScale*scale,
		PartialTokenSetRatio(a, b)*unbaseScale*scale,
	)
}
