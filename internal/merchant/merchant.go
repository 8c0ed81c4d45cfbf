// Package merchant maps raw statement narrations to canonical merchant names.
package merchant

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dvloznov/statement-ingest/internal/fuzzy"
)

// DefaultFuzzyFloor is the lowest similarity accepted as a table match.
const DefaultFuzzyFloor = 80

// shortAlias is the alias length below which only whole-word matches count.
// Three-letter aliases like "ola" otherwise match inside unrelated words.
const shortAlias = 4

// containedScale keeps an alias found inside a longer payee below an exact
// table hit.
const containedScale = 0.9

var (
	railPrefix  = regexp.MustCompile(`(?i)^(upi|neft|imps|rtgs|nach|ach|ecs|pos|atm|mmt|bil|vps|vin|ecom|card)\b[\s/:\-]*`)
	railSegment = regexp.MustCompile(`(?i)^(upi|neft|imps|rtgs|nach|ach|ecs|pos|atm|mmt|bil|vps|vin|ecom|card)$`)
	reference   = regexp.MustCompile(`\b[A-Za-z]{0,4}\d{5,}[A-Za-z0-9]*\b`)
	vpa         = regexp.MustCompile(`\S+@\S+`)
)

// trailingNoise are words dropped from the end of a merchant name: cities,
// country codes and company suffixes.
var trailingNoise = map[string]struct{}{
	"bangalore": {}, "bengaluru": {}, "blr": {}, "mumbai": {}, "bombay": {},
	"delhi": {}, "new": {}, "ncr": {}, "gurgaon": {}, "gurugram": {}, "noida": {},
	"hyderabad": {}, "chennai": {}, "pune": {}, "kolkata": {}, "ahmedabad": {},
	"india": {}, "ind": {}, "in": {},
	"pvt": {}, "private": {}, "ltd": {}, "limited": {}, "llp": {}, "inc": {},
}

// Match is a normalization result. Confidence is 100 for a curated exact
// match, the similarity score for a fuzzy match and 0 when the name was only
// cleaned up.
type Match struct {
	Name       string
	Confidence float64
	// Raw is the payee text the match was made from.
	Raw string
}

// Matched reports whether the name came from the curated table.
func (m Match) Matched() bool {
	return m.Confidence > 0
}

type alias struct {
	key  string
	name string
}

// Normalizer holds the curated table. It is read-only after New and safe for
// concurrent use.
type Normalizer struct {
	exact   map[string]string
	aliases []alias
	floor   float64
}

// New builds a Normalizer from entries. A floor of 0 uses DefaultFuzzyFloor.
func New(entries []Entry, floor float64) *Normalizer {
	if floor <= 0 {
		floor = DefaultFuzzyFloor
	}
	n := &Normalizer{
		exact: make(map[string]string),
		floor: floor,
	}
	for _, e := range entries {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		keys := append([]string{e.Name}, e.Aliases...)
		for _, k := range keys {
			key := fuzzy.Clean(k)
			if key == "" {
				continue
			}
			if _, dup := n.exact[key]; !dup {
				n.exact[key] = e.Name
			}
			n.aliases = append(n.aliases, alias{key: key, name: e.Name})
		}
	}
	return n
}

// Normalize resolves raw to a canonical merchant: exact table lookup first,
// then the best fuzzy match at or above the floor, then the title-cased
// cleaned payee with confidence 0. Ties keep the earlier table entry.
func (n *Normalizer) Normalize(raw string) Match {
	payee := Payee(raw)
	key := Key(payee)
	if key == "" {
		return Match{Raw: payee}
	}
	if name, ok := n.exact[key]; ok {
		return Match{Name: name, Confidence: 100, Raw: payee}
	}

	bestName, bestScore := "", 0.0
	for _, a := range n.aliases {
		score := n.score(key, a.key)
		if score > bestScore {
			bestName, bestScore = a.name, score
		}
	}
	if bestScore >= n.floor {
		return Match{Name: bestName, Confidence: math.Round(bestScore*10) / 10, Raw: payee}
	}
	return Match{Name: cases.Title(language.English).String(key), Raw: payee}
}

// score rates a table alias against a payee key. An alias whose words all
// appear in the key scores on substring alignment. Anything else must be close
// to the whole key, so one shared word or a common suffix like "corp" is not
// enough to match.
func (n *Normalizer) score(key, aliasKey string) float64 {
	if containsWords(key, aliasKey) {
		return fuzzy.PartialRatio(key, aliasKey) * containedScale
	}
	if utf8.RuneCountInString(aliasKey) < shortAlias {
		return 0
	}
	return math.Max(fuzzy.Ratio(key, aliasKey), fuzzy.TokenSortRatio(key, aliasKey))
}

// containsWords reports whether every word of alias is a word of key.
func containsWords(key, alias string) bool {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(key) {
		words[w] = struct{}{}
	}
	for _, w := range strings.Fields(alias) {
		if _, ok := words[w]; !ok {
			return false
		}
	}
	return alias != ""
}

// Payee pulls the counterparty out of a narration. Slash-delimited rail
// remarks (UPI/SWIGGY/123456/FOOD) yield their first named segment; other
// narrations lose their rail prefix, VPAs and reference numbers.
func Payee(raw string) string {
	s := strings.TrimSpace(raw)
	parts := strings.Split(s, "/")
	if len(parts) > 1 && railSegment.MatchString(strings.TrimSpace(parts[0])) {
		s = ""
		for _, p := range parts[1:] {
			if p = strings.TrimSpace(p); named(p) {
				s = p
				break
			}
		}
	} else {
		s = railPrefix.ReplaceAllString(s, "")
	}
	s = vpa.ReplaceAllString(s, " ")
	s = reference.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// named reports whether a remark segment looks like a name rather than a
// reference, VPA or bare number.
func named(seg string) bool {
	if strings.Contains(seg, "@") {
		return false
	}
	letters := 0
	for _, r := range seg {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 2 && !reference.MatchString(strings.ReplaceAll(seg, " ", ""))
}

// Key is the lookup form of a payee: lower-case words without punctuation,
// bare numbers or trailing city and company suffixes.
func Key(payee string) string {
	var words []string
	for _, w := range strings.Fields(fuzzy.Clean(payee)) {
		if isNumber(w) {
			continue
		}
		words = append(words, w)
	}
	for len(words) > 1 {
		if _, ok := trailingNoise[words[len(words)-1]]; !ok {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// CleanDescription is the narration in comparable form: rail prefix and
// reference numbers removed, lower-case, no punctuation.
func CleanDescription(raw string) string {
	s := railPrefix.ReplaceAllString(strings.TrimSpace(raw), "")
	s = reference.ReplaceAllString(s, " ")
	var words []string
	for _, w := range strings.Fields(fuzzy.Clean(s)) {
		if w == "upi" || w == "ref" || isNumber(w) {
			continue
		}
		words = append(words, w)
	}
	return strings.Join(words, " ")
}

func isNumber(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return w != ""
}
