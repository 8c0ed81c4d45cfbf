// Package patterns derives higher-level annotations from an enriched batch:
// purchases converted to EMI, recurring payments and unusually large
// transactions.
package patterns

import (
	"regexp"
	"sort"
	"strings"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/fuzzy"
	"github.com/dvloznov/statement-ingest/internal/merchant"
)

var rail = regexp.MustCompile(`(?i)^(upi|neft|nach|ach|imps|ecs|rtgs|pos)$`)

// installmentWords are dropped from a merchant key so "ACME EMI 3/12"
// compares equal to "ACME".
var installmentWords = map[string]struct{}{
	"emi": {}, "emis": {}, "installment": {}, "instalment": {}, "inst": {}, "of": {}, "no": {},
}

// PlatformKey is the grouping key for a transaction: rail and first named
// payee of a slash-delimited remark ("upi:platform x"), else the canonical
// merchant, else the cleaned description.
func PlatformKey(tx *domain.Transaction) string {
	parts := strings.Split(strings.TrimSpace(tx.RawDescription), "/")
	if len(parts) > 1 && rail.MatchString(strings.TrimSpace(parts[0])) {
		for _, p := range parts[1:] {
			if k := merchant.Key(p); k != "" && hasLetter(k) && !strings.Contains(p, "@") {
				return strings.ToLower(strings.TrimSpace(parts[0])) + ":" + k
			}
		}
	}
	if tx.MerchantCanonical != "" {
		return fuzzy.Clean(tx.MerchantCanonical)
	}
	return merchant.CleanDescription(tx.RawDescription)
}

// merchantKey is the name used to compare merchants across purchase, refund
// and installment rows.
func merchantKey(tx *domain.Transaction) string {
	name := tx.MerchantCanonical
	if name == "" {
		name = merchant.Payee(tx.RawDescription)
	}
	var words []string
	for _, w := range strings.Fields(merchant.Key(name)) {
		if _, skip := installmentWords[w]; skip {
			continue
		}
		words = append(words, w)
	}
	return strings.Join(words, " ")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return true
		}
	}
	return false
}

// hasWord reports whether any of words appears as a whole word in the
// cleaned text.
func hasWord(text string, words ...string) bool {
	padded := " " + fuzzy.Clean(text) + " "
	for _, w := range words {
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
	}
	return false
}

// chronological returns the non-duplicate transactions ordered by date,
// keeping input order within a day.
func chronological(txs []*domain.Transaction) []*domain.Transaction {
	out := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx != nil && !tx.IsDuplicate {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
