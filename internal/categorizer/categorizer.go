// Package categorizer assigns a category to each transaction: ordered
// keyword rules first, then an optional naive Bayes model.
package categorizer

import (
	"strings"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/fuzzy"
)

// Categorizer is safe for concurrent use once built.
type Categorizer struct {
	rules []compiledRule
	model *Model
}

// New builds a Categorizer. Nil rules means DefaultRules; a nil model turns
// the model tier off.
func New(rules []Rule, model *Model) *Categorizer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Categorizer{rules: compileRules(rules), model: model}
}

// Text is what rules and model read for a transaction: the raw and clean
// descriptions plus the canonical merchant, cleaned.
func Text(tx *domain.Transaction) string {
	parts := []string{tx.RawDescription, tx.CleanDescription, tx.MerchantCanonical}
	return fuzzy.Clean(strings.Join(parts, " "))
}

// Categorize returns the first matching rule's category with confidence 1,
// else the model's prediction, else Unknown with confidence 0.
func (c *Categorizer) Categorize(tx *domain.Transaction) Prediction {
	return c.CategorizeText(Text(tx))
}

// CategorizeText is Categorize for bare text.
func (c *Categorizer) CategorizeText(text string) Prediction {
	text = fuzzy.Clean(text)
	if text == "" {
		return Prediction{Category: domain.CategoryUnknown}
	}
	if cat, ok := match(c.rules, text); ok {
		return Prediction{Category: cat, Confidence: 1}
	}
	return c.model.Predict(text)
}
