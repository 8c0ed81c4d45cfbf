package categorizer

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jbrukh/bayesian"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/fuzzy"
)

// ErrTooFewCategories is returned when training data covers fewer than two
// categories.
var ErrTooFewCategories = errors.New("training needs at least two categories")

// Sample is one labeled description.
type Sample struct {
	Text     string
	Category domain.Category
}

// Prediction is a category with a confidence in [0, 1].
type Prediction struct {
	Category   domain.Category
	Confidence float64
}

// Model is a naive Bayes classifier over unigram and bigram tokens.
type Model struct {
	cl *bayesian.Classifier
}

var stopwords = map[string]struct{}{
	"to": {}, "from": {}, "the": {}, "of": {}, "and": {}, "for": {},
	"upi": {}, "ref": {}, "no": {}, "txn": {}, "payment": {},
}

// Tokens turns text into the features the model sees: cleaned words without
// numbers or stopwords, followed by adjacent-word bigrams.
func Tokens(text string) []string {
	var words []string
	for _, w := range strings.Fields(fuzzy.Clean(text)) {
		if _, stop := stopwords[w]; stop || hasDigit(w) || len(w) < 2 {
			continue
		}
		words = append(words, w)
	}
	tokens := append([]string(nil), words...)
	for i := 0; i+1 < len(words); i++ {
		tokens = append(tokens, words[i]+"_"+words[i+1])
	}
	return tokens
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

// Train fits a model on samples. Samples with no usable tokens are ignored.
func Train(samples []Sample) (*Model, error) {
	seen := make(map[domain.Category]struct{})
	var classes []bayesian.Class
	for _, s := range samples {
		if len(Tokens(s.Text)) == 0 {
			continue
		}
		c := domain.CoerceCategory(string(s.Category))
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		classes = append(classes, bayesian.Class(c))
	}
	if len(classes) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewCategories, len(classes))
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })

	cl := bayesian.NewClassifier(classes...)
	for _, s := range samples {
		tokens := Tokens(s.Text)
		if len(tokens) == 0 {
			continue
		}
		cl.Learn(tokens, bayesian.Class(domain.CoerceCategory(string(s.Category))))
	}
	return &Model{cl: cl}, nil
}

// Predict classifies text. A nil model or text without tokens gives Unknown
// with confidence 0.
func (m *Model) Predict(text string) Prediction {
	tokens := Tokens(text)
	if m == nil || m.cl == nil || len(tokens) == 0 {
		return Prediction{Category: domain.CategoryUnknown}
	}
	scores, best, strict := m.cl.ProbScores(tokens)
	if !strict || best < 0 || best >= len(m.cl.Classes) {
		return Prediction{Category: domain.CategoryUnknown}
	}
	return Prediction{
		Category:   domain.CoerceCategory(string(m.cl.Classes[best])),
		Confidence: scores[best],
	}
}

// Categories lists the classes the model knows.
func (m *Model) Categories() []domain.Category {
	if m == nil || m.cl == nil {
		return nil
	}
	out := make([]domain.Category, len(m.cl.Classes))
	for i, c := range m.cl.Classes {
		out[i] = domain.Category(c)
	}
	return out
}

// Save writes the model to path.
func (m *Model) Save(path string) error {
	if m == nil || m.cl == nil {
		return errors.New("save: model is empty")
	}
	if err := m.cl.WriteToFile(path); err != nil {
		return fmt.Errorf("save model to %s: %w", path, err)
	}
	return nil
}

// LoadModel reads a model written by Save.
func LoadModel(path string) (*Model, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	cl, err := bayesian.NewClassifierFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load model from %s: %w", path, err)
	}
	return &Model{cl: cl}, nil
}
