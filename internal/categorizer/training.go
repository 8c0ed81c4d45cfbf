package categorizer

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// Evaluation is the accuracy of a model on held-out samples.
type Evaluation struct {
	Total       int
	Correct     int
	Accuracy    float64
	PerCategory map[domain.Category]float64
}

// Evaluate scores m on samples. Accuracy is 0 when samples is empty.
func Evaluate(m *Model, samples []Sample) Evaluation {
	ev := Evaluation{PerCategory: make(map[domain.Category]float64)}
	totals := make(map[domain.Category]int)
	correct := make(map[domain.Category]int)
	for _, s := range samples {
		want := domain.CoerceCategory(string(s.Category))
		totals[want]++
		ev.Total++
		if m.Predict(s.Text).Category == want {
			correct[want]++
			ev.Correct++
		}
	}
	if ev.Total > 0 {
		ev.Accuracy = float64(ev.Correct) / float64(ev.Total)
	}
	for c, n := range totals {
		ev.PerCategory[c] = float64(correct[c]) / float64(n)
	}
	return ev
}

// groupByCategory buckets samples per category in first-seen order.
func groupByCategory(samples []Sample) ([]domain.Category, map[domain.Category][]Sample) {
	var order []domain.Category
	groups := make(map[domain.Category][]Sample)
	for _, s := range samples {
		c := domain.CoerceCategory(string(s.Category))
		if _, ok := groups[c]; !ok {
			order = append(order, c)
		}
		groups[c] = append(groups[c], s)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return order, groups
}

// StratifiedSplit holds out testFraction of every category. Categories with
// a single sample stay in the training set. The same seed gives the same
// split.
func StratifiedSplit(samples []Sample, testFraction float64, seed int64) (train, test []Sample) {
	rng := rand.New(rand.NewSource(seed))
	order, groups := groupByCategory(samples)
	for _, c := range order {
		group := append([]Sample(nil), groups[c]...)
		rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })

		n := int(math.Round(float64(len(group)) * testFraction))
		if n == 0 && len(group) > 1 && testFraction > 0 {
			n = 1
		}
		if n >= len(group) {
			n = len(group) - 1
		}
		test = append(test, group[:n]...)
		train = append(train, group[n:]...)
	}
	return train, test
}

// CrossValidation is the per-fold accuracy of a k-fold run.
type CrossValidation struct {
	Folds []float64
	Mean  float64
}

// CrossValidate trains k models, each holding out one stratified fold.
func CrossValidate(samples []Sample, k int, seed int64) (CrossValidation, error) {
	if k < 2 {
		return CrossValidation{}, fmt.Errorf("cross-validation needs k >= 2, got %d", k)
	}
	if len(samples) < k {
		return CrossValidation{}, fmt.Errorf("cross-validation needs at least %d samples, got %d", k, len(samples))
	}

	rng := rand.New(rand.NewSource(seed))
	folds := make([][]Sample, k)
	order, groups := groupByCategory(samples)
	next := 0
	for _, c := range order {
		group := append([]Sample(nil), groups[c]...)
		rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })
		for _, s := range group {
			folds[next%k] = append(folds[next%k], s)
			next++
		}
	}

	var cv CrossValidation
	for i := range folds {
		var train []Sample
		for j := range folds {
			if j != i {
				train = append(train, folds[j]...)
			}
		}
		m, err := Train(train)
		if err != nil {
			return CrossValidation{}, fmt.Errorf("fold %d: %w", i+1, err)
		}
		cv.Folds = append(cv.Folds, Evaluate(m, folds[i]).Accuracy)
	}
	sum := 0.0
	for _, a := range cv.Folds {
		sum += a
	}
	cv.Mean = sum / float64(len(cv.Folds))
	return cv, nil
}
