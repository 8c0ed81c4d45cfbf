package categorizer

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

func TestCategorize_Rules(t *testing.T) {
	c := New(nil, nil)

	tests := []struct {
		name     string
		tx       domain.Transaction
		want     domain.Category
		wantConf float64
	}{
		{name: "food delivery", tx: domain.Transaction{RawDescription: "UPI/SWIGGY/123456/FOOD"}, want: domain.CategoryFood, wantConf: 1},
		{name: "loan wins over merchant", tx: domain.Transaction{RawDescription: "ZOMATO EMI 3 OF 6"}, want: domain.CategoryLoanEMI, wantConf: 1},
		{name: "salary", tx: domain.Transaction{RawDescription: "NEFT/ACME CORP/SALARY"}, want: domain.CategorySalary, wantConf: 1},
		{name: "cash", tx: domain.Transaction{RawDescription: "ATM WDL 12345"}, want: domain.CategoryCash, wantConf: 1},
		{name: "sip", tx: domain.Transaction{RawDescription: "ACH/HDFC MUTUAL FUND SIP"}, want: domain.CategoryInvestment, wantConf: 1},
		{name: "insurance", tx: domain.Transaction{RawDescription: "LIC PREMIUM 44512"}, want: domain.CategoryInsurance, wantConf: 1},
		{name: "plain transfer", tx: domain.Transaction{RawDescription: "IMPS/JOHN DOE/887766"}, want: domain.CategoryTransfer, wantConf: 1},
		{name: "canonical merchant", tx: domain.Transaction{RawDescription: "POS 4412 XYZ", MerchantCanonical: "Amazon"}, want: domain.CategoryShopping, wantConf: 1},
		{name: "no keyword and no model", tx: domain.Transaction{RawDescription: "QWERTY ASDF"}, want: domain.CategoryUnknown},
		{name: "empty", tx: domain.Transaction{}, want: domain.CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Categorize(&tt.tx)
			if got.Category != tt.want || got.Confidence != tt.wantConf {
				t.Errorf("Categorize() = %+v, want %s with %v", got, tt.want, tt.wantConf)
			}
		})
	}
}

func TestCategorize_CustomRulesOrder(t *testing.T) {
	c := New([]Rule{
		{Category: domain.CategoryTravel, Keywords: []string{"uber"}},
		{Category: domain.CategoryTransport, Keywords: []string{"uber"}},
	}, nil)
	if got := c.CategorizeText("UBER TRIP"); got.Category != domain.CategoryTravel {
		t.Errorf("first rule should win, got %s", got.Category)
	}
}

// labeled builds n samples per category; every sample carries the
// category's marker word plus a filler word.
func labeled(n int) []Sample {
	markers := map[domain.Category]string{
		domain.CategoryFood:      "biryani",
		domain.CategoryGroceries: "vegetables",
		domain.CategoryTravel:    "hostel",
	}
	fillers := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel"}
	var out []Sample
	for _, c := range []domain.Category{domain.CategoryFood, domain.CategoryGroceries, domain.CategoryTravel} {
		for i := 0; i < n; i++ {
			out = append(out, Sample{
				Text:     fmt.Sprintf("%s %s %d", markers[c], fillers[i%len(fillers)], i),
				Category: c,
			})
		}
	}
	return out
}

func TestTrainAndPredict(t *testing.T) {
	m, err := Train(labeled(6))
	if err != nil {
		t.Fatalf("Train() unexpected error: %v", err)
	}

	got := m.Predict("paradise biryani order")
	if got.Category != domain.CategoryFood {
		t.Errorf("Predict() = %+v, want Food & Dining", got)
	}
	if got.Confidence <= 0.5 || got.Confidence > 1 {
		t.Errorf("Confidence = %v, want in (0.5, 1]", got.Confidence)
	}

	if got := m.Predict("  "); got.Category != domain.CategoryUnknown || got.Confidence != 0 {
		t.Errorf("empty text: got %+v", got)
	}

	var nilModel *Model
	if got := nilModel.Predict("biryani"); got.Category != domain.CategoryUnknown || got.Confidence != 0 {
		t.Errorf("nil model: got %+v", got)
	}
}

func TestModelTierAfterRules(t *testing.T) {
	m, err := Train(labeled(6))
	if err != nil {
		t.Fatalf("Train() unexpected error: %v", err)
	}
	c := New(nil, m)

	if got := c.CategorizeText("fresh vegetables cart"); got.Category != domain.CategoryGroceries || got.Confidence >= 1 {
		t.Errorf("model tier: got %+v", got)
	}
	if got := c.CategorizeText("swiggy vegetables"); got.Category != domain.CategoryFood || got.Confidence != 1 {
		t.Errorf("rule tier should win: got %+v", got)
	}
}

func TestTrain_TooFewCategories(t *testing.T) {
	_, err := Train([]Sample{{Text: "biryani", Category: domain.CategoryFood}, {Text: "pizza", Category: domain.CategoryFood}})
	if !errors.Is(err, ErrTooFewCategories) {
		t.Fatalf("Train() error = %v, want ErrTooFewCategories", err)
	}
}

func TestModel_SaveLoad(t *testing.T) {
	m, err := Train(labeled(6))
	if err != nil {
		t.Fatalf("Train() unexpected error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.gob")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save() unexpected error: %v", err)
	}
	loaded, err := LoadModel(path)
	if err != nil {
		t.Fatalf("LoadModel() unexpected error: %v", err)
	}

	for _, text := range []string{"biryani feast", "vegetables", "hostel booking", "unseen words only"} {
		if diff := cmp.Diff(m.Predict(text), loaded.Predict(text)); diff != "" {
			t.Errorf("prediction for %q changed after reload (-before +after):\n%s", text, diff)
		}
	}
	if diff := cmp.Diff(m.Categories(), loaded.Categories()); diff != "" {
		t.Errorf("categories changed (-before +after):\n%s", diff)
	}

	if _, err := LoadModel(filepath.Join(t.TempDir(), "missing.gob")); err == nil {
		t.Error("LoadModel() of a missing file should fail")
	}
}

func TestStratifiedSplit(t *testing.T) {
	samples := labeled(10)
	train, test := StratifiedSplit(samples, 0.2, 42)

	if len(train)+len(test) != len(samples) {
		t.Fatalf("split lost samples: %d + %d != %d", len(train), len(test), len(samples))
	}
	counts := make(map[domain.Category]int)
	for _, s := range test {
		counts[s.Category]++
	}
	for _, c := range []domain.Category{domain.CategoryFood, domain.CategoryGroceries, domain.CategoryTravel} {
		if counts[c] != 2 {
			t.Errorf("test set has %d %s samples, want 2", counts[c], c)
		}
	}

	train2, test2 := StratifiedSplit(samples, 0.2, 42)
	if diff := cmp.Diff(test, test2); diff != "" {
		t.Errorf("same seed gave a different split:\n%s", diff)
	}
	if len(train2) != len(train) {
		t.Errorf("train size changed between runs")
	}
}

func TestEvaluate(t *testing.T) {
	samples := labeled(10)
	train, test := StratifiedSplit(samples, 0.3, 7)
	m, err := Train(train)
	if err != nil {
		t.Fatalf("Train() unexpected error: %v", err)
	}

	ev := Evaluate(m, test)
	if ev.Total != len(test) {
		t.Errorf("Total = %d, want %d", ev.Total, len(test))
	}
	if ev.Accuracy != 1 {
		t.Errorf("Accuracy = %v, want 1 on separable data", ev.Accuracy)
	}
	if len(ev.PerCategory) != 3 {
		t.Errorf("PerCategory = %v, want 3 entries", ev.PerCategory)
	}
}

func TestCrossValidate(t *testing.T) {
	cv, err := CrossValidate(labeled(6), 3, 1)
	if err != nil {
		t.Fatalf("CrossValidate() unexpected error: %v", err)
	}
	if len(cv.Folds) != 3 {
		t.Fatalf("Folds = %v, want 3", cv.Folds)
	}
	if cv.Mean < 0.9 {
		t.Errorf("Mean = %v, want >= 0.9 on separable data", cv.Mean)
	}

	if _, err := CrossValidate(labeled(1), 1, 1); err == nil {
		t.Error("CrossValidate() with k=1 should fail")
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("UPI to Paradise Biryani 123456")
	want := []string{"paradise", "biryani", "paradise_biryani"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Tokens() mismatch (-want +got):\n%s", diff)
	}
}
