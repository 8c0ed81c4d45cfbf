package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/categorizer"
	"github.com/dvloznov/statement-ingest/internal/dedup"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/extractor"
	"github.com/dvloznov/statement-ingest/internal/fielddetect"
	"github.com/dvloznov/statement-ingest/internal/merchant"
	"github.com/dvloznov/statement-ingest/internal/normalizer"
	"github.com/dvloznov/statement-ingest/internal/patterns"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
)

const statementCSV = `Txn Date,Narration,Withdrawal Amt,Deposit Amt,Closing Balance
01/01/2024,SWIGGY BANGALORE,450.00,,9550.00
01/01/2024,SWIGGY BLR,450.00,,9100.00
02/01/2024,NEFT/ACME CORP/SALARY,,50000.00,59100.00
not a date,BROKEN ROW,10.00,,
`

var ingestTime = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

// MockSession is a mock implementation of Session for testing.
type MockSession struct {
	ExistingFunc func(ctx context.Context, accountID string, from, to civil.Date) ([]*domain.Transaction, error)
	SaveFunc     func(ctx context.Context, batch *pipeline.Batch) error

	saved  []*pipeline.Batch
	closed bool
}

func (m *MockSession) ExistingTransactions(ctx context.Context, accountID string, from, to civil.Date) ([]*domain.Transaction, error) {
	if m.ExistingFunc != nil {
		return m.ExistingFunc(ctx, accountID, from, to)
	}
	return nil, nil
}

func (m *MockSession) SaveTransactions(ctx context.Context, batch *pipeline.Batch) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, batch); err != nil {
			return err
		}
	}
	m.saved = append(m.saved, batch)
	return nil
}

func (m *MockSession) Close() error {
	m.closed = true
	return nil
}

// MockClassifier is a mock implementation of Classifier for testing.
type MockClassifier struct {
	CategorizeFunc func(tx *domain.Transaction) categorizer.Prediction
}

func (m *MockClassifier) Categorize(tx *domain.Transaction) categorizer.Prediction {
	return m.CategorizeFunc(tx)
}

func testDeps(session *MockSession) pipeline.Dependencies {
	n := 0
	norm := normalizer.New("INR")
	norm.Now = func() time.Time { return ingestTime }
	norm.NewID = func() string {
		n++
		return fmt.Sprintf("tx-%d", n)
	}
	deps := pipeline.Dependencies{
		Extractor:   extractor.New(extractor.DefaultConfig()),
		Normalizer:  norm,
		Merchants:   merchant.New(merchant.DefaultEntries(), 0),
		Categorizer: categorizer.New(nil, nil),
		Dedup:       dedup.New(dedup.DefaultConfig()),
		Patterns:    patterns.DefaultConfig(),
		Now:         func() time.Time { return ingestTime },
		NewRunID:    func() string { return "run-1" },
	}
	if session != nil {
		deps.Sessions = pipeline.SessionFactoryFunc(func(context.Context) (pipeline.Session, error) {
			return session, nil
		})
	}
	return deps
}

func upload(data string) pipeline.Upload {
	return pipeline.Upload{Name: "jan.csv", Data: []byte(data), UserID: "u-1", AccountID: "acc-1"}
}

func TestIngest(t *testing.T) {
	var gotFrom, gotTo civil.Date
	session := &MockSession{
		ExistingFunc: func(_ context.Context, accountID string, from, to civil.Date) ([]*domain.Transaction, error) {
			if accountID != "acc-1" {
				t.Errorf("accountID = %q", accountID)
			}
			gotFrom, gotTo = from, to
			return nil, nil
		},
	}

	res, err := pipeline.Ingest(context.Background(), upload(statementCSV), testDeps(session))
	if err != nil {
		t.Fatalf("Ingest() unexpected error: %v", err)
	}

	if len(res.Transactions) != 3 || len(res.Flat) != 3 {
		t.Fatalf("got %d transactions and %d flat records, want 3", len(res.Transactions), len(res.Flat))
	}
	if res.Extraction.SuccessStrategy != extractor.StrategyTableGrid {
		t.Errorf("SuccessStrategy = %q", res.Extraction.SuccessStrategy)
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", res.Skipped)
	}

	swiggy, blr, salary := res.Transactions[0], res.Transactions[1], res.Transactions[2]
	if swiggy.MerchantCanonical != "Swiggy" || swiggy.Category != domain.CategoryFood {
		t.Errorf("swiggy enriched as %q / %q", swiggy.MerchantCanonical, swiggy.Category)
	}
	if swiggy.MerchantID != domain.MerchantID("Swiggy") {
		t.Errorf("MerchantID = %q", swiggy.MerchantID)
	}
	if salary.Category != domain.CategorySalary || salary.Direction != domain.DirectionCredit {
		t.Errorf("salary = %s %s", salary.Category, salary.Direction)
	}
	if !blr.IsDuplicate || blr.DuplicateOf != swiggy.ID || swiggy.DuplicateCount != 1 {
		t.Errorf("SWIGGY BLR should duplicate %s: %+v", swiggy.ID, blr)
	}
	if res.Unique != 2 || res.Duplicates != 1 {
		t.Errorf("Unique/Duplicates = %d/%d, want 2/1", res.Unique, res.Duplicates)
	}
	if diff := cmp.Diff(map[string]int{"groups_found": 1, "total_merged": 1, "largest_group": 2}, res.DedupStatsMap); diff != "" {
		t.Errorf("DedupStatsMap mismatch (-want +got):\n%s", diff)
	}

	if gotFrom != (civil.Date{Year: 2023, Month: 12, Day: 31}) || gotTo != (civil.Date{Year: 2024, Month: 1, Day: 3}) {
		t.Errorf("existing window = %s..%s", gotFrom, gotTo)
	}
	if len(session.saved) != 1 {
		t.Fatalf("SaveTransactions called %d times, want 1", len(session.saved))
	}
	batch := session.saved[0]
	if batch.RunID != "run-1" || batch.AccountID != "acc-1" || len(batch.Flat) != 3 {
		t.Errorf("batch = %+v", batch)
	}
	if batch.Flat[1][normalizer.KeyDuplicateOf] != swiggy.ID {
		t.Errorf("flat duplicate_of = %v", batch.Flat[1][normalizer.KeyDuplicateOf])
	}
	if !session.closed {
		t.Error("session not closed")
	}
}

func TestIngest_AgainstStoredTransactions(t *testing.T) {
	stored := &domain.Transaction{
		ID:             "stored-1",
		AccountID:      "acc-1",
		Date:           civil.Date{Year: 2024, Month: 1, Day: 1},
		Amount:         decimal.RequireFromString("450"),
		Direction:      domain.DirectionDebit,
		RawDescription: "SWIGGY BANGALORE",
		Category:       domain.CategoryFood,
		IngestedAt:     ingestTime.Add(-30 * 24 * time.Hour),
	}
	session := &MockSession{
		ExistingFunc: func(context.Context, string, civil.Date, civil.Date) ([]*domain.Transaction, error) {
			return []*domain.Transaction{stored}, nil
		},
	}

	res, err := pipeline.Ingest(context.Background(), upload(statementCSV), testDeps(session))
	if err != nil {
		t.Fatalf("Ingest() unexpected error: %v", err)
	}
	if res.Duplicates != 2 {
		t.Errorf("Duplicates = %d, want both swiggy rows", res.Duplicates)
	}
	for _, tx := range res.Transactions[:2] {
		if tx.DuplicateOf != "stored-1" {
			t.Errorf("%s.DuplicateOf = %q, want stored-1", tx.ID, tx.DuplicateOf)
		}
	}
}

func TestIngest_FatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		data    string
		saveErr error
		check   func(t *testing.T, err error)
	}{
		{
			name: "missing columns",
			data: "Reference,Value\nA1,10.00\n",
			check: func(t *testing.T, err error) {
				var colErr *fielddetect.ColumnDetectionError
				if !errors.As(err, &colErr) {
					t.Errorf("error = %v, want ColumnDetectionError", err)
				}
				if !strings.Contains(err.Error(), "extract") {
					t.Errorf("error should name the step: %v", err)
				}
			},
		},
		{
			name: "nothing extractable",
			file: "notes.txt",
			data: "just some prose\nwithout any rows\n",
			check: func(t *testing.T, err error) {
				var exhausted *extractor.ExtractionExhaustedError
				if !errors.As(err, &exhausted) {
					t.Errorf("error = %v, want ExtractionExhaustedError", err)
				}
			},
		},
		{
			name:    "save fails",
			data:    statementCSV,
			saveErr: errors.New("sink unavailable"),
			check: func(t *testing.T, err error) {
				if err == nil || !strings.Contains(err.Error(), "sink unavailable") {
					t.Errorf("error = %v, want the sink error", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &MockSession{
				SaveFunc: func(context.Context, *pipeline.Batch) error { return tt.saveErr },
			}
			up := upload(tt.data)
			if tt.file != "" {
				up.Name = tt.file
			}
			res, err := pipeline.Ingest(context.Background(), up, testDeps(session))
			if err == nil {
				t.Fatal("Ingest() expected an error")
			}
			if res != nil {
				t.Errorf("Ingest() returned a partial result")
			}
			tt.check(t, err)
			if len(session.saved) != 0 {
				t.Errorf("nothing should be saved on failure")
			}
			if !session.closed {
				t.Error("session not closed after failure")
			}
		})
	}
}

func TestIngest_EnrichmentFailureKeepsTransaction(t *testing.T) {
	session := &MockSession{}
	deps := testDeps(session)
	deps.Categorizer = &MockClassifier{
		CategorizeFunc: func(tx *domain.Transaction) categorizer.Prediction {
			if strings.Contains(tx.RawDescription, "SALARY") {
				panic("model file corrupted")
			}
			return categorizer.Prediction{Category: domain.CategoryFood, Confidence: 0.7}
		},
	}

	res, err := pipeline.Ingest(context.Background(), upload(statementCSV), deps)
	if err != nil {
		t.Fatalf("Ingest() unexpected error: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want 1", res.Warnings)
	}
	w := res.Warnings[0]
	if w.TransactionID != "tx-3" || w.Stage != pipeline.StageCategory || !strings.Contains(w.Error(), "model file corrupted") {
		t.Errorf("warning = %+v", w)
	}
	salary := res.Transactions[2]
	if salary.Category != domain.CategoryUnknown || salary.CategoryConfidence != nil || salary.MerchantCanonical != "" {
		t.Errorf("failed transaction should pass through unenriched: %+v", salary)
	}
	if len(session.saved) != 1 || len(session.saved[0].Transactions) != 3 {
		t.Errorf("batch should still be saved with every transaction")
	}
}

func TestIngest_WithoutSession(t *testing.T) {
	res, err := pipeline.Ingest(context.Background(), upload(statementCSV), testDeps(nil))
	if err != nil {
		t.Fatalf("Ingest() unexpected error: %v", err)
	}
	if len(res.Flat) != 3 {
		t.Errorf("Flat = %d records, want 3", len(res.Flat))
	}
}

func TestIngest_InvalidInput(t *testing.T) {
	if _, err := pipeline.Ingest(context.Background(), upload(""), testDeps(nil)); err == nil {
		t.Error("empty upload should fail")
	}
	if _, err := pipeline.Ingest(context.Background(), upload(statementCSV), pipeline.Dependencies{}); err == nil {
		t.Error("missing dependencies should fail")
	}
}

func TestIngest_DetectPatterns(t *testing.T) {
	csv := `Txn Date,Narration,Withdrawal Amt,Deposit Amt,Closing Balance
01/01/2024,ACME,40050.00,,
03/01/2024,ACME,,40050.00,
04/02/2024,ACME EMI,3338.00,,
05/03/2024,ACME EMI,3338.00,,
`
	deps := testDeps(&MockSession{})
	deps.DetectPatterns = true

	res, err := pipeline.Ingest(context.Background(), upload(csv), deps)
	if err != nil {
		t.Fatalf("Ingest() unexpected error: %v", err)
	}
	if len(res.EMIConversions) != 1 {
		t.Fatalf("EMIConversions = %d, want 1", len(res.EMIConversions))
	}
	if res.Flat[0]["metadata"].(map[string]any)[patterns.MetaEMIConverted] != true {
		t.Errorf("purchase metadata = %v", res.Flat[0]["metadata"])
	}
	if len(res.Patterns) == 0 {
		t.Error("want the installments reported as a recurring pattern")
	}
}

func TestNewIngestionPipeline_Steps(t *testing.T) {
	deps := testDeps(nil)
	want := []string{"extract", "normalize", "enrich", "load_existing", "dedup", "persist"}
	if diff := cmp.Diff(want, pipeline.NewIngestionPipeline(deps).Steps()); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}

	deps.DetectPatterns = true
	want = []string{"extract", "normalize", "enrich", "load_existing", "dedup", "detect_patterns", "persist"}
	if diff := cmp.Diff(want, pipeline.NewIngestionPipeline(deps).Steps()); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}
