package pipeline

import (
	"fmt"
	"time"

	"github.com/dvloznov/statement-ingest/internal/dedup"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/extractor"
	"github.com/dvloznov/statement-ingest/internal/normalizer"
	"github.com/dvloznov/statement-ingest/internal/patterns"
)

// Upload is one raw statement file and who it belongs to.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte

	UserID    string
	AccountID string
	// Currency overrides the default currency for rows that do not state one.
	Currency string
	// BankName overrides the bank name found in the statement header.
	BankName string
}

// Dependencies are the collaborators of an ingestion. Extractor, Normalizer
// and Dedup are required; a nil Sessions runs without reading or saving
// anything.
type Dependencies struct {
	Extractor   DocumentExtractor
	Normalizer  *normalizer.Normalizer
	Merchants   MerchantNormalizer
	Categorizer Classifier
	Dedup       *dedup.Detector

	DetectPatterns bool
	Patterns       patterns.Config

	Sessions SessionFactory
	Now      func() time.Time
	NewRunID func() string
}

// Stages named in enrichment warnings.
const (
	StageMerchant = "merchant"
	StageCategory = "category"
)

// EnrichmentWarning records a transaction that could not be enriched. The
// transaction is kept with its merchant and category fields as they were.
type EnrichmentWarning struct {
	TransactionID string
	Stage         string
	Err           error
}

func (w EnrichmentWarning) Error() string {
	return fmt.Sprintf("enriching %s (%s): %v", w.TransactionID, w.Stage, w.Err)
}

func (w EnrichmentWarning) Unwrap() error {
	return w.Err
}

// Batch is what a Session saves: the finished records with the run that
// produced them.
type Batch struct {
	RunID      string
	UploadName string
	UserID     string
	AccountID  string
	StartedAt  time.Time
	FinishedAt time.Time

	Extraction   *extractor.Result
	Transactions []*domain.Transaction
	// Flat holds normalizer.ToFlat of each transaction, in the same order.
	Flat       []map[string]any
	DedupStats dedup.Stats
}

// Result is a completed ingestion.
type Result struct {
	RunID        string
	Transactions []*domain.Transaction
	Flat         []map[string]any
	Extraction   *extractor.Result

	Unique     int
	Duplicates int
	DedupStats dedup.Stats
	// DedupStatsMap is DedupStats with snake_case keys.
	DedupStatsMap map[string]int

	Patterns       []patterns.RecurringPattern
	EMIConversions []patterns.EMIConversion
	Anomalies      []patterns.Anomaly

	Warnings    []EnrichmentWarning
	Skipped     int
	SkippedRows []extractor.SkippedRow
}
