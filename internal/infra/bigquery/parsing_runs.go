package bigquery

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/statement-ingest/internal/extractor"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
)

// Parsing run statuses.
const (
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

type ParsingRunRow struct {
	ParsingRunID string `bigquery:"parsing_run_id"` // REQUIRED
	DocumentName string `bigquery:"document_name"`  // REQUIRED

	UserID    string `bigquery:"user_id"`    // NULLABLE
	AccountID string `bigquery:"account_id"` // REQUIRED

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Strategy   string `bigquery:"strategy"`    // NULLABLE, winning extraction strategy
	SourceKind string `bigquery:"source_kind"` // NULLABLE

	Status       string `bigquery:"status"`        // REQUIRED
	ErrorMessage string `bigquery:"error_message"` // NULLABLE

	TransactionCount int64 `bigquery:"transaction_count"`
	SkippedCount     int64 `bigquery:"skipped_count"`
	DuplicateCount   int64 `bigquery:"duplicate_count"`

	Metadata bigquery.NullJSON `bigquery:"metadata"` // NULLABLE: attempt log and dedup stats
}

type runMetadata struct {
	Attempts   []extractor.Attempt `json:"attempts"`
	DedupStats map[string]int      `json:"dedup_stats"`
	BankName   string              `json:"bank_name,omitempty"`
}

// NewParsingRunRow builds the successful run row for a saved batch.
func NewParsingRunRow(batch *pipeline.Batch) (*ParsingRunRow, error) {
	row := &ParsingRunRow{
		ParsingRunID:     batch.RunID,
		DocumentName:     batch.UploadName,
		UserID:           batch.UserID,
		AccountID:        batch.AccountID,
		StartedTS:        batch.StartedAt,
		FinishedTS:       bigquery.NullTimestamp{Timestamp: batch.FinishedAt, Valid: !batch.FinishedAt.IsZero()},
		Status:           RunStatusSuccess,
		TransactionCount: int64(len(batch.Transactions)),
		DuplicateCount:   int64(batch.DedupStats.TotalMerged),
	}

	meta := runMetadata{DedupStats: batch.DedupStats.Map()}
	if ex := batch.Extraction; ex != nil {
		row.Strategy = ex.SuccessStrategy
		row.SourceKind = string(ex.Kind)
		row.SkippedCount = int64(len(ex.Skipped))
		meta.Attempts = ex.Attempts
		meta.BankName = ex.BankName
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("NewParsingRunRow: marshaling metadata: %w", err)
	}
	row.Metadata = bigquery.NullJSON{JSONVal: string(b), Valid: true}
	return row, nil
}
