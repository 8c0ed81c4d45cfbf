package app

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/extractor"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
)

// Report is the JSON summary printed for one ingested file.
type Report struct {
	Source     string              `json:"source"`
	RunID      string              `json:"run_id,omitempty"`
	Strategy   string              `json:"strategy,omitempty"`
	BankName   string              `json:"bank_name,omitempty"`
	Attempts   []extractor.Attempt `json:"attempts,omitempty"`
	Error      string              `json:"error,omitempty"`
	Unique     int                 `json:"unique"`
	Duplicates int                 `json:"duplicates"`
	Skipped    int                 `json:"skipped"`
	DedupStats map[string]int      `json:"dedup_stats,omitempty"`

	Transactions []map[string]any  `json:"transactions,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
	Recurring    []RecurringReport `json:"recurring_patterns,omitempty"`
	EMI          []EMIReport       `json:"emi_conversions,omitempty"`
	Anomalies    []AnomalyReport   `json:"anomalies,omitempty"`
}

type RecurringReport struct {
	Key              string          `json:"key"`
	Direction        string          `json:"direction"`
	Cadence          string          `json:"cadence"`
	Kind             string          `json:"kind"`
	TransactionCount int             `json:"transaction_count"`
	Total            decimal.Decimal `json:"total"`
	AverageAmount    decimal.Decimal `json:"average_amount"`
	FirstDate        string          `json:"first_date"`
	LastDate         string          `json:"last_date"`
	AverageGapDays   float64         `json:"average_gap_days"`
	TransactionIDs   []string        `json:"transaction_ids"`
}

type EMIReport struct {
	PurchaseID         string          `json:"purchase_id"`
	RefundID           string          `json:"refund_id"`
	FirstInstallmentID string          `json:"first_installment_id"`
	InstallmentAmount  decimal.Decimal `json:"installment_amount"`
}

type AnomalyReport struct {
	TransactionID string          `json:"transaction_id"`
	Key           string          `json:"key"`
	Type          string          `json:"type"`
	Severity      string          `json:"severity"`
	Amount        decimal.Decimal `json:"amount"`
	Median        decimal.Decimal `json:"median"`
	Ratio         float64         `json:"ratio"`
	Description   string          `json:"description"`
}

// NewReport summarizes an ingestion of source. A failed run keeps the error
// and, when extraction gave up, the strategy attempts.
func NewReport(source string, res *pipeline.Result, err error) Report {
	r := Report{Source: source}
	if err != nil {
		r.Error = err.Error()
		var exhausted *extractor.ExtractionExhaustedError
		if errors.As(err, &exhausted) {
			r.Attempts = exhausted.Attempts
		}
		return r
	}

	r.RunID = res.RunID
	r.Unique = res.Unique
	r.Duplicates = res.Duplicates
	r.Skipped = res.Skipped
	r.DedupStats = res.DedupStatsMap
	r.Transactions = res.Flat
	if ex := res.Extraction; ex != nil {
		r.Strategy = ex.SuccessStrategy
		r.BankName = ex.BankName
		r.Attempts = ex.Attempts
	}
	for _, w := range res.Warnings {
		r.Warnings = append(r.Warnings, w.Error())
	}
	for _, p := range res.Patterns {
		r.Recurring = append(r.Recurring, RecurringReport{
			Key:              p.Key,
			Direction:        string(p.Direction),
			Cadence:          string(p.Cadence),
			Kind:             string(p.Kind),
			TransactionCount: p.TransactionCount,
			Total:            p.Total,
			AverageAmount:    p.AverageAmount,
			FirstDate:        p.FirstDate.String(),
			LastDate:         p.LastDate.String(),
			AverageGapDays:   p.AverageGapDays,
			TransactionIDs:   p.TransactionIDs,
		})
	}
	for _, c := range res.EMIConversions {
		r.EMI = append(r.EMI, EMIReport{
			PurchaseID:         c.Purchase.ID,
			RefundID:           c.Refund.ID,
			FirstInstallmentID: c.FirstInstallment.ID,
			InstallmentAmount:  c.InstallmentAmount,
		})
	}
	for _, a := range res.Anomalies {
		r.Anomalies = append(r.Anomalies, AnomalyReport{
			TransactionID: a.TransactionID,
			Key:           a.Key,
			Type:          a.Type,
			Severity:      a.Severity,
			Amount:        a.Amount,
			Median:        a.Median,
			Ratio:         a.Ratio,
			Description:   a.Description,
		})
	}
	return r
}
