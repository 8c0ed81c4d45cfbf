package extractor

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// Row is one structurally parsed statement line. Amount is unsigned and
// Direction carries the side.
type Row struct {
	Date        civil.Date
	Timestamp   *time.Time
	Description string
	Amount      decimal.Decimal
	Direction   domain.Direction
	Balance     *decimal.Decimal

	// Currency is set only when the source states one per row.
	Currency string

	Page     int
	Line     int
	Raw      string
	Strategy string
}

// Valid reports whether the row has a date and a usable amount.
func (r Row) Valid() bool {
	return r.Date.IsValid() && r.Amount.IsPositive() && r.Direction.Valid()
}

// SkippedRow records a line that was dropped, with the reason.
type SkippedRow struct {
	Page   int
	Line   int
	Raw    string
	Reason string
}

// Status is the outcome of one strategy attempt.
type Status string

const (
	StatusOK       Status = "ok"
	StatusSkip     Status = "skip"
	StatusFailed   Status = "failed"
	StatusHardFail Status = "hard_fail"
	StatusDisabled Status = "disabled"
)

// Outcome is what a strategy hands back to the chain.
type Outcome struct {
	Status  Status
	Rows    []Row
	Skipped []SkippedRow
	Reason  string
	Err     error

	// HeaderText is leading document text used to find the bank name and
	// statement period.
	HeaderText string
}

// OK wraps the rows a strategy produced.
func OK(rows []Row, skipped []SkippedRow) Outcome {
	return Outcome{Status: StatusOK, Rows: rows, Skipped: skipped}
}

// Skip means the strategy does not apply to this document.
func Skip(format string, args ...any) Outcome {
	return Outcome{Status: StatusSkip, Reason: fmt.Sprintf(format, args...)}
}

// Failed means the strategy errored; the chain moves on.
func Failed(err error) Outcome {
	return Outcome{Status: StatusFailed, Err: err}
}

// HardFail stops the chain and returns err to the caller.
func HardFail(err error) Outcome {
	return Outcome{Status: StatusHardFail, Err: err}
}

// Attempt is one entry in the attempt log.
type Attempt struct {
	Strategy string        `json:"strategy"`
	Status   Status        `json:"status"`
	Rows     int           `json:"rows"`
	Skipped  int           `json:"skipped"`
	Reason   string        `json:"reason,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// ExtractionExhaustedError is returned when no strategy produced a valid row.
type ExtractionExhaustedError struct {
	Document string
	Attempts []Attempt
}

func (e *ExtractionExhaustedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		detail := a.Reason
		if a.Error != "" {
			detail = a.Error
		}
		if detail != "" {
			parts[i] = fmt.Sprintf("%s=%s (%s)", a.Strategy, a.Status, detail)
		} else {
			parts[i] = fmt.Sprintf("%s=%s", a.Strategy, a.Status)
		}
	}
	return fmt.Sprintf("extraction exhausted for %q: %s", e.Document, strings.Join(parts, ", "))
}

// Result is a successful extraction.
type Result struct {
	Rows            []Row
	Skipped         []SkippedRow
	Attempts        []Attempt
	SuccessStrategy string
	Kind            Kind
	BankName        string
	Period          *domain.Period
}
