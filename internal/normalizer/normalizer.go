// Package normalizer builds canonical transactions from extracted rows and
// converts them to and from flat key/value records.
package normalizer

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/extractor"
)

// DefaultCurrency is used when neither the row nor the upload names one.
const DefaultCurrency = "INR"

// UploadContext carries what is known about an upload before any row is read.
type UploadContext struct {
	UserID    string
	AccountID string
	Currency  string
	Source    domain.Source
	BankName  string
	Period    *domain.Period
}

// Normalizer creates canonical records. The zero value is usable; Now and
// NewID exist so tests can pin time and ids.
type Normalizer struct {
	DefaultCurrency string
	Now             func() time.Time
	NewID           func() string
}

// New returns a Normalizer with the given default currency.
func New(defaultCurrency string) *Normalizer {
	return &Normalizer{DefaultCurrency: defaultCurrency}
}

func (n *Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now().UTC()
}

func (n *Normalizer) newID() string {
	if n.NewID != nil {
		return n.NewID()
	}
	return uuid.NewString()
}

func (n *Normalizer) currency(values ...string) string {
	for _, v := range values {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			return v
		}
	}
	if n.DefaultCurrency != "" {
		return strings.ToUpper(n.DefaultCurrency)
	}
	return DefaultCurrency
}

// FromRow builds a transaction from an extracted row. The record gets a fresh
// id and ingestion time, the upload's account and source, and Unknown as its
// category until enrichment runs.
func (n *Normalizer) FromRow(row extractor.Row, uc UploadContext) (*domain.Transaction, error) {
	source := uc.Source
	if source == "" {
		source = domain.SourceManual
	}
	desc := strings.Join(strings.Fields(row.Description), " ")

	tx := &domain.Transaction{
		ID:               n.newID(),
		Date:             row.Date,
		Timestamp:        row.Timestamp,
		Amount:           row.Amount,
		Direction:        row.Direction,
		RawDescription:   desc,
		CleanDescription: desc,
		Category:         domain.CategoryUnknown,
		Balance:          row.Balance,
		Currency:         n.currency(row.Currency, uc.Currency),
		AccountID:        uc.AccountID,
		UserID:           uc.UserID,
		Source:           source,
		BankName:         uc.BankName,
		StatementPeriod:  uc.Period,
		IngestedAt:       n.now(),
	}
	if row.Strategy != "" {
		tx.SetMetadata(MetaStrategy, row.Strategy)
	}
	if row.Page > 0 {
		tx.SetMetadata(MetaPage, row.Page)
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// Metadata keys set by FromRow.
const (
	MetaStrategy = "extraction_strategy"
	MetaPage     = "page"
)
