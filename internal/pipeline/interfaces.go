package pipeline

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-ingest/internal/categorizer"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/extractor"
	"github.com/dvloznov/statement-ingest/internal/merchant"
)

// DocumentExtractor turns an upload into rows. *extractor.Extractor is the
// production implementation.
type DocumentExtractor interface {
	Extract(ctx context.Context, doc *extractor.Document) (*extractor.Result, error)
}

// MerchantNormalizer resolves a narration to a canonical merchant.
type MerchantNormalizer interface {
	Normalize(raw string) merchant.Match
}

// Classifier assigns a category to a transaction.
type Classifier interface {
	Categorize(tx *domain.Transaction) categorizer.Prediction
}

// Session is the persistence collaborator for one ingestion. The pipeline
// reads existing records and saves the finished batch through it; commit
// and rollback belong to the implementation.
type Session interface {
	// ExistingTransactions returns stored, non-duplicate records of the
	// account dated within [from, to].
	ExistingTransactions(ctx context.Context, accountID string, from, to civil.Date) ([]*domain.Transaction, error)

	// SaveTransactions persists the whole batch or nothing.
	SaveTransactions(ctx context.Context, batch *Batch) error

	Close() error
}

// SessionFactory opens one Session per ingestion.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// SessionFactoryFunc adapts a function to SessionFactory.
type SessionFactoryFunc func(ctx context.Context) (Session, error)

// Open calls f.
func (f SessionFactoryFunc) Open(ctx context.Context) (Session, error) {
	return f(ctx)
}
