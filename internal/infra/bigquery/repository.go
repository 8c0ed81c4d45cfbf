package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
)

// Repository reads and writes transactions in one BigQuery dataset. It holds
// a shared client so sessions do not open a connection each.
type Repository struct {
	client  *bigquery.Client
	dataset string
}

// NewRepository creates a client for projectID and binds it to dataset.
func NewRepository(ctx context.Context, projectID, dataset string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{client: client, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Open starts a session for one ingestion. It satisfies
// pipeline.SessionFactory.
func (r *Repository) Open(ctx context.Context) (pipeline.Session, error) {
	return &session{repo: r}, nil
}

// ExistingTransactions returns the stored transactions of accountID dated
// within [from, to]. Rows that no longer validate are logged and left out.
func (r *Repository) ExistingTransactions(ctx context.Context, accountID string, from, to civil.Date) ([]*domain.Transaction, error) {
	rows, err := QueryAccountTransactionsWithClient(ctx, r.client, r.dataset, accountID, from, to)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	txs := make([]*domain.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := row.Transaction()
		if err != nil {
			log.Warn().Err(err).Str("transaction_id", row.TransactionID).Msg("skipping stored transaction")
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// SaveBatch writes the transactions of a batch and then its run row. A run
// only counts as successful once its row exists, so a half-written batch is
// never read back.
func (r *Repository) SaveBatch(ctx context.Context, batch *pipeline.Batch) error {
	rows := make([]*TransactionRow, 0, len(batch.Transactions))
	for _, tx := range batch.Transactions {
		row, err := NewTransactionRow(tx, batch.RunID)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	run, err := NewParsingRunRow(batch)
	if err != nil {
		return err
	}

	if err := InsertTransactionsWithClient(ctx, r.client, r.dataset, rows); err != nil {
		return err
	}
	if err := InsertParsingRunWithClient(ctx, r.client, r.dataset, run); err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("parsing_run_id", batch.RunID).
		Int("transactions", len(rows)).
		Str("dataset", r.dataset).
		Msg("batch saved to BigQuery")
	return nil
}

type session struct {
	repo *Repository
}

func (s *session) ExistingTransactions(ctx context.Context, accountID string, from, to civil.Date) ([]*domain.Transaction, error) {
	return s.repo.ExistingTransactions(ctx, accountID, from, to)
}

func (s *session) SaveTransactions(ctx context.Context, batch *pipeline.Batch) error {
	return s.repo.SaveBatch(ctx, batch)
}

// Close is a no-op; the client belongs to the Repository.
func (s *session) Close() error { return nil }
