package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/normalizer"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
)

// SaveBatch writes the run and its transactions in one SQL transaction.
// Saving a transaction id again replaces the stored record.
func (db *DB) SaveBatch(ctx context.Context, batch *pipeline.Batch) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertRun(ctx, tx, batch); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO transactions (id, run_id, account_id, txn_date, ingested_at, is_duplicate, record)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert transaction: %w", err)
	}
	defer stmt.Close()

	for i, t := range batch.Transactions {
		flat := normalizer.ToFlat(t)
		if i < len(batch.Flat) {
			flat = batch.Flat[i]
		}
		record, err := json.Marshal(flat)
		if err != nil {
			return fmt.Errorf("encode transaction %s: %w", t.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, t.ID, batch.RunID, t.AccountID, t.Date.String(),
			t.IngestedAt.UTC().Format(time.RFC3339Nano), t.IsDuplicate, string(record)); err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("run_id", batch.RunID).
		Int("transactions", len(batch.Transactions)).
		Msg("batch saved to sqlite")
	return nil
}

func insertRun(ctx context.Context, tx *sql.Tx, batch *pipeline.Batch) error {
	var strategy string
	attempts := []byte("[]")
	if ex := batch.Extraction; ex != nil {
		strategy = ex.SuccessStrategy
		var err error
		if attempts, err = json.Marshal(ex.Attempts); err != nil {
			return fmt.Errorf("encode attempts: %w", err)
		}
	}
	stats, err := json.Marshal(batch.DedupStats.Map())
	if err != nil {
		return fmt.Errorf("encode dedup stats: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ingestion_runs (
			id, document_name, user_id, account_id, started_at, finished_at,
			strategy, transaction_count, attempts, dedup_stats
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, batch.RunID, batch.UploadName, batch.UserID, batch.AccountID,
		batch.StartedAt.UTC().Format(time.RFC3339Nano), batch.FinishedAt.UTC().Format(time.RFC3339Nano),
		strategy, len(batch.Transactions), string(attempts), string(stats))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", batch.RunID, err)
	}
	return nil
}

// ExistingTransactions returns the stored non-duplicate transactions of
// accountID dated within [from, to], oldest ingestion first. Records that no longer decode
// are logged and left out.
func (db *DB) ExistingTransactions(ctx context.Context, accountID string, from, to civil.Date) ([]*domain.Transaction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, record
		FROM transactions
		WHERE account_id = ? AND txn_date >= ? AND txn_date <= ? AND is_duplicate = 0
		ORDER BY ingested_at, rowid
	`, accountID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	log := logger.FromContext(ctx)
	var txs []*domain.Transaction
	for rows.Next() {
		var id, record string
		if err := rows.Scan(&id, &record); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		var flat map[string]any
		if err := json.Unmarshal([]byte(record), &flat); err != nil {
			log.Warn().Err(err).Str("transaction_id", id).Msg("skipping undecodable record")
			continue
		}
		t, err := db.norm.FromFlat(flat)
		if err != nil {
			log.Warn().Err(err).Str("transaction_id", id).Msg("skipping invalid record")
			continue
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// CountTransactions returns how many transactions are stored for accountID.
func (db *DB) CountTransactions(ctx context.Context, accountID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE account_id = ?`, accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

type session struct {
	db *DB
}

func (s *session) ExistingTransactions(ctx context.Context, accountID string, from, to civil.Date) ([]*domain.Transaction, error) {
	return s.db.ExistingTransactions(ctx, accountID, from, to)
}

func (s *session) SaveTransactions(ctx context.Context, batch *pipeline.Batch) error {
	return s.db.SaveBatch(ctx, batch)
}

// Close is a no-op; the connection belongs to the DB.
func (s *session) Close() error { return nil }
