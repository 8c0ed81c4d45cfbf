package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

const (
	transactionsTable = "transactions"
	parsingRunsTable  = "parsing_runs"
)

// InsertTransactionsWithClient streams a batch of TransactionRow into
// <dataset>.transactions using the provided BigQuery client.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, dataset string, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := client.Dataset(dataset).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}

	return nil
}

// QueryAccountTransactionsWithClient returns the stored non-duplicate
// transactions of one account dated within [from, to]. Only transactions from successful runs are
// returned.
func QueryAccountTransactionsWithClient(ctx context.Context, client *bigquery.Client, dataset, accountID string, from, to civil.Date) ([]*TransactionRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT t.*
		FROM %[1]s.%[2]s t
		INNER JOIN %[1]s.%[3]s pr
		  ON t.parsing_run_id = pr.parsing_run_id
		WHERE t.account_id = @account_id
		  AND t.transaction_date >= @from_date
		  AND t.transaction_date <= @to_date
		  AND NOT t.is_duplicate
		  AND pr.status = @status
		ORDER BY t.ingested_ts, t.transaction_date
	`, dataset, transactionsTable, parsingRunsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
		{Name: "from_date", Value: from},
		{Name: "to_date", Value: to},
		{Name: "status", Value: RunStatusSuccess},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryAccountTransactions: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryAccountTransactions: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
