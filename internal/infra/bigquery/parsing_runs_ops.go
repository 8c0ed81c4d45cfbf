package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// InsertParsingRunWithClient streams one row into <dataset>.parsing_runs.
func InsertParsingRunWithClient(ctx context.Context, client *bigquery.Client, dataset string, row *ParsingRunRow) error {
	inserter := client.Dataset(dataset).Table(parsingRunsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertParsingRun: inserting row: %w", err)
	}
	return nil
}
