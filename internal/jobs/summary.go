package jobs

import (
	"context"
	"fmt"
)

// AccountSummary totals the upload jobs of one account.
type AccountSummary struct {
	AccountID    string             `json:"account_id"`
	Completed    int                `json:"completed"`
	Failed       int                `json:"failed"`
	Pending      int                `json:"pending"`
	Transactions int                `json:"transactions"`
	Duplicates   int                `json:"duplicates"`
	Jobs         []*IngestUploadJob `json:"jobs"`
}

// SummarizeAccount lists the jobs of accountID, oldest first, with their
// counts. Jobs that are still running or waiting for a retry count as pending.
func SummarizeAccount(ctx context.Context, store JobStore, accountID string) (AccountSummary, error) {
	list, err := store.ListJobs(ctx, JobFilter{AccountID: accountID})
	if err != nil {
		return AccountSummary{}, fmt.Errorf("listing jobs of %s: %w", accountID, err)
	}
	sum := AccountSummary{AccountID: accountID, Jobs: list}
	for _, j := range list {
		switch j.Status {
		case JobStatusCompleted:
			sum.Completed++
			sum.Transactions += j.Transactions
			sum.Duplicates += j.Duplicates
		case JobStatusFailed:
			sum.Failed++
		default:
			sum.Pending++
		}
	}
	return sum, nil
}
