// Package writer exports ingested transactions as a flat ledger.
package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// Ledger is what gets exported: the transactions of one statement and the
// header facts known about it.
type Ledger struct {
	BankName     string
	AccountID    string
	Period       *domain.Period
	Transactions []*domain.Transaction
}

// Columns is the ledger header row.
var Columns = []string{
	"Date", "Description", "Merchant", "Category", "Direction",
	"Amount", "Currency", "Balance", "Duplicate Of", "ID",
}

// CSVWriter writes transactions to CSV format.
type CSVWriter struct {
	IncludeHeader bool
	// IncludeDuplicates keeps rows flagged as duplicates.
	IncludeDuplicates bool
}

// WriteToFile writes the ledger to a CSV file at the given path.
func (w *CSVWriter) WriteToFile(path string, l *Ledger) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer f.Close()

	return w.Write(f, l)
}

// Write writes the ledger in CSV format to the given writer.
func (w *CSVWriter) Write(out io.Writer, l *Ledger) error {
	writer := csv.NewWriter(out)

	if w.IncludeHeader {
		for _, kv := range headerRows(l) {
			if err := writer.Write(kv); err != nil {
				return fmt.Errorf("failed to write CSV metadata: %w", err)
			}
		}
	}

	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, tx := range l.Transactions {
		if tx.IsDuplicate && !w.IncludeDuplicates {
			continue
		}
		if err := writer.Write(row(tx)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func headerRows(l *Ledger) [][]string {
	var rows [][]string
	if l.BankName != "" {
		rows = append(rows, []string{"# Bank", l.BankName})
	}
	if l.AccountID != "" {
		rows = append(rows, []string{"# Account", l.AccountID})
	}
	if l.Period != nil {
		rows = append(rows, []string{"# Statement Period", l.Period.From.String() + " to " + l.Period.To.String()})
	}
	return rows
}

func row(tx *domain.Transaction) []string {
	merchant := tx.MerchantCanonical
	if merchant == "" {
		merchant = tx.MerchantRaw
	}
	return []string{
		tx.Date.String(),
		tx.RawDescription,
		merchant,
		string(tx.Category),
		string(tx.Direction),
		formatAmount(tx.Amount),
		tx.Currency,
		formatBalance(tx.Balance),
		tx.DuplicateOf,
		tx.ID,
	}
}

func formatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

func formatBalance(balance *decimal.Decimal) string {
	if balance == nil {
		return ""
	}
	return formatAmount(*balance)
}
