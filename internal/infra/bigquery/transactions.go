package bigquery

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// numericScale is the fractional precision of a BigQuery NUMERIC.
const numericScale = 9

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	UserID    string `bigquery:"user_id"`    // NULLABLE
	AccountID string `bigquery:"account_id"` // REQUIRED

	ParsingRunID string `bigquery:"parsing_run_id"` // REQUIRED
	Source       string `bigquery:"source"`         // NULLABLE

	TransactionDate civil.Date             `bigquery:"transaction_date"` // REQUIRED
	BookingTS       bigquery.NullTimestamp `bigquery:"booking_ts"`       // NULLABLE

	Amount    *big.Rat `bigquery:"amount"`    // REQUIRED NUMERIC, unsigned
	Direction string   `bigquery:"direction"` // REQUIRED debit|credit
	Currency  string   `bigquery:"currency"`  // REQUIRED

	BalanceAfter     *big.Rat            `bigquery:"balance_after"`     // NULLABLE NUMERIC
	OriginalAmount   *big.Rat            `bigquery:"original_amount"`   // NULLABLE NUMERIC
	OriginalCurrency bigquery.NullString `bigquery:"original_currency"` // NULLABLE

	RawDescription   string              `bigquery:"raw_description"`   // REQUIRED
	CleanDescription bigquery.NullString `bigquery:"clean_description"` // NULLABLE

	MerchantRaw       bigquery.NullString `bigquery:"merchant_raw"`       // NULLABLE
	MerchantCanonical bigquery.NullString `bigquery:"merchant_canonical"` // NULLABLE
	MerchantID        bigquery.NullString `bigquery:"merchant_id"`        // NULLABLE

	CategoryName       string               `bigquery:"category_name"`       // REQUIRED
	CategoryConfidence bigquery.NullFloat64 `bigquery:"category_confidence"` // NULLABLE

	BankName            bigquery.NullString `bigquery:"bank_name"`             // NULLABLE
	StatementPeriodFrom bigquery.NullDate   `bigquery:"statement_period_from"` // NULLABLE
	StatementPeriodTo   bigquery.NullDate   `bigquery:"statement_period_to"`   // NULLABLE

	IsDuplicate    bool                `bigquery:"is_duplicate"`    // REQUIRED
	DuplicateOf    bigquery.NullString `bigquery:"duplicate_of"`    // NULLABLE
	DuplicateCount int64               `bigquery:"duplicate_count"` // REQUIRED

	Tags []string `bigquery:"tags"` // REPEATED STRING

	IngestedTS time.Time `bigquery:"ingested_ts"` // REQUIRED

	Extra bigquery.NullJSON `bigquery:"extra"` // NULLABLE JSON, transaction metadata
}

// NewTransactionRow maps a transaction to its table row for the given run.
func NewTransactionRow(tx *domain.Transaction, runID string) (*TransactionRow, error) {
	row := &TransactionRow{
		TransactionID:      tx.ID,
		UserID:             tx.UserID,
		AccountID:          tx.AccountID,
		ParsingRunID:       runID,
		Source:             string(tx.Source),
		TransactionDate:    tx.Date,
		Amount:             tx.Amount.Rat(),
		Direction:          string(tx.Direction),
		Currency:           tx.Currency,
		BalanceAfter:       ratPtr(tx.Balance),
		OriginalAmount:     ratPtr(tx.OriginalAmount),
		OriginalCurrency:   nullString(tx.OriginalCurrency),
		RawDescription:     tx.RawDescription,
		CleanDescription:   nullString(tx.CleanDescription),
		MerchantRaw:        nullString(tx.MerchantRaw),
		MerchantCanonical:  nullString(tx.MerchantCanonical),
		MerchantID:         nullString(tx.MerchantID),
		CategoryName:       string(tx.Category),
		BankName:           nullString(tx.BankName),
		IsDuplicate:        tx.IsDuplicate,
		DuplicateOf:        nullString(tx.DuplicateOf),
		DuplicateCount:     int64(tx.DuplicateCount),
		Tags:               tx.Tags,
		IngestedTS:         tx.IngestedAt,
	}
	if tx.Timestamp != nil {
		row.BookingTS = bigquery.NullTimestamp{Timestamp: *tx.Timestamp, Valid: true}
	}
	if tx.CategoryConfidence != nil {
		row.CategoryConfidence = bigquery.NullFloat64{Float64: *tx.CategoryConfidence, Valid: true}
	}
	if p := tx.StatementPeriod; p != nil {
		row.StatementPeriodFrom = bigquery.NullDate{Date: p.From, Valid: true}
		row.StatementPeriodTo = bigquery.NullDate{Date: p.To, Valid: true}
	}
	if len(tx.Metadata) > 0 {
		b, err := json.Marshal(tx.Metadata)
		if err != nil {
			return nil, fmt.Errorf("NewTransactionRow: %s: marshaling metadata: %w", tx.ID, err)
		}
		row.Extra = bigquery.NullJSON{JSONVal: string(b), Valid: true}
	}
	return row, nil
}

// Transaction maps a stored row back to a validated transaction.
func (r *TransactionRow) Transaction() (*domain.Transaction, error) {
	if r.Amount == nil {
		return nil, fmt.Errorf("transaction %s: amount is NULL", r.TransactionID)
	}
	tx := &domain.Transaction{
		ID:               r.TransactionID,
		Date:             r.TransactionDate,
		Amount:           ratDecimal(r.Amount),
		Direction:        domain.Direction(r.Direction),
		RawDescription:   r.RawDescription,
		CleanDescription: r.CleanDescription.StringVal,
		Category:         domain.CoerceCategory(r.CategoryName),
		Tags:             r.Tags,
		Currency:         r.Currency,
		OriginalCurrency: r.OriginalCurrency.StringVal,
		AccountID:        r.AccountID,
		UserID:           r.UserID,
		Source:           domain.Source(r.Source),
		BankName:         r.BankName.StringVal,
		DuplicateOf:      r.DuplicateOf.StringVal,
		DuplicateCount:   int(r.DuplicateCount),
		IsDuplicate:      r.IsDuplicate,
		IngestedAt:       r.IngestedTS,
	}
	tx.SetMerchant(r.MerchantRaw.StringVal, r.MerchantCanonical.StringVal)
	if r.BookingTS.Valid {
		ts := r.BookingTS.Timestamp
		tx.Timestamp = &ts
	}
	if r.BalanceAfter != nil {
		d := ratDecimal(r.BalanceAfter)
		tx.Balance = &d
	}
	if r.OriginalAmount != nil {
		d := ratDecimal(r.OriginalAmount)
		tx.OriginalAmount = &d
	}
	if r.CategoryConfidence.Valid {
		c := r.CategoryConfidence.Float64
		tx.CategoryConfidence = &c
	}
	if r.StatementPeriodFrom.Valid && r.StatementPeriodTo.Valid {
		tx.StatementPeriod = &domain.Period{From: r.StatementPeriodFrom.Date, To: r.StatementPeriodTo.Date}
	}
	if r.Extra.Valid && r.Extra.JSONVal != "" {
		if err := json.Unmarshal([]byte(r.Extra.JSONVal), &tx.Metadata); err != nil {
			return nil, fmt.Errorf("transaction %s: decoding extra: %w", r.TransactionID, err)
		}
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("transaction %s: %w", r.TransactionID, err)
	}
	return tx, nil
}

func ratPtr(d *decimal.Decimal) *big.Rat {
	if d == nil {
		return nil
	}
	return d.Rat()
}

func ratDecimal(r *big.Rat) decimal.Decimal {
	return decimal.RequireFromString(r.FloatString(numericScale))
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
