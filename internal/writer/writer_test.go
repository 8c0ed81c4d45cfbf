package writer

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

func testLedger() *Ledger {
	balance := decimal.RequireFromString("9550")
	swiggy := &domain.Transaction{
		ID:             "tx-1",
		Date:           civil.Date{Year: 2024, Month: time.January, Day: 1},
		Amount:         decimal.RequireFromString("450"),
		Direction:      domain.DirectionDebit,
		RawDescription: "SWIGGY BANGALORE",
		Category:       domain.CategoryFood,
		Currency:       "INR",
		Balance:        &balance,
	}
	swiggy.SetMerchant("SWIGGY", "Swiggy")
	dup := &domain.Transaction{
		ID:             "tx-2",
		Date:           civil.Date{Year: 2024, Month: time.January, Day: 1},
		Amount:         decimal.RequireFromString("450"),
		Direction:      domain.DirectionDebit,
		RawDescription: "SWIGGY BLR",
		Category:       domain.CategoryFood,
		Currency:       "INR",
		IsDuplicate:    true,
		DuplicateOf:    "tx-1",
	}
	return &Ledger{
		BankName:  "HDFC Bank",
		AccountID: "acc-1",
		Period: &domain.Period{
			From: civil.Date{Year: 2024, Month: time.January, Day: 1},
			To:   civil.Date{Year: 2024, Month: time.January, Day: 31},
		},
		Transactions: []*domain.Transaction{swiggy, dup},
	}
}

func TestCSVWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	w := &CSVWriter{IncludeHeader: true}
	if err := w.Write(&buf, testLedger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := strings.Join([]string{
		"# Bank,HDFC Bank",
		"# Account,acc-1",
		"# Statement Period,2024-01-01 to 2024-01-31",
		"Date,Description,Merchant,Category,Direction,Amount,Currency,Balance,Duplicate Of,ID",
		"2024-01-01,SWIGGY BANGALORE,Swiggy,Food & Dining,debit,450.00,INR,9550.00,,tx-1",
		"",
	}, "\n")
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("CSV mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVWriter_IncludeDuplicates(t *testing.T) {
	var buf bytes.Buffer
	w := &CSVWriter{IncludeDuplicates: true}
	if err := w.Write(&buf, testLedger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if strings.Contains(output, "# Bank") {
		t.Error("should not have metadata when IncludeHeader is false")
	}
	if !strings.Contains(output, "SWIGGY BLR,,Food & Dining,debit,450.00,INR,,tx-1,tx-2") {
		t.Errorf("expected duplicate row, got:\n%s", output)
	}
}

func TestXLSXWriter_Workbook(t *testing.T) {
	w := &XLSXWriter{}
	f, err := w.Workbook(testLedger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(ledgerSheet)
	if err != nil {
		t.Fatalf("GetRows() unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header and one transaction", len(rows))
	}
	if diff := cmp.Diff(Columns, rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if rows[1][0] != "2024-01-01" || rows[1][5] != "450.00" {
		t.Errorf("row = %v", rows[1])
	}
}
