package fielddetect

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		want    Mapping
		wantErr bool
	}{
		{
			name:    "bank export with withdrawal and deposit columns",
			headers: []string{"Txn Date", "Narration", "Withdrawal Amt", "Deposit Amt", "Closing Balance"},
			want: Mapping{
				RoleDate:        "Txn Date",
				RoleDescription: "Narration",
				RoleDebit:       "Withdrawal Amt",
				RoleCredit:      "Deposit Amt",
				RoleBalance:     "Closing Balance",
			},
		},
		{
			name:    "signed amount column",
			headers: []string{"DATE", "Description", "Amount", "Balance"},
			want: Mapping{
				RoleDate:        "DATE",
				RoleDescription: "Description",
				RoleAmount:      "Amount",
				RoleBalance:     "Balance",
			},
		},
		{
			name:    "dr cr abbreviations do not match inside words",
			headers: []string{"Value Dt", "Transaction Description", "Dr", "Cr"},
			want: Mapping{
				RoleDate:        "Value Dt",
				RoleDescription: "Transaction Description",
				RoleDebit:       "Dr",
				RoleCredit:      "Cr",
			},
		},
		{
			name:    "most specific date synonym wins",
			headers: []string{"Value Date", "Txn Date", "Particulars", "Amount"},
			want: Mapping{
				RoleDate:        "Txn Date",
				RoleDescription: "Particulars",
				RoleAmount:      "Amount",
			},
		},
		{
			name:    "missing description",
			headers: []string{"Date", "Amount"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.headers, DefaultSynonyms())
			if tt.wantErr {
				var colErr *ColumnDetectionError
				if !errors.As(err, &colErr) {
					t.Fatalf("Detect() error = %v, want ColumnDetectionError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Detect() unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Detect() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestColumnDetectionError_ListsMissingRoles(t *testing.T) {
	_, err := Detect([]string{"Foo", "Bar"}, nil)
	var colErr *ColumnDetectionError
	if !errors.As(err, &colErr) {
		t.Fatalf("expected ColumnDetectionError, got %v", err)
	}
	if diff := cmp.Diff([]Role{RoleDate, RoleDescription}, colErr.Missing); diff != "" {
		t.Errorf("Missing mismatch (-want +got):\n%s", diff)
	}
}

func TestSynonyms_Merge(t *testing.T) {
	merged := DefaultSynonyms().Merge(Synonyms{RoleDescription: {"beneficiary"}})
	m, err := Detect([]string{"Date", "Beneficiary", "Amount"}, merged)
	if err != nil {
		t.Fatalf("Detect() unexpected error: %v", err)
	}
	if m[RoleDescription] != "Beneficiary" {
		t.Errorf("description = %q, want Beneficiary", m[RoleDescription])
	}
}

func TestMapping_Index(t *testing.T) {
	headers := []string{"Date", "Narration", "Amount"}
	m := Mapping{RoleDate: "Date", RoleAmount: "Amount"}
	if got := m.Index(RoleAmount, headers); got != 2 {
		t.Errorf("Index(amount) = %d, want 2", got)
	}
	if got := m.Index(RoleBalance, headers); got != -1 {
		t.Errorf("Index(balance) = %d, want -1", got)
	}
}
