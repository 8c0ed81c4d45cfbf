package patterns

import (
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

var day1 = civil.Date{Year: 2024, Month: time.January, Day: 1}

func tx(id string, day int, amount string, dir domain.Direction, desc string) *domain.Transaction {
	return &domain.Transaction{
		ID:             id,
		AccountID:      "acc-1",
		Date:           day1.AddDays(day - 1),
		Amount:         decimal.RequireFromString(amount),
		Direction:      dir,
		RawDescription: desc,
		Category:       domain.CategoryUnknown,
	}
}

func TestDetectEMIConversions(t *testing.T) {
	purchase := tx("p", 1, "40050.00", domain.DirectionDebit, "ACME")
	refund := tx("r", 3, "40050.00", domain.DirectionCredit, "ACME")
	emi := tx("e", 35, "3338.00", domain.DirectionDebit, "ACME EMI")
	coffee := tx("c", 4, "250.00", domain.DirectionDebit, "STARBUCKS")

	got := DetectEMIConversions([]*domain.Transaction{emi, coffee, refund, purchase}, DefaultEMIConfig())

	if len(got) != 1 {
		t.Fatalf("got %d conversions, want 1", len(got))
	}
	c := got[0]
	if c.Purchase != purchase || c.Refund != refund || c.FirstInstallment != emi {
		t.Errorf("conversion links wrong rows: %+v", c)
	}
	want := map[string]any{
		MetaEMIConverted:         true,
		MetaEMIRefundID:          "r",
		MetaEMIFirstInstallment:  "e",
		MetaEMIInstallmentAmount: "3338.00",
	}
	if diff := cmp.Diff(want, purchase.Metadata); diff != "" {
		t.Errorf("purchase metadata mismatch (-want +got):\n%s", diff)
	}
	if !purchase.Amount.Equal(decimal.RequireFromString("40050")) {
		t.Errorf("purchase amount changed to %s", purchase.Amount)
	}
	if refund.Metadata[MetaEMIRefundFor] != "p" {
		t.Errorf("refund metadata = %v", refund.Metadata)
	}
}

func TestDetectEMIConversions_NoChain(t *testing.T) {
	tests := []struct {
		name string
		txs  []*domain.Transaction
	}{
		{
			name: "refund outside window",
			txs: []*domain.Transaction{
				tx("p", 1, "40050.00", domain.DirectionDebit, "ACME"),
				tx("r", 10, "40050.00", domain.DirectionCredit, "ACME"),
				tx("e", 35, "3338.00", domain.DirectionDebit, "ACME EMI"),
			},
		},
		{
			name: "refund amount off by more than one percent",
			txs: []*domain.Transaction{
				tx("p", 1, "40050.00", domain.DirectionDebit, "ACME"),
				tx("r", 3, "39000.00", domain.DirectionCredit, "ACME"),
				tx("e", 35, "3338.00", domain.DirectionDebit, "ACME EMI"),
			},
		},
		{
			name: "refund from another merchant",
			txs: []*domain.Transaction{
				tx("p", 1, "40050.00", domain.DirectionDebit, "ACME"),
				tx("r", 3, "40050.00", domain.DirectionCredit, "GLOBEX"),
				tx("e", 35, "3338.00", domain.DirectionDebit, "ACME EMI"),
			},
		},
		{
			name: "no installment",
			txs: []*domain.Transaction{
				tx("p", 1, "40050.00", domain.DirectionDebit, "ACME"),
				tx("r", 3, "40050.00", domain.DirectionCredit, "ACME"),
			},
		},
		{
			name: "installment after search window",
			txs: []*domain.Transaction{
				tx("p", 1, "40050.00", domain.DirectionDebit, "ACME"),
				tx("r", 3, "40050.00", domain.DirectionCredit, "ACME"),
				tx("e", 130, "3338.00", domain.DirectionDebit, "ACME EMI"),
			},
		},
		{
			name: "small purchase",
			txs: []*domain.Transaction{
				tx("p", 1, "4000.00", domain.DirectionDebit, "ACME"),
				tx("r", 3, "4000.00", domain.DirectionCredit, "ACME"),
				tx("e", 35, "400.00", domain.DirectionDebit, "ACME EMI"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectEMIConversions(tt.txs, DefaultEMIConfig()); len(got) != 0 {
				t.Errorf("got %d conversions, want none", len(got))
			}
			if tt.txs[0].Metadata != nil {
				t.Errorf("purchase annotated: %v", tt.txs[0].Metadata)
			}
		})
	}
}

func TestDetectEMIConversions_ClosestRefundWins(t *testing.T) {
	purchase := tx("p", 1, "40050.00", domain.DirectionDebit, "ACME")
	early := tx("r1", 2, "40050.00", domain.DirectionCredit, "ACME")
	late := tx("r2", 6, "40050.00", domain.DirectionCredit, "ACME")
	emi := tx("e", 35, "3338.00", domain.DirectionDebit, "ACME EMI 1/12")

	got := DetectEMIConversions([]*domain.Transaction{purchase, early, late, emi}, DefaultEMIConfig())
	if len(got) != 1 || got[0].Refund != late {
		t.Fatalf("want the refund closest to the installment, got %+v", got)
	}
	if purchase.Metadata[MetaEMIRefundID] != "r2" {
		t.Errorf("emi_refund_id = %v, want r2", purchase.Metadata[MetaEMIRefundID])
	}
}

func TestDetectRecurring_Monthly(t *testing.T) {
	amounts := []string{"5000.00", "5050.00", "4980.00", "5100.00", "4950.00", "5020.00"}
	gaps := []int{0, 28, 32, 30, 29, 31}
	var txs []*domain.Transaction
	day := 1
	for i, a := range amounts {
		day += gaps[i]
		txs = append(txs, tx(fmt.Sprintf("x%d", i), day, a, domain.DirectionDebit, fmt.Sprintf("UPI/PLATFORM X/40012%04d/payment", i)))
	}
	txs = append(txs, tx("other", 15, "120.00", domain.DirectionDebit, "UPI/CHAI POINT/4001299999/tea"))

	got := DetectRecurring(txs, DefaultRecurringConfig())

	if len(got) != 1 {
		t.Fatalf("got %d patterns, want 1: %+v", len(got), got)
	}
	p := got[0]
	if p.Key != "upi:platform x" || p.Cadence != CadenceMonthly || p.TransactionCount != 6 {
		t.Errorf("pattern = %s %s count %d", p.Key, p.Cadence, p.TransactionCount)
	}
	if !p.Total.Equal(decimal.RequireFromString("30100")) {
		t.Errorf("Total = %s, want 30100", p.Total)
	}
	if p.FirstDate != day1 || p.LastDate != day1.AddDays(150) {
		t.Errorf("span = %s..%s", p.FirstDate, p.LastDate)
	}
	if p.Kind != KindOther {
		t.Errorf("Kind = %s, want other", p.Kind)
	}
}

func TestDetectRecurring_Buckets(t *testing.T) {
	txs := []*domain.Transaction{
		tx("a1", 1, "5000.00", domain.DirectionDebit, "NACH/ICICI PRU/LIC PREMIUM"),
		tx("b1", 3, "9000.00", domain.DirectionDebit, "NACH/ICICI PRU/LIC PREMIUM"),
		tx("a2", 12, "5000.00", domain.DirectionDebit, "NACH/ICICI PRU/LIC PREMIUM"),
		tx("b2", 33, "9100.00", domain.DirectionDebit, "NACH/ICICI PRU/LIC PREMIUM"),
	}

	got := DetectRecurring(txs, DefaultRecurringConfig())

	if len(got) != 2 {
		t.Fatalf("got %d patterns, want 2", len(got))
	}
	byFirst := map[string]RecurringPattern{got[0].TransactionIDs[0]: got[0], got[1].TransactionIDs[0]: got[1]}
	if p := byFirst["a1"]; p.Cadence != CadenceIrregular || p.TransactionCount != 2 {
		t.Errorf("11 day gap: %s count %d, want irregular", p.Cadence, p.TransactionCount)
	}
	if p := byFirst["b1"]; p.Cadence != CadenceMonthly || p.Kind != KindInsurance {
		t.Errorf("30 day gap: %s %s, want monthly insurance", p.Cadence, p.Kind)
	}
}

func TestDetectRecurring_Kinds(t *testing.T) {
	tests := []struct {
		name string
		desc string
		dir  domain.Direction
		amt  string
		want Kind
	}{
		{name: "salary keyword", desc: "NEFT/ACME CORP/SALARY", dir: domain.DirectionCredit, amt: "85000.00", want: KindSalary},
		{name: "large regular credit", desc: "NEFT/GLOBEX LTD/PAYOUT", dir: domain.DirectionCredit, amt: "60000.00", want: KindSalary},
		{name: "small regular credit", desc: "UPI/RAHUL/rent share", dir: domain.DirectionCredit, amt: "2000.00", want: KindOther},
		{name: "loan emi", desc: "ACH/BAJAJ FINANCE/EMI", dir: domain.DirectionDebit, amt: "3338.00", want: KindEMI},
		{name: "sip", desc: "ACH/HDFC MF/SIP", dir: domain.DirectionDebit, amt: "2500.00", want: KindSIP},
		{name: "subscription", desc: "POS/NETFLIX COM/MUMBAI", dir: domain.DirectionDebit, amt: "649.00", want: KindSubscription},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs := []*domain.Transaction{
				tx("1", 1, tt.amt, tt.dir, tt.desc),
				tx("2", 31, tt.amt, tt.dir, tt.desc),
				tx("3", 61, tt.amt, tt.dir, tt.desc),
			}
			got := DetectRecurring(txs, DefaultRecurringConfig())
			if len(got) != 1 {
				t.Fatalf("got %d patterns, want 1", len(got))
			}
			if got[0].Kind != tt.want {
				t.Errorf("Kind = %s, want %s", got[0].Kind, tt.want)
			}
		})
	}
}

func TestDetectRecurring_SkipsDuplicates(t *testing.T) {
	a := tx("a", 1, "649.00", domain.DirectionDebit, "NETFLIX")
	b := tx("b", 2, "649.00", domain.DirectionDebit, "NETFLIX")
	b.IsDuplicate = true
	if got := DetectRecurring([]*domain.Transaction{a, b}, DefaultRecurringConfig()); len(got) != 0 {
		t.Errorf("duplicates must not form patterns: %+v", got)
	}
}

func TestDetectAnomalies(t *testing.T) {
	txs := []*domain.Transaction{
		tx("s1", 1, "300.00", domain.DirectionDebit, "SWIGGY ORDER"),
		tx("s2", 5, "350.00", domain.DirectionDebit, "SWIGGY ORDER"),
		tx("s3", 9, "320.00", domain.DirectionDebit, "SWIGGY ORDER"),
		tx("s4", 12, "2000.00", domain.DirectionDebit, "SWIGGY ORDER"),
		tx("u1", 2, "100.00", domain.DirectionDebit, "UBER TRIP"),
		tx("u2", 3, "900.00", domain.DirectionDebit, "UBER TRIP"),
	}

	got := DetectAnomalies(txs, DefaultAnomalyConfig())

	if len(got) != 1 {
		t.Fatalf("got %d anomalies, want 1: %+v", len(got), got)
	}
	a := got[0]
	if a.TransactionID != "s4" || a.Type != AnomalyLargeTransaction || a.Severity != "medium" {
		t.Errorf("anomaly = %+v", a)
	}
	if !a.Median.Equal(decimal.RequireFromString("335")) {
		t.Errorf("Median = %s, want 335", a.Median)
	}
}

func TestDetect(t *testing.T) {
	txs := []*domain.Transaction{
		tx("p", 1, "40050.00", domain.DirectionDebit, "ACME"),
		tx("r", 3, "40050.00", domain.DirectionCredit, "ACME"),
		tx("e1", 35, "3338.00", domain.DirectionDebit, "ACME EMI"),
		tx("e2", 65, "3338.00", domain.DirectionDebit, "ACME EMI"),
	}
	r := Detect(txs, DefaultConfig())
	if len(r.EMIConversions) != 1 {
		t.Errorf("EMIConversions = %d, want 1", len(r.EMIConversions))
	}
	var emi *RecurringPattern
	for i := range r.Recurring {
		if r.Recurring[i].Kind == KindEMI {
			emi = &r.Recurring[i]
		}
	}
	if emi == nil || emi.Cadence != CadenceMonthly || emi.TransactionCount != 2 {
		t.Errorf("want a monthly emi pattern, got %+v", r.Recurring)
	}
}

func TestPlatformKey(t *testing.T) {
	tests := []struct {
		name string
		tx   domain.Transaction
		want string
	}{
		{name: "upi remark", tx: domain.Transaction{RawDescription: "UPI/PLATFORM X/400123456789/payment"}, want: "upi:platform x"},
		{name: "vpa segment skipped", tx: domain.Transaction{RawDescription: "UPI/abc@okaxis/ZOMATO/Food"}, want: "upi:zomato"},
		{name: "canonical merchant", tx: domain.Transaction{RawDescription: "POS 4412 NETFLIX.COM", MerchantCanonical: "Netflix"}, want: "netflix"},
		{name: "cleaned description", tx: domain.Transaction{RawDescription: "SWIGGY ORDER 12345678"}, want: "swiggy order"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlatformKey(&tt.tx); got != tt.want {
				t.Errorf("PlatformKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
