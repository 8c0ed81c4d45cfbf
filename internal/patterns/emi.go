package patterns

import (
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/fuzzy"
)

// Metadata keys written on a purchase converted to EMI, and on its refund.
const (
	MetaEMIConverted         = "emi_converted"
	MetaEMIRefundID          = "emi_refund_id"
	MetaEMIFirstInstallment  = "emi_first_installment_id"
	MetaEMIInstallmentAmount = "emi_installment_amount"
	MetaEMIRefundFor         = "emi_refund_for"
)

// EMIConfig holds the heuristics of the conversion detector.
type EMIConfig struct {
	LargePurchaseMin   decimal.Decimal
	RefundWindowDays   int
	AmountTolerancePct float64
	MerchantThreshold  float64
	EMISearchDays      int
}

// DefaultEMIConfig returns the thresholds used in production.
func DefaultEMIConfig() EMIConfig {
	return EMIConfig{
		LargePurchaseMin:   decimal.NewFromInt(5000),
		RefundWindowDays:   7,
		AmountTolerancePct: 1,
		MerchantThreshold:  85,
		EMISearchDays:      120,
	}
}

// EMIConversion is a purchase that was refunded and re-billed as
// installments.
type EMIConversion struct {
	Purchase          *domain.Transaction
	Refund            *domain.Transaction
	FirstInstallment  *domain.Transaction
	InstallmentAmount decimal.Decimal
}

type emiStage int

const (
	awaitingRefund emiStage = iota
	awaitingEMI
	converted
)

type purchaseState struct {
	purchase *domain.Transaction
	stage    emiStage
	refunds  []*domain.Transaction
}

// DetectEMIConversions scans txs chronologically. Each large debit moves
// through awaitingRefund, awaitingEMI and converted: a same-merchant credit
// within the refund window, then a later installment debit within the search
// window. When several refunds qualify, the one closest to the first
// installment wins. Converted purchases are annotated in Metadata; amounts
// are never changed.
func DetectEMIConversions(txs []*domain.Transaction, cfg EMIConfig) []EMIConversion {
	ordered := chronological(txs)
	used := make(map[*domain.Transaction]bool)

	var states []*purchaseState
	for _, tx := range ordered {
		if tx.Direction == domain.DirectionDebit && !isInstallment(tx) && tx.Amount.GreaterThanOrEqual(cfg.LargePurchaseMin) {
			states = append(states, &purchaseState{purchase: tx})
		}
	}

	var out []EMIConversion
	for _, st := range states {
		p := st.purchase
		for _, tx := range ordered {
			if used[tx] || tx == p {
				continue
			}
			days := tx.Date.DaysSince(p.Date)
			switch {
			case st.stage == converted:
			case tx.Direction == domain.DirectionCredit && days >= 0 && days <= cfg.RefundWindowDays &&
				withinPct(p.Amount, tx.Amount, cfg.AmountTolerancePct) && sameMerchant(p, tx, cfg.MerchantThreshold):
				st.refunds = append(st.refunds, tx)
				st.stage = awaitingEMI
			case st.stage == awaitingEMI && tx.Direction == domain.DirectionDebit && isInstallment(tx) &&
				days > 0 && days <= cfg.EMISearchDays && tx.Amount.LessThan(p.Amount) &&
				!tx.Date.Before(st.refunds[0].Date) && sameMerchant(p, tx, cfg.MerchantThreshold):
				refund := closestRefund(st.refunds, tx)
				conv := EMIConversion{Purchase: p, Refund: refund, FirstInstallment: tx, InstallmentAmount: tx.Amount}
				used[refund] = true
				st.stage = converted
				annotate(conv)
				out = append(out, conv)
			}
		}
	}
	return out
}

func annotate(c EMIConversion) {
	c.Purchase.SetMetadata(MetaEMIConverted, true)
	c.Purchase.SetMetadata(MetaEMIRefundID, c.Refund.ID)
	c.Purchase.SetMetadata(MetaEMIFirstInstallment, c.FirstInstallment.ID)
	c.Purchase.SetMetadata(MetaEMIInstallmentAmount, c.InstallmentAmount.StringFixed(2))
	c.Refund.SetMetadata(MetaEMIRefundFor, c.Purchase.ID)
}

// closestRefund picks the refund dated closest to the installment, the
// earliest on a tie.
func closestRefund(refunds []*domain.Transaction, emi *domain.Transaction) *domain.Transaction {
	best := refunds[0]
	bestGap := absDays(emi.Date.DaysSince(best.Date))
	for _, r := range refunds[1:] {
		if gap := absDays(emi.Date.DaysSince(r.Date)); gap < bestGap {
			best, bestGap = r, gap
		}
	}
	return best
}

func isInstallment(tx *domain.Transaction) bool {
	if tx.Category == domain.CategoryLoanEMI {
		return true
	}
	return hasWord(tx.RawDescription, "emi", "installment", "instalment")
}

func sameMerchant(a, b *domain.Transaction, threshold float64) bool {
	ka, kb := merchantKey(a), merchantKey(b)
	if ka == "" || kb == "" {
		return false
	}
	return ka == kb || fuzzy.WRatio(ka, kb) >= threshold
}

// withinPct reports whether b is within pct percent of a.
func withinPct(a, b decimal.Decimal, pct float64) bool {
	limit := a.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
	return a.Sub(b).Abs().LessThanOrEqual(limit)
}

func absDays(d int) int {
	if d < 0 {
		return -d
	}
	return d
}
