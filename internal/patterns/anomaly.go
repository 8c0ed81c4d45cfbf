package patterns

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// AnomalyLargeTransaction is the only anomaly type reported so far.
const AnomalyLargeTransaction = "large_transaction"

// AnomalyConfig holds the outlier thresholds.
type AnomalyConfig struct {
	// Factor is the multiple of the merchant median that counts as unusual.
	Factor     float64
	MinSamples int
}

// DefaultAnomalyConfig flags amounts above three times the median once a
// merchant has three transactions.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{Factor: 3, MinSamples: 3}
}

// Anomaly is a transaction well above its merchant's usual amount.
type Anomaly struct {
	TransactionID string
	Key           string
	Direction     domain.Direction
	Amount        decimal.Decimal
	Median        decimal.Decimal
	Ratio         float64
	Type          string
	Description   string
	Severity      string
}

// DetectAnomalies compares each transaction with the median of its merchant
// and direction.
func DetectAnomalies(txs []*domain.Transaction, cfg AnomalyConfig) []Anomaly {
	if cfg.Factor <= 0 {
		cfg.Factor = DefaultAnomalyConfig().Factor
	}
	type groupKey struct {
		key string
		dir domain.Direction
	}
	groups := make(map[groupKey][]*domain.Transaction)
	var order []groupKey
	for _, tx := range chronological(txs) {
		gk := groupKey{key: PlatformKey(tx), dir: tx.Direction}
		if gk.key == "" {
			continue
		}
		if _, ok := groups[gk]; !ok {
			order = append(order, gk)
		}
		groups[gk] = append(groups[gk], tx)
	}

	factor := decimal.NewFromFloat(cfg.Factor)
	var out []Anomaly
	for _, gk := range order {
		group := groups[gk]
		if len(group) < cfg.MinSamples {
			continue
		}
		med := median(group)
		if !med.IsPositive() {
			continue
		}
		limit := med.Mul(factor)
		for _, tx := range group {
			if !tx.Amount.GreaterThan(limit) {
				continue
			}
			ratio, _ := tx.Amount.Div(med).Float64()
			severity := "medium"
			if ratio >= 2*cfg.Factor {
				severity = "high"
			}
			out = append(out, Anomaly{
				TransactionID: tx.ID,
				Key:           gk.key,
				Direction:     gk.dir,
				Amount:        tx.Amount,
				Median:        med,
				Ratio:         ratio,
				Type:          AnomalyLargeTransaction,
				Description:   fmt.Sprintf("%s %s is %.1fx the usual %s", gk.dir, tx.Amount.StringFixed(2), ratio, med.StringFixed(2)),
				Severity:      severity,
			})
		}
	}
	return out
}

func median(txs []*domain.Transaction) decimal.Decimal {
	amounts := make([]decimal.Decimal, len(txs))
	for i, tx := range txs {
		amounts[i] = tx.Amount
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i].LessThan(amounts[j]) })
	mid := len(amounts) / 2
	if len(amounts)%2 == 1 {
		return amounts[mid]
	}
	return amounts[mid-1].Add(amounts[mid]).Div(decimal.NewFromInt(2))
}
