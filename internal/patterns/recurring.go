package patterns

import (
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// Cadence is how regularly a pattern repeats.
type Cadence string

const (
	CadenceMonthly   Cadence = "monthly"
	CadenceIrregular Cadence = "irregular"
)

// Kind is what a recurring pattern pays for.
type Kind string

const (
	KindSalary       Kind = "salary"
	KindEMI          Kind = "emi"
	KindSIP          Kind = "sip"
	KindInsurance    Kind = "insurance"
	KindSubscription Kind = "subscription"
	KindOther        Kind = "other"
)

// RecurringConfig holds the bucketing and cadence thresholds.
type RecurringConfig struct {
	AmountBucketPct float64
	MinGapDays      int
	MaxGapDays      int
	MinCount        int
	// SalaryMin is the smallest monthly credit treated as salary without a
	// salary keyword.
	SalaryMin decimal.Decimal
}

// DefaultRecurringConfig groups amounts within 5% and calls 25 to 40 day
// gaps monthly.
func DefaultRecurringConfig() RecurringConfig {
	return RecurringConfig{
		AmountBucketPct: 5,
		MinGapDays:      25,
		MaxGapDays:      40,
		MinCount:        2,
		SalaryMin:       decimal.NewFromInt(10000),
	}
}

// RecurringPattern is a group of same-platform, similar-amount transactions.
type RecurringPattern struct {
	Key              string
	Direction        domain.Direction
	Cadence          Cadence
	Kind             Kind
	TransactionCount int
	Total            decimal.Decimal
	AverageAmount    decimal.Decimal
	FirstDate        civil.Date
	LastDate         civil.Date
	AverageGapDays   float64
	TransactionIDs   []string
}

type bucket struct {
	anchor decimal.Decimal
	txs    []*domain.Transaction
}

// DetectRecurring groups txs by PlatformKey and direction, then by amount
// bucket. Every bucket with at least MinCount transactions is reported,
// monthly when all gaps fall within [MinGapDays, MaxGapDays]. Patterns are
// ordered by key, direction and first date.
func DetectRecurring(txs []*domain.Transaction, cfg RecurringConfig) []RecurringPattern {
	if cfg.MinCount < 2 {
		cfg.MinCount = 2
	}
	type groupKey struct {
		key string
		dir domain.Direction
	}
	groups := make(map[groupKey][]*bucket)
	var order []groupKey

	for _, tx := range chronological(txs) {
		gk := groupKey{key: PlatformKey(tx), dir: tx.Direction}
		if gk.key == "" {
			continue
		}
		buckets, seen := groups[gk]
		if !seen {
			order = append(order, gk)
		}
		placed := false
		for _, b := range buckets {
			if withinPct(b.anchor, tx.Amount, cfg.AmountBucketPct) {
				b.txs = append(b.txs, tx)
				placed = true
				break
			}
		}
		if !placed {
			buckets = append(buckets, &bucket{anchor: tx.Amount, txs: []*domain.Transaction{tx}})
		}
		groups[gk] = buckets
	}

	var out []RecurringPattern
	for _, gk := range order {
		for _, b := range groups[gk] {
			if len(b.txs) < cfg.MinCount {
				continue
			}
			out = append(out, summarize(gk.key, gk.dir, b.txs, cfg))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		if out[i].Direction != out[j].Direction {
			return out[i].Direction < out[j].Direction
		}
		return out[i].FirstDate.Before(out[j].FirstDate)
	})
	return out
}

func summarize(key string, dir domain.Direction, txs []*domain.Transaction, cfg RecurringConfig) RecurringPattern {
	p := RecurringPattern{
		Key:              key,
		Direction:        dir,
		Cadence:          CadenceMonthly,
		TransactionCount: len(txs),
		Total:            decimal.Zero,
		FirstDate:        txs[0].Date,
		LastDate:         txs[len(txs)-1].Date,
	}
	gapSum := 0
	for i, tx := range txs {
		p.Total = p.Total.Add(tx.Amount)
		p.TransactionIDs = append(p.TransactionIDs, tx.ID)
		if i == 0 {
			continue
		}
		gap := tx.Date.DaysSince(txs[i-1].Date)
		gapSum += gap
		if gap < cfg.MinGapDays || gap > cfg.MaxGapDays {
			p.Cadence = CadenceIrregular
		}
	}
	p.AverageAmount = p.Total.Div(decimal.NewFromInt(int64(len(txs)))).Round(2)
	p.AverageGapDays = float64(gapSum) / float64(len(txs)-1)
	p.Kind = classify(p, txs, cfg)
	return p
}

func classify(p RecurringPattern, txs []*domain.Transaction, cfg RecurringConfig) Kind {
	var parts []string
	cats := make(map[domain.Category]bool)
	for _, tx := range txs {
		parts = append(parts, tx.RawDescription, tx.MerchantCanonical)
		cats[tx.Category] = true
	}
	text := strings.Join(parts, " ")

	if p.Direction == domain.DirectionCredit {
		if cats[domain.CategorySalary] || hasWord(text, "salary", "sal", "payroll", "wages") {
			return KindSalary
		}
		if p.Cadence == CadenceMonthly && p.AverageAmount.GreaterThanOrEqual(cfg.SalaryMin) {
			return KindSalary
		}
		return KindOther
	}
	switch {
	case cats[domain.CategoryLoanEMI] || hasWord(text, "emi", "loan", "installment", "instalment"):
		return KindEMI
	case cats[domain.CategoryInvestment] || hasWord(text, "sip", "mutual", "mf", "zerodha", "groww"):
		return KindSIP
	case cats[domain.CategoryInsurance] || hasWord(text, "insurance", "premium", "lic", "policy"):
		return KindInsurance
	case p.Cadence == CadenceMonthly && (cats[domain.CategoryEntertainment] || cats[domain.CategoryBills] ||
		hasWord(text, "subscription", "netflix", "spotify", "hotstar", "prime", "youtube")):
		return KindSubscription
	}
	return KindOther
}
