// Package dedup finds transactions that describe the same money movement,
// within one upload and against what is already stored.
package dedup

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/fuzzy"
)

// MetaCandidateOf is set on a duplicate when merging is off.
const MetaCandidateOf = "duplicate_candidate_of"

// Config controls what counts as a duplicate.
type Config struct {
	TimeWindowDays  int
	FuzzyThreshold  float64
	MergeDuplicates bool
	AmountTolerance decimal.Decimal
}

// DefaultConfig matches within one day, 0.01 and a description score of 85.
func DefaultConfig() Config {
	return Config{
		TimeWindowDays:  1,
		FuzzyThreshold:  85,
		MergeDuplicates: true,
		AmountTolerance: decimal.RequireFromString("0.01"),
	}
}

// Group is a canonical transaction and the transactions found to repeat it.
type Group struct {
	Canonical  *domain.Transaction
	Duplicates []*domain.Transaction
	// Scores holds the description similarity of each duplicate.
	Scores []float64
}

// Size counts the canonical and its duplicates.
func (g Group) Size() int {
	return 1 + len(g.Duplicates)
}

// Stats summarizes a run.
type Stats struct {
	GroupsFound  int
	TotalMerged  int
	LargestGroup int
}

// Map renders the stats with snake_case keys for reports.
func (s Stats) Map() map[string]int {
	return map[string]int{
		"groups_found":  s.GroupsFound,
		"total_merged":  s.TotalMerged,
		"largest_group": s.LargestGroup,
	}
}

// Result is the annotated batch. Transactions keeps input order; Unique and
// Duplicates partition it.
type Result struct {
	Transactions []*domain.Transaction
	Unique       []*domain.Transaction
	Duplicates   []*domain.Transaction
	Groups       []Group
	Stats        Stats
}

// Detector runs duplicate detection with a fixed config.
type Detector struct {
	cfg Config
}

// New returns a Detector. A zero threshold or negative window falls back to
// the defaults.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = def.FuzzyThreshold
	}
	if cfg.TimeWindowDays < 0 {
		cfg.TimeWindowDays = def.TimeWindowDays
	}
	if cfg.AmountTolerance.IsNegative() {
		cfg.AmountTolerance = def.AmountTolerance
	}
	return &Detector{cfg: cfg}
}

// Config returns the effective configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

type candidate struct {
	tx       *domain.Transaction
	existing bool
	index    int
}

type group struct {
	canonical candidate
	dups      []*domain.Transaction
	scores    []float64
}

// Run groups batch against itself and existing. The earliest ingested record
// of a group is canonical, existing records first on ties, then input order.
// Existing records are only ever canonical. Records already flagged as
// duplicates are left alone, so running twice changes nothing.
func (d *Detector) Run(batch, existing []*domain.Transaction) *Result {
	var cands []candidate
	for i, tx := range existing {
		if tx != nil && !tx.IsDuplicate {
			cands = append(cands, candidate{tx: tx, existing: true, index: i})
		}
	}
	for i, tx := range batch {
		if !tx.IsDuplicate {
			cands = append(cands, candidate{tx: tx, index: i})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if !a.tx.IngestedAt.Equal(b.tx.IngestedAt) {
			return a.tx.IngestedAt.Before(b.tx.IngestedAt)
		}
		if a.existing != b.existing {
			return a.existing
		}
		return a.index < b.index
	})

	var groups []*group
	for _, c := range cands {
		g, score := d.findGroup(groups, c.tx)
		switch {
		case g == nil:
			groups = append(groups, &group{canonical: c})
		case c.existing:
			// Already stored; not ours to flag.
		default:
			g.dups = append(g.dups, c.tx)
			g.scores = append(g.scores, score)
		}
	}

	res := &Result{Transactions: batch}
	for _, g := range groups {
		if len(g.dups) == 0 {
			continue
		}
		canon := g.canonical.tx
		for _, dup := range g.dups {
			if d.cfg.MergeDuplicates {
				dup.IsDuplicate = true
				dup.DuplicateOf = canon.ID
				canon.DuplicateCount++
				res.Stats.TotalMerged++
			} else {
				dup.SetMetadata(MetaCandidateOf, canon.ID)
			}
		}
		res.Groups = append(res.Groups, Group{Canonical: canon, Duplicates: g.dups, Scores: g.scores})
		res.Stats.GroupsFound++
		res.Stats.LargestGroup = max(res.Stats.LargestGroup, 1+len(g.dups))
	}

	for _, tx := range batch {
		if tx.IsDuplicate {
			res.Duplicates = append(res.Duplicates, tx)
		} else {
			res.Unique = append(res.Unique, tx)
		}
	}
	return res
}

func (d *Detector) findGroup(groups []*group, tx *domain.Transaction) (*group, float64) {
	for _, g := range groups {
		if ok, score := d.Match(g.canonical.tx, tx); ok {
			return g, score
		}
	}
	return nil, 0
}

// Match reports whether b repeats a, with the description score.
func (d *Detector) Match(a, b *domain.Transaction) (bool, float64) {
	if a.AccountID != b.AccountID || a.Direction != b.Direction {
		return false, 0
	}
	days := a.Date.DaysSince(b.Date)
	if days < 0 {
		days = -days
	}
	if days > d.cfg.TimeWindowDays {
		return false, 0
	}
	if a.Amount.Sub(b.Amount).Abs().GreaterThan(d.cfg.AmountTolerance) {
		return false, 0
	}
	score := fuzzy.WRatio(a.RawDescription, b.RawDescription)
	return score >= d.cfg.FuzzyThreshold, score
}
