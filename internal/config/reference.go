package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/statement-ingest/internal/categorizer"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/fielddetect"
	"github.com/dvloznov/statement-ingest/internal/merchant"
)

// ReferenceTables are the curated lookups shared read-only by every run.
type ReferenceTables struct {
	Merchants []merchant.Entry
	Synonyms  fielddetect.Synonyms
	Rules     []categorizer.Rule
}

type ruleFile struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

type referenceFile struct {
	Merchants []merchant.Entry    `yaml:"merchants"`
	Synonyms  map[string][]string `yaml:"synonyms"`
	Rules     []ruleFile          `yaml:"rules"`
}

// DefaultReferenceTables returns the built-in tables.
func DefaultReferenceTables() ReferenceTables {
	return ReferenceTables{
		Merchants: merchant.DefaultEntries(),
		Synonyms:  fielddetect.DefaultSynonyms(),
		Rules:     categorizer.DefaultRules(),
	}
}

// LoadReferenceTables reads a YAML file of merchants, header synonyms and
// category rules. Sections present in the file replace the defaults; synonym
// roles are merged one by one. An empty path returns the defaults.
func LoadReferenceTables(path string) (ReferenceTables, error) {
	tables := DefaultReferenceTables()
	if path == "" {
		return tables, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ReferenceTables{}, fmt.Errorf("reading reference tables: %w", err)
	}
	return ParseReferenceTables(data)
}

// ParseReferenceTables is LoadReferenceTables for bytes already in memory.
func ParseReferenceTables(data []byte) (ReferenceTables, error) {
	tables := DefaultReferenceTables()
	var f referenceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return ReferenceTables{}, fmt.Errorf("parsing reference tables: %w", err)
	}

	if len(f.Merchants) > 0 {
		for i, m := range f.Merchants {
			if m.Name == "" {
				return ReferenceTables{}, fmt.Errorf("parsing reference tables: merchant %d has no name", i+1)
			}
		}
		tables.Merchants = f.Merchants
	}

	if len(f.Synonyms) > 0 {
		override := make(fielddetect.Synonyms, len(f.Synonyms))
		for role, words := range f.Synonyms {
			r := fielddetect.Role(role)
			switch r {
			case fielddetect.RoleDate, fielddetect.RoleDescription, fielddetect.RoleDebit,
				fielddetect.RoleCredit, fielddetect.RoleBalance, fielddetect.RoleAmount:
			default:
				return ReferenceTables{}, fmt.Errorf("parsing reference tables: unknown column role %q", role)
			}
			override[r] = words
		}
		tables.Synonyms = tables.Synonyms.Merge(override)
	}

	if len(f.Rules) > 0 {
		rules := make([]categorizer.Rule, 0, len(f.Rules))
		for _, rf := range f.Rules {
			if !domain.IsKnownCategory(rf.Category) || domain.Category(rf.Category) == domain.CategoryUnknown {
				return ReferenceTables{}, fmt.Errorf("parsing reference tables: unknown category %q", rf.Category)
			}
			rules = append(rules, categorizer.Rule{Category: domain.Category(rf.Category), Keywords: rf.Keywords})
		}
		tables.Rules = rules
	}
	return tables, nil
}
