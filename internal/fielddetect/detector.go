// Package fielddetect maps arbitrary tabular headers to canonical field roles.
package fielddetect

import (
	"fmt"
	"strings"

	"github.com/dvloznov/statement-ingest/internal/fuzzy"
)

// Role is a canonical column role.
type Role string

const (
	RoleDate        Role = "date"
	RoleDescription Role = "description"
	RoleDebit       Role = "debit"
	RoleCredit      Role = "credit"
	RoleBalance     Role = "balance"
	RoleAmount      Role = "amount"
)

// roleOrder is the order roles claim headers in. Amount goes last so that
// "Withdrawal Amt" is claimed as a debit column before the generic amount
// synonyms see it.
var roleOrder = []Role{RoleDate, RoleDescription, RoleDebit, RoleCredit, RoleBalance, RoleAmount}

// Synonyms lists header keywords per role, most specific first.
type Synonyms map[Role][]string

// DefaultSynonyms returns the built-in synonym table.
func DefaultSynonyms() Synonyms {
	return Synonyms{
		RoleDate:        {"txn date", "transaction date", "value date", "posting date", "tran date", "date", "dt"},
		RoleDescription: {"narration", "description", "particulars", "details", "remarks", "transaction details", "memo"},
		RoleDebit:       {"withdrawal", "debit", "dr", "paid out", "money out"},
		RoleCredit:      {"deposit", "credit", "cr", "paid in", "money in"},
		RoleBalance:     {"closing balance", "running balance", "balance", "bal"},
		RoleAmount:      {"transaction amount", "amount", "amt", "value"},
	}
}

// Merge returns a copy of s where roles present in override replace the
// defaults.
func (s Synonyms) Merge(override Synonyms) Synonyms {
	out := make(Synonyms, len(s))
	for r, syn := range s {
		out[r] = append([]string(nil), syn...)
	}
	for r, syn := range override {
		if len(syn) > 0 {
			out[r] = append([]string(nil), syn...)
		}
	}
	return out
}

// Mapping maps a role to the header it matched. Roles without a match are
// absent.
type Mapping map[Role]string

// Index returns the column index of the header matched for role, or -1.
func (m Mapping) Index(role Role, headers []string) int {
	h, ok := m[role]
	if !ok {
		return -1
	}
	for i, candidate := range headers {
		if candidate == h {
			return i
		}
	}
	return -1
}

// HasDebitCredit reports whether separate debit and credit columns were found.
func (m Mapping) HasDebitCredit() bool {
	_, d := m[RoleDebit]
	_, c := m[RoleCredit]
	return d || c
}

// ColumnDetectionError is returned when the date or description column is
// missing.
type ColumnDetectionError struct {
	Missing []Role
	Headers []string
}

func (e *ColumnDetectionError) Error() string {
	missing := make([]string, len(e.Missing))
	for i, r := range e.Missing {
		missing[i] = string(r)
	}
	return fmt.Sprintf("column detection failed: no header for %s among %q",
		strings.Join(missing, ", "), e.Headers)
}

// Detect maps headers to roles. Matching is case-insensitive and works on
// whole words of the header, so short synonyms such as "cr" only match a
// standalone word. Each header is claimed by at most one role.
func Detect(headers []string, synonyms Synonyms) (Mapping, error) {
	if synonyms == nil {
		synonyms = DefaultSynonyms()
	}

	padded := make([]string, len(headers))
	for i, h := range headers {
		padded[i] = " " + fuzzy.Clean(h) + " "
	}

	mapping := make(Mapping)
	claimed := make([]bool, len(headers))

	for _, role := range roleOrder {
	synonymLoop:
		for _, syn := range synonyms[role] {
			needle := " " + fuzzy.Clean(syn) + " "
			if needle == "  " {
				continue
			}
			for i, h := range padded {
				if claimed[i] || !strings.Contains(h, needle) {
					continue
				}
				mapping[role] = headers[i]
				claimed[i] = true
				break synonymLoop
			}
		}
	}

	var missing []Role
	for _, required := range []Role{RoleDate, RoleDescription} {
		if _, ok := mapping[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return mapping, &ColumnDetectionError{Missing: missing, Headers: headers}
	}
	return mapping, nil
}
