package extractor

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/fielddetect"
)

// headerSearchRows bounds how far down a sheet the header row may sit.
const headerSearchRows = 40

// gridParser reads rows out of a cell grid whose header row is found with the
// field detector.
type gridParser struct {
	policy   DatePolicy
	synonyms fielddetect.Synonyms
	strategy string
}

// findHeader returns the index of the first row that maps to date and
// description columns. When no row qualifies the detection error for the
// first non-empty row is returned.
func (g *gridParser) findHeader(records [][]string) (int, fielddetect.Mapping, error) {
	var firstErr error
	for i := 0; i < len(records) && i < headerSearchRows; i++ {
		if blankRecord(records[i]) {
			continue
		}
		m, err := fielddetect.Detect(records[i], g.synonyms)
		if err == nil {
			if _, ok := m[fielddetect.RoleAmount]; ok || m.HasDebitCredit() {
				return i, m, nil
			}
			err = &fielddetect.ColumnDetectionError{
				Missing: []fielddetect.Role{fielddetect.RoleAmount},
				Headers: records[i],
			}
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = &fielddetect.ColumnDetectionError{
			Missing: []fielddetect.Role{fielddetect.RoleDate, fielddetect.RoleDescription},
		}
	}
	return -1, nil, firstErr
}

// parse reads every data row after the header. Rows without a usable date
// or amount are skipped and counted.
func (g *gridParser) parse(records [][]string, page int) ([]Row, []SkippedRow, error) {
	hdr, mapping, err := g.findHeader(records)
	if err != nil {
		return nil, nil, err
	}
	headers := records[hdr]
	col := func(role fielddetect.Role) int { return mapping.Index(role, headers) }
	dateCol, descCol := col(fielddetect.RoleDate), col(fielddetect.RoleDescription)
	debitCol, creditCol := col(fielddetect.RoleDebit), col(fielddetect.RoleCredit)
	amountCol, balanceCol := col(fielddetect.RoleAmount), col(fielddetect.RoleBalance)

	var rows []Row
	var skipped []SkippedRow
	for i := hdr + 1; i < len(records); i++ {
		rec := records[i]
		if blankRecord(rec) {
			continue
		}
		raw := strings.Join(rec, " | ")
		skip := func(reason string) {
			skipped = append(skipped, SkippedRow{Page: page, Line: i + 1, Raw: raw, Reason: reason})
		}

		date, ts, err := g.policy.ParseDate(cell(rec, dateCol))
		if err != nil {
			skip("unparseable date: " + err.Error())
			continue
		}

		amount, dir, reason := deriveAmount(rec, debitCol, creditCol, amountCol)
		if reason != "" {
			skip(reason)
			continue
		}

		var balance *decimal.Decimal
		if b, marker, err := ParseAmount(cell(rec, balanceCol)); err == nil {
			if marker == domain.DirectionDebit {
				b = b.Neg()
			}
			balance = &b
		}

		rows = append(rows, Row{
			Date:        date,
			Timestamp:   ts,
			Description: strings.Join(strings.Fields(cell(rec, descCol)), " "),
			Amount:      amount,
			Direction:   dir,
			Balance:     balance,
			Page:        page,
			Line:        i + 1,
			Raw:         raw,
			Strategy:    g.strategy,
		})
	}
	return rows, skipped, nil
}

// deriveAmount applies the amount rules: separate debit/credit columns win
// when either holds a non-zero value, otherwise a signed amount column is
// read with negative meaning debit.
func deriveAmount(rec []string, debitCol, creditCol, amountCol int) (decimal.Decimal, domain.Direction, string) {
	if debitCol >= 0 || creditCol >= 0 {
		debit, derr := nonZeroAmount(cell(rec, debitCol))
		credit, cerr := nonZeroAmount(cell(rec, creditCol))
		switch {
		case derr == nil && cerr == nil:
			return decimal.Zero, "", "both debit and credit set"
		case derr == nil:
			return debit.Abs(), domain.DirectionDebit, ""
		case cerr == nil:
			return credit.Abs(), domain.DirectionCredit, ""
		}
		if amountCol < 0 {
			if !errors.Is(derr, errNoAmount) {
				return decimal.Zero, "", derr.Error()
			}
			if !errors.Is(cerr, errNoAmount) {
				return decimal.Zero, "", cerr.Error()
			}
			return decimal.Zero, "", "no amount"
		}
	}

	v, marker, err := ParseAmount(cell(rec, amountCol))
	if err != nil {
		if errors.Is(err, errNoAmount) {
			return decimal.Zero, "", "no amount"
		}
		return decimal.Zero, "", err.Error()
	}
	if v.IsZero() {
		return decimal.Zero, "", "zero amount"
	}
	amount, dir := directionFromSigned(v)
	if marker != "" {
		dir = marker
	}
	return amount, dir, ""
}

func nonZeroAmount(s string) (decimal.Decimal, error) {
	v, _, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if v.IsZero() {
		return decimal.Zero, errNoAmount
	}
	return v, nil
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
