package extractor

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// maxTrailingAmounts is debit, credit and balance.
const maxTrailingAmounts = 3

var (
	pageFurniture = regexp.MustCompile(`(?i)^(page\s+\d+|opening balance|closing balance|total|balance\s+(b/f|c/f|brought|carried)|statement|account\s+(no|number))`)
	// balanceLine matches the whole narration of a dated balance or total
	// line, which is not a transaction.
	balanceLine    = regexp.MustCompile(`(?i)^((opening|closing)\s+balance|balance\s+(b/f|c/f|brought\s+forward|carried\s+forward)|(grand\s+|sub\s*)?totals?(\s+(debits?|credits?|withdrawals?|deposits?|amount))?)\s*:?$`)
	openingBalance = regexp.MustCompile(`(?i)^(opening\s+balance|balance\s+(b/f|brought\s+forward))\b`)
)

// lineParser turns free-text statement lines into rows. It keeps the last
// running balance so an amount+balance line can be read from the balance
// movement.
type lineParser struct {
	policy      DatePolicy
	strategy    string
	prevBalance *decimal.Decimal

	rows    []Row
	skipped []SkippedRow
}

func newLineParser(policy DatePolicy, strategy string) *lineParser {
	return &lineParser{policy: policy, strategy: strategy}
}

type amountToken struct {
	value  decimal.Decimal
	marker domain.Direction
}

// parsePage feeds one page of text through the parser.
func (p *lineParser) parsePage(page int, text string) {
	for i, line := range strings.Split(text, "\n") {
		p.parseLine(page, i+1, line)
	}
}

func (p *lineParser) parseLine(page, lineNo int, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	dateText, rest, ok := leadingDate(line)
	if !ok {
		p.continueDescription(line)
		return
	}

	date, ts, err := p.policy.ParseDate(dateText)
	if err != nil {
		p.skip(page, lineNo, line, "unparseable date: "+err.Error())
		return
	}
	// A second leading date is the value date column.
	if _, after, ok := leadingDate(rest); ok {
		rest = after
	}

	tokens := strings.Fields(rest)
	var amounts []amountToken
	for len(tokens) > 0 && len(amounts) < maxTrailingAmounts {
		last := strings.TrimRight(tokens[len(tokens)-1], ",;|")
		prev := ""
		if len(tokens) > 1 {
			prev = strings.TrimRight(tokens[len(tokens)-2], ",;|")
		}
		if dir, ok := isMarkerToken(last); ok && isAmountToken(prev) {
			v, _, err := ParseAmount(prev)
			if err != nil {
				break
			}
			amounts = append([]amountToken{{value: v, marker: dir}}, amounts...)
			tokens = tokens[:len(tokens)-2]
			continue
		}
		if !isAmountToken(last) {
			break
		}
		v, marker, err := ParseAmount(last)
		if err != nil {
			break
		}
		amounts = append([]amountToken{{value: v, marker: marker}}, amounts...)
		tokens = tokens[:len(tokens)-1]
	}

	desc := strings.Trim(strings.Join(tokens, " "), " ,;|-")
	if balanceLine.MatchString(desc) {
		if openingBalance.MatchString(desc) && len(amounts) > 0 {
			b := signedBalance(amounts[len(amounts)-1])
			p.prevBalance = &b
		}
		return
	}
	if len(amounts) == 0 {
		p.skip(page, lineNo, line, "no amount")
		return
	}

	amount, dir, balance, reason := p.derive(amounts)
	if balance != nil {
		b := *balance
		p.prevBalance = &b
	}
	if reason != "" {
		p.skip(page, lineNo, line, reason)
		return
	}

	p.rows = append(p.rows, Row{
		Date:        date,
		Timestamp:   ts,
		Description: desc,
		Amount:      amount,
		Direction:   dir,
		Balance:     balance,
		Page:        page,
		Line:        lineNo,
		Raw:         line,
		Strategy:    p.strategy,
	})
}

// derive reads amount, direction and balance from the trailing amounts. An
// unsigned amount+balance row before any known balance is skipped: its
// direction cannot be read from the balance movement. The balance is still
// returned so later rows can be read.
func (p *lineParser) derive(amounts []amountToken) (decimal.Decimal, domain.Direction, *decimal.Decimal, string) {
	switch len(amounts) {
	case 1:
		a := amounts[0]
		if a.value.IsZero() {
			return decimal.Zero, "", nil, "zero amount"
		}
		v, dir := directionFromSigned(a.value)
		if a.marker != "" {
			dir = a.marker
		}
		return v, dir, nil, ""

	case 2:
		a := amounts[0]
		if a.value.IsZero() {
			return decimal.Zero, "", nil, "zero amount"
		}
		// Overdrawn balances are printed with a Dr marker.
		bal := signedBalance(amounts[1])
		v, dir := directionFromSigned(a.value)
		switch {
		case a.marker != "":
			dir = a.marker
		case a.value.IsNegative():
			// The sign already says debit.
		case p.prevBalance == nil:
			return decimal.Zero, "", &bal, "direction unknown: no opening balance"
		default:
			if bal.Sub(*p.prevBalance).IsNegative() {
				dir = domain.DirectionDebit
			} else {
				dir = domain.DirectionCredit
			}
		}
		return v, dir, &bal, ""

	default:
		debit, credit, bal := amounts[0].value.Abs(), amounts[1].value.Abs(), signedBalance(amounts[2])
		switch {
		case debit.IsPositive() && credit.IsZero():
			return debit, domain.DirectionDebit, &bal, ""
		case credit.IsPositive() && debit.IsZero():
			return credit, domain.DirectionCredit, &bal, ""
		case debit.IsZero() && credit.IsZero():
			return decimal.Zero, "", nil, "zero amount"
		default:
			return decimal.Zero, "", nil, "both debit and credit set"
		}
	}
}

// continueDescription appends wrapped narration text to the previous row.
// Lines that carry amounts are page furniture (totals, carried-forward
// balances) and are ignored. An undated opening balance still seeds the
// running balance.
func (p *lineParser) continueDescription(line string) {
	if openingBalance.MatchString(line) {
		p.seedBalance(line)
		return
	}
	if len(p.rows) == 0 || pageFurniture.MatchString(line) {
		return
	}
	for _, tok := range strings.Fields(line) {
		if isAmountToken(tok) {
			return
		}
	}
	last := &p.rows[len(p.rows)-1]
	if len(last.Description) > 200 {
		return
	}
	last.Description = strings.TrimSpace(last.Description + " " + line)
}

// seedBalance takes the trailing amount of an opening balance line, with an
// optional Cr/Dr marker, as the running balance.
func (p *lineParser) seedBalance(line string) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return
	}
	tok := strings.TrimRight(tokens[len(tokens)-1], ",;|")
	dir, marked := isMarkerToken(tok)
	if marked {
		if len(tokens) < 2 {
			return
		}
		tok = strings.TrimRight(tokens[len(tokens)-2], ",;|")
	}
	if !isAmountToken(tok) {
		return
	}
	v, marker, err := ParseAmount(tok)
	if err != nil {
		return
	}
	if marked {
		marker = dir
	}
	b := signedBalance(amountToken{value: v, marker: marker})
	p.prevBalance = &b
}

func signedBalance(a amountToken) decimal.Decimal {
	if a.marker == domain.DirectionDebit {
		return a.value.Abs().Neg()
	}
	return a.value
}

func (p *lineParser) skip(page, line int, raw, reason string) {
	p.skipped = append(p.skipped, SkippedRow{Page: page, Line: line, Raw: raw, Reason: reason})
}
