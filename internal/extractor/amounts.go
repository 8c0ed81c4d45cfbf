package extractor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// errNoAmount marks a blank amount cell. It is not a parse error.
var errNoAmount = errors.New("no amount")

var (
	amountDigits       = regexp.MustCompile(`^\d+(?:\.\d+)?$|^\.\d+$`)
	amountTokenPattern = regexp.MustCompile(`^[-+(]?(?:₹|rs\.?|inr|\$|£|€)?[-+]?\d{1,3}(?:,\d{2,3})*(?:\.\d{1,2})[)]?-?(?:cr|dr)?$|^[-+(]?(?:₹|rs\.?|inr|\$|£|€)?[-+]?\d+\.\d{1,2}[)]?-?(?:cr|dr)?$`)
	currencyTokens     = []string{"₹", "rs.", "rs", "inr", "usd", "gbp", "eur", "$", "£", "€"}

	ocrSemicolon  = regexp.MustCompile(`(\d);(\s*)(\d)`)
	ocrColon      = regexp.MustCompile(`(\d):(\d{2})\b`)
	ocrTrailColon = regexp.MustCompile(`(\d):(\s|$)`)
	ocrTrailNA    = regexp.MustCompile(`\s+NA\b`)
	ocrLetterZero = regexp.MustCompile(`(\d[\d,]*)\.([Oo]{1,2}|[Oo]\d|\d[Oo])\b`)
)

// ParseAmount parses a statement amount such as "1,234.56", "(450.00)",
// "-₹1,234.56" or "450.00 Dr". It returns the signed value and, when the text
// carried a Cr/Dr marker, the direction the marker states.
func ParseAmount(s string) (decimal.Decimal, domain.Direction, error) {
	raw := s
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, ",", "")

	if s == "" || s == "-" || s == "--" || s == "nil" || s == "n/a" {
		return decimal.Zero, "", errNoAmount
	}

	var marker domain.Direction
	switch {
	case strings.HasSuffix(s, "cr"):
		marker, s = domain.DirectionCredit, strings.TrimSuffix(s, "cr")
	case strings.HasSuffix(s, "dr"):
		marker, s = domain.DirectionDebit, strings.TrimSuffix(s, "dr")
	}
	s = strings.TrimSuffix(s, ".")

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}
	for changed := true; changed; {
		changed = false
		switch {
		case strings.HasPrefix(s, "-"):
			negative = !negative
			s, changed = s[1:], true
		case strings.HasPrefix(s, "+"):
			s, changed = s[1:], true
		}
		for _, c := range currencyTokens {
			if strings.HasPrefix(s, c) {
				s, changed = strings.TrimPrefix(s, c), true
			}
			if strings.HasSuffix(s, c) {
				s, changed = strings.TrimSuffix(s, c), true
			}
		}
	}

	if s == "" {
		return decimal.Zero, "", errNoAmount
	}
	if !amountDigits.MatchString(s) {
		return decimal.Zero, "", fmt.Errorf("invalid amount %q", raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, marker, nil
}

// isAmountToken reports whether a whitespace token looks like a money amount
// rather than a reference number. Amounts must carry decimals.
func isAmountToken(tok string) bool {
	return amountTokenPattern.MatchString(strings.ToLower(tok))
}

// isMarkerToken reports a standalone Cr/Dr column value.
func isMarkerToken(tok string) (domain.Direction, bool) {
	switch strings.ToLower(strings.Trim(tok, ".,;|()")) {
	case "cr", "credit":
		return domain.DirectionCredit, true
	case "dr", "debit":
		return domain.DirectionDebit, true
	}
	return "", false
}

// sanitizeOCRAmounts repairs the usual tesseract misreads inside amounts:
// semicolons and colons read for the decimal point, a trailing "NA" and the
// letter O read for a zero after the point.
func sanitizeOCRAmounts(line string) string {
	line = ocrSemicolon.ReplaceAllString(line, "$1.$3")
	line = ocrColon.ReplaceAllString(line, "$1.$2")
	line = ocrTrailColon.ReplaceAllString(line, "$1$2")
	line = ocrTrailNA.ReplaceAllString(line, "")
	line = ocrLetterZero.ReplaceAllStringFunc(line, func(m string) string {
		return strings.NewReplacer("O", "0", "o", "0").Replace(m)
	})
	return line
}

// directionFromSigned applies the single-signed-column rule: negative is a
// debit, and the stored amount is the absolute value.
func directionFromSigned(v decimal.Decimal) (decimal.Decimal, domain.Direction) {
	if v.IsNegative() {
		return v.Abs(), domain.DirectionDebit
	}
	return v, domain.DirectionCredit
}
