package extractor

import (
	"regexp"
	"strings"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// knownBanks maps a lower-case marker found in statement text to the bank
// name recorded on transactions. Longer markers are checked first.
var knownBanks = []struct{ marker, name string }{
	{"state bank of india", "SBI"},
	{"hdfc bank", "HDFC Bank"},
	{"icici bank", "ICICI Bank"},
	{"axis bank", "Axis Bank"},
	{"kotak mahindra", "Kotak Mahindra Bank"},
	{"yes bank", "Yes Bank"},
	{"idfc first", "IDFC First Bank"},
	{"indusind", "IndusInd Bank"},
	{"bank of baroda", "Bank of Baroda"},
	{"punjab national bank", "Punjab National Bank"},
	{"canara bank", "Canara Bank"},
	{"barclays", "Barclays"},
	{"hsbc", "HSBC"},
	{"metro bank", "Metro Bank"},
}

var periodPattern = regexp.MustCompile(`(?i)(?:statement\s+period|period|from)\s*:?\s*(.{6,20}?)\s+(?:to|-|–)\s+(.{6,20}?)(?:\s{2,}|$|\n)`)

// scanHeader looks for the issuing bank and the statement period in the
// first page of text.
func scanHeader(text string, policy DatePolicy) (string, *domain.Period) {
	lower := strings.ToLower(text)
	bank := ""
	for _, b := range knownBanks {
		if strings.Contains(lower, b.marker) {
			bank = b.name
			break
		}
	}

	var period *domain.Period
	for _, line := range strings.Split(text, "\n") {
		m := periodPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		from, _, err1 := policy.ParseDate(m[1])
		to, _, err2 := policy.ParseDate(m[2])
		if err1 == nil && err2 == nil && !to.Before(from) {
			period = &domain.Period{From: from, To: to}
			break
		}
	}
	return bank, period
}
