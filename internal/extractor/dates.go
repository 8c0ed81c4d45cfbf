package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// DatePolicy controls how ambiguous dates are read.
//
// TwoDigitYearPivot anchors two-digit years: yy < pivot means 20yy, anything
// else 19yy. This is a heuristic, the same one time.Parse uses for "06" with a
// pivot of 69. DayFirst picks D/M/Y over M/D/Y when both readings are valid.
type DatePolicy struct {
	DayFirst          bool
	TwoDigitYearPivot int
}

// DefaultDatePolicy reads D/M/Y and anchors two-digit years at 69.
func DefaultDatePolicy() DatePolicy {
	return DatePolicy{DayFirst: true, TwoDigitYearPivot: 69}
}

var (
	isoDatePattern      = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})$`)
	numericDatePattern  = regexp.MustCompile(`^(\d{1,2})[-/.](\d{1,2})[-/.](\d{2}|\d{4})$`)
	dayMonthNamePattern = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?[\s\-/.]*([A-Za-z]{3,9})\.?[\s\-/.,]*(\d{2}|\d{4})$`)
	monthNameDayPattern = regexp.MustCompile(`^([A-Za-z]{3,9})\.?[\s\-]+(\d{1,2})(?:st|nd|rd|th)?,?[\s\-]+(\d{2}|\d{4})$`)
	compactDatePattern  = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	timeSuffixPattern   = regexp.MustCompile(`^(.+?)[T\s]+(\d{1,2}):(\d{2})(?::(\d{2}))?\s*([AaPp][Mm])?$`)

	// leadingDatePattern finds something date-shaped at the start of a line.
	leadingDatePattern = regexp.MustCompile(`(?i)^(\d{4}[-/.]\d{1,2}[-/.]\d{1,2}|\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}|\d{1,2}[\s\-]?(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?[\s\-,]*\d{2,4}|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{2,4})\b`)
)

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// ParseDate reads s as a calendar date. When s also carries a time of day the
// full timestamp is returned as well, in UTC unless s states an offset.
func (p DatePolicy) ParseDate(s string) (civil.Date, *time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, nil, fmt.Errorf("empty date")
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(ts), &ts, nil
		}
	}

	if m := timeSuffixPattern.FindStringSubmatch(s); m != nil {
		d, err := p.parseDay(m[1])
		if err == nil {
			ts, terr := buildTime(d, m[2], m[3], m[4], m[5])
			if terr != nil {
				return civil.Date{}, nil, terr
			}
			return d, &ts, nil
		}
	}

	d, err := p.parseDay(s)
	if err != nil {
		return civil.Date{}, nil, err
	}
	return d, nil, nil
}

func (p DatePolicy) parseDay(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)

	if m := isoDatePattern.FindStringSubmatch(s); m != nil {
		return makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), s)
	}
	if m := compactDatePattern.FindStringSubmatch(s); m != nil {
		return makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), s)
	}
	if m := numericDatePattern.FindStringSubmatch(s); m != nil {
		a, b, y := atoi(m[1]), atoi(m[2]), p.year(m[3])
		first, second := [2]int{a, b}, [2]int{b, a} // (day, month)
		if !p.DayFirst {
			first, second = second, first
		}
		if d, err := makeDate(y, first[1], first[0], s); err == nil {
			return d, nil
		}
		return makeDate(y, second[1], second[0], s)
	}
	if m := dayMonthNamePattern.FindStringSubmatch(s); m != nil {
		month, ok := monthNames[strings.ToLower(m[2])]
		if !ok {
			return civil.Date{}, fmt.Errorf("unknown month in %q", s)
		}
		return makeDate(p.year(m[3]), int(month), atoi(m[1]), s)
	}
	if m := monthNameDayPattern.FindStringSubmatch(s); m != nil {
		month, ok := monthNames[strings.ToLower(m[1])]
		if !ok {
			return civil.Date{}, fmt.Errorf("unknown month in %q", s)
		}
		return makeDate(p.year(m[3]), int(month), atoi(m[2]), s)
	}
	return civil.Date{}, fmt.Errorf("unrecognized date %q", s)
}

// year expands a two-digit year with the pivot rule.
func (p DatePolicy) year(s string) int {
	y := atoi(s)
	if len(s) > 2 {
		return y
	}
	if y < p.TwoDigitYearPivot {
		return 2000 + y
	}
	return 1900 + y
}

func makeDate(year, month, day int, src string) (civil.Date, error) {
	d := civil.Date{Year: year, Month: time.Month(month), Day: day}
	if month < 1 || month > 12 || !d.IsValid() {
		return civil.Date{}, fmt.Errorf("invalid date %q", src)
	}
	return d, nil
}

func buildTime(d civil.Date, hh, mm, ss, ampm string) (time.Time, error) {
	h, m, sec := atoi(hh), atoi(mm), 0
	if ss != "" {
		sec = atoi(ss)
	}
	switch strings.ToLower(ampm) {
	case "pm":
		if h < 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	}
	if h > 23 || m > 59 || sec > 59 {
		return time.Time{}, fmt.Errorf("invalid time %s:%s", hh, mm)
	}
	return time.Date(d.Year, d.Month, d.Day, h, m, sec, 0, time.UTC), nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// leadingDate returns the date-shaped prefix of line and the rest.
func leadingDate(line string) (string, string, bool) {
	loc := leadingDatePattern.FindStringIndex(line)
	if loc == nil {
		return "", line, false
	}
	return line[:loc[1]], strings.TrimSpace(line[loc[1]:]), true
}
