package extractor

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/statement-ingest/internal/fielddetect"
)

// textCell is a run of text on one line with its horizontal extent. Extents
// are PDF user-space units for text-layer output and character columns for
// layout-preserved text.
type textCell struct {
	X0, X1 float64
	S      string
}

// textLine is one visual line of a page, cells ordered left to right.
type textLine []textCell

func (l textLine) String() string {
	parts := make([]string, len(l))
	for i, c := range l {
		parts[i] = c.S
	}
	return strings.Join(parts, "  ")
}

func (l textLine) strings() []string {
	out := make([]string, len(l))
	for i, c := range l {
		out[i] = c.S
	}
	return out
}

var columnGap = regexp.MustCompile(`\s{2,}|\t`)

// layoutLines splits layout-preserved text into cells on runs of two or more
// spaces, keeping each cell's character columns.
func layoutLines(text string) []textLine {
	var out []textLine
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimRight(raw, " \r")
		if strings.TrimSpace(raw) == "" {
			out = append(out, nil)
			continue
		}
		var line textLine
		start := 0
		for _, gap := range append(columnGap.FindAllStringIndex(raw, -1), []int{len(raw), len(raw)}) {
			seg := raw[start:gap[0]]
			if s := strings.TrimSpace(seg); s != "" {
				lead := len(seg) - len(strings.TrimLeft(seg, " "))
				x0 := float64(utf8.RuneCountInString(raw[:start+lead]))
				line = append(line, textCell{X0: x0, X1: x0 + float64(utf8.RuneCountInString(s)), S: s})
			}
			start = gap[1]
		}
		out = append(out, line)
	}
	return out
}

// alignedRecords finds a header line among lines and re-cuts every later
// line into the header's columns by horizontal overlap. Blank cells survive
// as empty strings, which keeps sparse debit/credit columns in place.
func alignedRecords(lines []textLine, synonyms fielddetect.Synonyms) ([][]string, bool) {
	hdr := -1
	for i, l := range lines {
		if len(l) < 2 {
			continue
		}
		m, err := fielddetect.Detect(l.strings(), synonyms)
		if err != nil {
			continue
		}
		if _, ok := m[fielddetect.RoleAmount]; ok || m.HasDebitCredit() {
			hdr = i
			break
		}
	}
	if hdr < 0 {
		return nil, false
	}

	header := lines[hdr]
	records := [][]string{header.strings()}
	for _, l := range lines[hdr+1:] {
		if len(l) == 0 {
			continue
		}
		rec := make([]string, len(header))
		for _, c := range l {
			col := nearestColumn(header, c)
			if rec[col] == "" {
				rec[col] = c.S
			} else {
				rec[col] += " " + c.S
			}
		}
		records = append(records, rec)
	}
	return records, true
}

// nearestColumn picks the header cell with the largest overlap, falling back
// to the smallest gap.
func nearestColumn(header textLine, c textCell) int {
	best, bestOverlap, bestGap := 0, -1.0, -1.0
	for i, h := range header {
		overlap := min(c.X1, h.X1) - max(c.X0, h.X0)
		if overlap > 0 {
			if overlap > bestOverlap {
				best, bestOverlap = i, overlap
			}
			continue
		}
		if bestOverlap > 0 {
			continue
		}
		gap := -overlap
		if bestGap < 0 || gap < bestGap {
			best, bestGap = i, gap
		}
	}
	return best
}

// sortCells orders cells left to right.
func sortCells(l textLine) {
	sort.SliceStable(l, func(i, j int) bool { return l[i].X0 < l[j].X0 })
}
