package extractor

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// minReadableChars is the text a PDF must yield before its text layer is
// trusted. Scanned statements often carry a few stray glyphs.
const minReadableChars = 50

// readPDFText reads the text layer page by page with ledongthuc/pdf. Words
// on a row are merged into cells when the horizontal gap between them is
// under one font size. The library panics on some malformed files; that is
// reported as an error.
func readPDFText(data []byte) (pages [][]textLine, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdf reader crashed: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n := r.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, nil)
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		var lines []textLine
		for _, row := range rows {
			if line := rowCells(row.Content); len(line) > 0 {
				lines = append(lines, line)
			}
		}
		pages = append(pages, lines)
	}
	return pages, nil
}

func rowCells(words []pdf.Text) textLine {
	var line textLine
	for _, w := range words {
		if strings.TrimSpace(w.S) == "" {
			continue
		}
		end := w.X + w.W
		if n := len(line); n > 0 {
			last := &line[n-1]
			gap := w.X - last.X1
			threshold := w.FontSize
			if threshold <= 0 {
				threshold = 4
			}
			if gap < threshold {
				sep := ""
				if gap > threshold*0.2 {
					sep = " "
				}
				last.S += sep + w.S
				last.X1 = max(last.X1, end)
				continue
			}
		}
		line = append(line, textCell{X0: w.X, X1: end, S: w.S})
	}
	for i := range line {
		line[i].S = strings.Join(strings.Fields(line[i].S), " ")
	}
	sortCells(line)
	return line
}

// readableText applies the quality gate: enough characters, mostly printable.
func readableText(pages [][]textLine) bool {
	total, readable := 0, 0
	for _, p := range pages {
		for _, l := range p {
			for _, r := range l.String() {
				total++
				if unicode.IsPrint(r) && r != unicode.ReplacementChar {
					readable++
				}
			}
		}
	}
	return total > minReadableChars && float64(readable)/float64(total) > 0.6
}

// pageText joins a page's lines for the line parser and header scans.
func pageText(lines []textLine) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.String()
	}
	return strings.Join(parts, "\n")
}
