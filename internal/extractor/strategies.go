package extractor

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/statement-ingest/internal/fielddetect"
)

// Strategy names, in chain order.
const (
	StrategyTextLayer   = "text-layer"
	StrategyTableGrid   = "table-grid"
	StrategyLayoutTable = "layout-table"
	StrategyOCR         = "ocr"
	StrategyModel       = "model"
)

// Strategy is one way of turning a document into rows.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, doc *Document) Outcome
}

// TextLayerStrategy parses statement lines from the PDF text layer, or from
// the file itself for plain-text exports.
type TextLayerStrategy struct {
	Policy DatePolicy
}

func (s *TextLayerStrategy) Name() string { return StrategyTextLayer }

func (s *TextLayerStrategy) Extract(ctx context.Context, doc *Document) Outcome {
	var pages []string
	switch doc.Kind() {
	case KindPDF:
		layout, err := readPDFText(doc.Data)
		if err != nil {
			return Failed(err)
		}
		if !readableText(layout) {
			return Skip("no readable text layer")
		}
		for _, p := range layout {
			pages = append(pages, pageText(p))
		}
	case KindText:
		pages = []string{string(doc.Data)}
	default:
		return Skip("%s has no text layer", doc.Kind())
	}

	p := newLineParser(s.Policy, StrategyTextLayer)
	for i, text := range pages {
		p.parsePage(i+1, text)
	}
	out := OK(p.rows, p.skipped)
	out.HeaderText = firstPage(pages)
	return out
}

// TableGridStrategy reads cell grids: CSV, XLSX and the column layout of a
// PDF text layer. On spreadsheets a missing date or description column is
// fatal, since no later strategy can read them either.
type TableGridStrategy struct {
	Policy   DatePolicy
	Synonyms fielddetect.Synonyms
}

func (s *TableGridStrategy) Name() string { return StrategyTableGrid }

func (s *TableGridStrategy) Extract(ctx context.Context, doc *Document) Outcome {
	g := &gridParser{policy: s.Policy, synonyms: s.Synonyms, strategy: StrategyTableGrid}

	switch doc.Kind() {
	case KindCSV:
		records, err := readCSV(doc.Data)
		if err != nil {
			return Failed(err)
		}
		out := gridOutcome(g.parse(records, 1))
		out.HeaderText = recordsText(records)
		return out

	case KindXLSX:
		sheets, err := readXLSX(doc.Data)
		if err != nil {
			return Failed(err)
		}
		var rows []Row
		var skipped []SkippedRow
		var firstErr error
		for i, records := range sheets {
			r, sk, err := g.parse(records, i+1)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			rows = append(rows, r...)
			skipped = append(skipped, sk...)
		}
		if len(rows) == 0 && len(skipped) == 0 && firstErr != nil {
			return HardFail(firstErr)
		}
		out := OK(rows, skipped)
		if len(sheets) > 0 {
			out.HeaderText = recordsText(sheets[0])
		}
		return out

	case KindPDF:
		layout, err := readPDFText(doc.Data)
		if err != nil {
			return Failed(err)
		}
		out := gridFromLayout(g, layout)
		if len(layout) > 0 {
			out.HeaderText = pageText(layout[0])
		}
		return out

	default:
		return Skip("%s is not tabular", doc.Kind())
	}
}

// gridFromLayout aligns each page's lines to its header and parses the grid.
// Pages without a header are skipped.
func gridFromLayout(g *gridParser, pages [][]textLine) Outcome {
	var rows []Row
	var skipped []SkippedRow
	found := false
	for i, lines := range pages {
		records, ok := alignedRecords(lines, g.synonyms)
		if !ok {
			continue
		}
		found = true
		r, sk, err := g.parse(records, i+1)
		if err != nil {
			continue
		}
		rows = append(rows, r...)
		skipped = append(skipped, sk...)
	}
	if !found {
		return Skip("no table header found")
	}
	return OK(rows, skipped)
}

func gridOutcome(rows []Row, skipped []SkippedRow, err error) Outcome {
	var colErr *fielddetect.ColumnDetectionError
	if errors.As(err, &colErr) {
		return HardFail(err)
	}
	if err != nil {
		return Failed(err)
	}
	return OK(rows, skipped)
}

// readCSV sniffs the delimiter from the first lines and reads all records.
func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func sniffDelimiter(data []byte) rune {
	sample := string(data)
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	lines := strings.Split(sample, "\n")
	if len(lines) > 10 {
		lines = lines[:10]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		count := 0
		for _, l := range lines {
			count += strings.Count(l, string(d))
		}
		if count > bestCount {
			best, bestCount = d, count
		}
	}
	return best
}

// readXLSX returns every sheet's rows, in workbook order.
func readXLSX(data []byte) ([][][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	var sheets [][][]string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		sheets = append(sheets, rows)
	}
	return sheets, nil
}

func firstPage(pages []string) string {
	if len(pages) == 0 {
		return ""
	}
	return pages[0]
}

// recordsText joins the leading records of a grid, where exports usually
// print the account holder, bank and period above the table.
func recordsText(records [][]string) string {
	n := min(len(records), headerSearchRows)
	lines := make([]string, 0, n)
	for _, rec := range records[:n] {
		lines = append(lines, strings.Join(rec, "  "))
	}
	return strings.Join(lines, "\n")
}
