package categorizer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

var (
	textHeaders     = []string{"description", "narration", "text", "raw_description"}
	categoryHeaders = []string{"category", "label"}
)

// ReadSamples reads labeled training data from CSV. The header names a text
// column (description, narration, text) and a category column (category,
// label). Rows whose label is not a known category, or is Unknown, are
// skipped and counted.
func ReadSamples(r io.Reader) (samples []Sample, skipped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, errors.New("read samples: empty input")
		}
		return nil, 0, fmt.Errorf("read samples: %w", err)
	}
	textCol, catCol := column(header, textHeaders), column(header, categoryHeaders)
	if textCol < 0 || catCol < 0 {
		return nil, 0, fmt.Errorf("read samples: header %q needs a description and a category column", strings.Join(header, ","))
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read samples: %w", err)
		}
		if textCol >= len(rec) || catCol >= len(rec) {
			skipped++
			continue
		}
		text := strings.TrimSpace(rec[textCol])
		c := domain.CoerceCategory(rec[catCol])
		if text == "" || c == domain.CategoryUnknown {
			skipped++
			continue
		}
		samples = append(samples, Sample{Text: text, Category: c})
	}
	return samples, skipped, nil
}

func column(header []string, names []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, n := range names {
			if h == n {
				return i
			}
		}
	}
	return -1
}
