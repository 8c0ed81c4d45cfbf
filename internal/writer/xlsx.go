package writer

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const ledgerSheet = "Ledger"

// XLSXWriter writes the ledger to a single-sheet workbook.
type XLSXWriter struct {
	IncludeDuplicates bool
}

// WriteToFile writes the ledger to an .xlsx file at the given path.
func (w *XLSXWriter) WriteToFile(path string, l *Ledger) error {
	f, err := w.Workbook(l)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %q: %w", path, err)
	}
	return nil
}

// Workbook builds the workbook in memory.
func (w *XLSXWriter) Workbook(l *Ledger) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ledgerSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(ledgerSheet, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	line := 2
	for _, tx := range l.Transactions {
		if tx.IsDuplicate && !w.IncludeDuplicates {
			continue
		}
		cells := row(tx)
		values := make([]any, len(cells))
		for i, c := range cells {
			values[i] = c
		}
		cell, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(ledgerSheet, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", line, err)
		}
		line++
	}
	return f, nil
}
