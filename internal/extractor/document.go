package extractor

import (
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// Kind is the detected format of an uploaded document.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindCSV     Kind = "csv"
	KindXLSX    Kind = "xlsx"
	KindText    Kind = "text"
	KindImage   Kind = "image"
	KindUnknown Kind = "unknown"
)

// Tabular reports whether the kind is a spreadsheet-like grid.
func (k Kind) Tabular() bool {
	return k == KindCSV || k == KindXLSX
}

// Source maps the kind onto the transaction source tag.
func (k Kind) Source() domain.Source {
	switch k {
	case KindPDF:
		return domain.SourcePDF
	case KindCSV:
		return domain.SourceCSV
	case KindXLSX:
		return domain.SourceXLSX
	case KindImage:
		return domain.SourceImage
	default:
		return domain.SourceText
	}
}

// Document is a raw upload: bytes plus the declared name and content type.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

var (
	magicPDF  = []byte("%PDF")
	magicZIP  = []byte("PK\x03\x04")
	magicPNG  = []byte("\x89PNG")
	magicJPEG = []byte("\xFF\xD8\xFF")
	magicTIFF = [][]byte{[]byte("II*\x00"), []byte("MM\x00*")}
)

// Kind sniffs the document format from magic bytes first and falls back to the
// declared extension or content type.
func (d *Document) Kind() Kind {
	ext := strings.ToLower(filepath.Ext(d.Name))
	ct := strings.ToLower(d.ContentType)

	switch {
	case bytes.HasPrefix(d.Data, magicPDF):
		return KindPDF
	case bytes.HasPrefix(d.Data, magicZIP):
		if ext == ".xlsx" || ext == ".xlsm" || strings.Contains(ct, "spreadsheet") || ext == "" {
			return KindXLSX
		}
		return KindUnknown
	case bytes.HasPrefix(d.Data, magicPNG), bytes.HasPrefix(d.Data, magicJPEG):
		return KindImage
	}
	for _, m := range magicTIFF {
		if bytes.HasPrefix(d.Data, m) {
			return KindImage
		}
	}

	switch {
	case ext == ".csv" || ext == ".tsv" || strings.Contains(ct, "csv") || strings.Contains(ct, "tab-separated"):
		return KindCSV
	case ext == ".pdf" || ct == "application/pdf":
		// Declared as PDF but without the header; let the PDF strategies decide.
		return KindPDF
	case utf8.Valid(d.Data):
		return KindText
	}
	return KindUnknown
}
