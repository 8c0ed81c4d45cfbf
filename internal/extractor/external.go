package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dvloznov/statement-ingest/internal/fielddetect"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

// CommandRunner runs an external tool and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	LookPath(name string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w (stderr: %s)", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (ExecRunner) LookPath(name string) error {
	_, err := exec.LookPath(name)
	return err
}

// writeTemp stores the document bytes in a fresh temp dir for tools that
// only read files. The returned cleanup removes the dir.
func writeTemp(doc *Document, name string) (string, string, func(), error) {
	dir, err := os.MkdirTemp("", "statement-*")
	if err != nil {
		return "", "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, doc.Data, 0o600); err != nil {
		cleanup()
		return "", "", nil, fmt.Errorf("write temp file: %w", err)
	}
	return dir, path, cleanup, nil
}

// LayoutTableStrategy is the high-fidelity table pass: poppler's
// pdftotext -layout keeps column positions, which are then aligned to the
// detected header.
type LayoutTableStrategy struct {
	Policy   DatePolicy
	Synonyms fielddetect.Synonyms
	Runner   CommandRunner
}

func (s *LayoutTableStrategy) Name() string { return StrategyLayoutTable }

func (s *LayoutTableStrategy) Extract(ctx context.Context, doc *Document) Outcome {
	if doc.Kind() != KindPDF {
		return Skip("%s is not a pdf", doc.Kind())
	}
	if err := s.Runner.LookPath("pdftotext"); err != nil {
		return Failed(fmt.Errorf("pdftotext not available: %w", err))
	}

	_, path, cleanup, err := writeTemp(doc, "statement.pdf")
	if err != nil {
		return Failed(err)
	}
	defer cleanup()

	out, err := s.Runner.Run(ctx, "pdftotext", "-layout", path, "-")
	if err != nil {
		return Failed(err)
	}

	var pages [][]textLine
	for _, text := range strings.Split(string(out), "\f") {
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, layoutLines(text))
	}

	header := ""
	if len(pages) > 0 {
		header = pageText(pages[0])
	}

	g := &gridParser{policy: s.Policy, synonyms: s.Synonyms, strategy: StrategyLayoutTable}
	outcome := gridFromLayout(g, pages)
	if outcome.Status == StatusOK && len(outcome.Rows) > 0 {
		outcome.HeaderText = header
		return outcome
	}

	// No usable table; the layout text still reads line by line.
	p := newLineParser(s.Policy, StrategyLayoutTable)
	for i, lines := range pages {
		p.parsePage(i+1, pageText(lines))
	}
	outcome = OK(p.rows, p.skipped)
	outcome.HeaderText = header
	return outcome
}

// OCRStrategy rasterizes PDF pages with pdftoppm and reads them with
// tesseract. Images are read directly.
type OCRStrategy struct {
	Policy   DatePolicy
	Language string
	Runner   CommandRunner
}

func (s *OCRStrategy) Name() string { return StrategyOCR }

func (s *OCRStrategy) Extract(ctx context.Context, doc *Document) Outcome {
	kind := doc.Kind()
	if kind != KindPDF && kind != KindImage {
		return Skip("%s cannot be rasterized", kind)
	}
	if err := s.Runner.LookPath("tesseract"); err != nil {
		return Failed(fmt.Errorf("tesseract not available: %w", err))
	}

	name := "statement.pdf"
	if kind == KindImage {
		name = "statement" + imageExt(doc)
	}
	dir, path, cleanup, err := writeTemp(doc, name)
	if err != nil {
		return Failed(err)
	}
	defer cleanup()

	images := []string{path}
	if kind == KindPDF {
		if err := s.Runner.LookPath("pdftoppm"); err != nil {
			return Failed(fmt.Errorf("pdftoppm not available: %w", err))
		}
		if _, err := s.Runner.Run(ctx, "pdftoppm", "-r", "300", "-png", path, filepath.Join(dir, "page")); err != nil {
			return Failed(err)
		}
		images, err = filepath.Glob(filepath.Join(dir, "page*.png"))
		if err != nil {
			return Failed(err)
		}
		sort.Strings(images)
		if len(images) == 0 {
			return Failed(fmt.Errorf("pdftoppm produced no page images"))
		}
	}

	lang := s.Language
	if lang == "" {
		lang = "eng"
	}
	log := logger.FromContext(ctx)
	p := newLineParser(s.Policy, StrategyOCR)
	read := 0
	header := ""
	for i, img := range images {
		// PSM 4: a single column of text of variable sizes.
		out, err := s.Runner.Run(ctx, "tesseract", img, "stdout", "-l", lang, "--psm", "4")
		if err != nil {
			log.Warn().Err(err).Int("page", i+1).Msg("OCR failed for page")
			continue
		}
		read++
		lines := strings.Split(string(out), "\n")
		for j := range lines {
			lines[j] = sanitizeOCRAmounts(lines[j])
		}
		text := strings.Join(lines, "\n")
		if header == "" {
			header = text
		}
		p.parsePage(i+1, text)
	}
	if read == 0 {
		return Failed(fmt.Errorf("tesseract read no pages"))
	}
	outcome := OK(p.rows, p.skipped)
	outcome.HeaderText = header
	return outcome
}

func imageExt(doc *Document) string {
	switch {
	case bytes.HasPrefix(doc.Data, magicPNG):
		return ".png"
	case bytes.HasPrefix(doc.Data, magicJPEG):
		return ".jpg"
	default:
		return ".tif"
	}
}
