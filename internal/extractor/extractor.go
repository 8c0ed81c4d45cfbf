// Package extractor turns raw statement files into rows of date,
// description, amount, direction and balance.
//
// Extraction is a fixed, ordered chain of strategies. Each enabled strategy
// runs in turn until one yields at least one valid row; the first such
// strategy wins even when a later one might find more. Every strategy that
// the chain reaches is recorded in the attempt log, including disabled ones.
package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/statement-ingest/internal/fielddetect"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

// Config toggles strategies and carries the parsing policy.
type Config struct {
	EnableTextLayer bool
	EnableTableGrid bool
	// EnableTabula and EnableCamelot both turn on the layout table pass.
	EnableTabula  bool
	EnableCamelot bool
	EnableOCR     bool
	EnableModel   bool

	OCRLanguage string
	Dates       DatePolicy
	Synonyms    fielddetect.Synonyms
}

// DefaultConfig enables the in-process strategies only.
func DefaultConfig() Config {
	return Config{
		EnableTextLayer: true,
		EnableTableGrid: true,
		OCRLanguage:     "eng",
		Dates:           DefaultDatePolicy(),
		Synonyms:        fielddetect.DefaultSynonyms(),
	}
}

type step struct {
	strategy Strategy
	enabled  bool
}

// Extractor runs the strategy chain.
type Extractor struct {
	steps []step
	dates DatePolicy
}

// Option customizes an Extractor.
type Option func(*options)

type options struct {
	runner CommandRunner
	model  StatementModel
}

// WithCommandRunner replaces the os/exec runner used by external tools.
func WithCommandRunner(r CommandRunner) Option {
	return func(o *options) { o.runner = r }
}

// WithStatementModel sets the model used by the model strategy.
func WithStatementModel(m StatementModel) Option {
	return func(o *options) { o.model = m }
}

// New builds the chain in its fixed order: text layer, table grid, layout
// table, OCR, model.
func New(cfg Config, opts ...Option) *Extractor {
	o := options{runner: ExecRunner{}}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Synonyms == nil {
		cfg.Synonyms = fielddetect.DefaultSynonyms()
	}

	return &Extractor{
		dates: cfg.Dates,
		steps: []step{
			{&TextLayerStrategy{Policy: cfg.Dates}, cfg.EnableTextLayer},
			{&TableGridStrategy{Policy: cfg.Dates, Synonyms: cfg.Synonyms}, cfg.EnableTableGrid},
			{&LayoutTableStrategy{Policy: cfg.Dates, Synonyms: cfg.Synonyms, Runner: o.runner}, cfg.EnableTabula || cfg.EnableCamelot},
			{&OCRStrategy{Policy: cfg.Dates, Language: cfg.OCRLanguage, Runner: o.runner}, cfg.EnableOCR},
			{&ModelStrategy{Policy: cfg.Dates, Model: o.model}, cfg.EnableModel && o.model != nil},
		},
	}
}

// NewWithStrategies builds a chain from an explicit list. Used by tests and
// callers that need a custom order.
func NewWithStrategies(dates DatePolicy, strategies ...Strategy) *Extractor {
	e := &Extractor{dates: dates}
	for _, s := range strategies {
		e.steps = append(e.steps, step{strategy: s, enabled: true})
	}
	return e
}

// Disable turns off the named strategy.
func (e *Extractor) Disable(name string) {
	for i := range e.steps {
		if e.steps[i].strategy.Name() == name {
			e.steps[i].enabled = false
		}
	}
}

// Extract runs the chain over doc. It returns *ExtractionExhaustedError when
// no strategy produced a valid row, and the strategy's error unchanged when a
// strategy hard-fails (for example a *fielddetect.ColumnDetectionError on a
// spreadsheet).
func (e *Extractor) Extract(ctx context.Context, doc *Document) (*Result, error) {
	log := logger.FromContext(ctx).With().Str("document", doc.Name).Logger()
	kind := doc.Kind()
	var attempts []Attempt

	for _, st := range e.steps {
		name := st.strategy.Name()
		if !st.enabled {
			attempts = append(attempts, Attempt{Strategy: name, Status: StatusDisabled})
			log.Debug().Str("strategy", name).Msg("strategy disabled")
			continue
		}

		start := time.Now()
		out := runStrategy(ctx, st.strategy, doc)
		valid, invalid := splitValid(out.Rows)
		skipped := append(out.Skipped, invalid...)

		attempt := Attempt{
			Strategy: name,
			Status:   out.Status,
			Rows:     len(valid),
			Skipped:  len(skipped),
			Reason:   out.Reason,
			Duration: time.Since(start),
		}
		if out.Err != nil {
			attempt.Error = out.Err.Error()
		}
		if out.Status == StatusOK && len(valid) == 0 {
			attempt.Status = StatusSkip
			attempt.Reason = "no valid rows"
		}
		attempts = append(attempts, attempt)

		ev := log.Info()
		if out.Err != nil {
			ev = log.Warn().Err(out.Err)
		}
		ev.Str("strategy", name).
			Str("status", string(attempt.Status)).
			Int("rows", attempt.Rows).
			Int("skipped", attempt.Skipped).
			Dur("duration", attempt.Duration).
			Msg("extraction attempt")

		switch {
		case out.Status == StatusHardFail:
			return nil, fmt.Errorf("%s: %w", name, out.Err)
		case attempt.Status == StatusOK:
			bank, period := scanHeader(out.HeaderText, e.dates)
			return &Result{
				Rows:            valid,
				Skipped:         skipped,
				Attempts:        attempts,
				SuccessStrategy: name,
				Kind:            kind,
				BankName:        bank,
				Period:          period,
			}, nil
		}
	}

	return nil, &ExtractionExhaustedError{Document: doc.Name, Attempts: attempts}
}

// runStrategy calls the strategy and turns a panic into a failed outcome.
func runStrategy(ctx context.Context, s Strategy, doc *Document) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Failed(fmt.Errorf("strategy %s panicked: %v", s.Name(), r))
		}
	}()
	return s.Extract(ctx, doc)
}

func splitValid(rows []Row) ([]Row, []SkippedRow) {
	var valid []Row
	var invalid []SkippedRow
	for _, r := range rows {
		if r.Valid() {
			valid = append(valid, r)
			continue
		}
		invalid = append(invalid, SkippedRow{Page: r.Page, Line: r.Line, Raw: r.Raw, Reason: "missing date or amount"})
	}
	return valid, invalid
}
