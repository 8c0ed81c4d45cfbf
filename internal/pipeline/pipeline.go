// Package pipeline runs one statement upload through extraction,
// normalization, enrichment, deduplication, pattern detection and
// persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-ingest/internal/logger"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Execute runs all steps sequentially and stops at the first error.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	for i, step := range p.steps {
		started := time.Now()
		if err := step.Execute(ctx, state); err != nil {
			log.Error().Err(err).Str("step", step.Name()).Msg("pipeline step failed")
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
		log.Debug().Str("step", step.Name()).Dur("duration", time.Since(started)).Msg("pipeline step done")
	}
	return nil
}

// NewIngestionPipeline creates the standard pipeline for deps. Pattern
// detection is included only when deps.DetectPatterns is set.
func NewIngestionPipeline(deps Dependencies) *Pipeline {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	windowDays := 0
	if deps.Dedup != nil {
		windowDays = deps.Dedup.Config().TimeWindowDays
	}

	steps := []PipelineStep{
		&ExtractStep{Extractor: deps.Extractor},
		&NormalizeStep{Normalizer: deps.Normalizer},
		&EnrichStep{Merchants: deps.Merchants, Categorizer: deps.Categorizer},
		&LoadExistingStep{WindowDays: windowDays},
		&DedupStep{Detector: deps.Dedup},
	}
	if deps.DetectPatterns {
		steps = append(steps, &DetectPatternsStep{Config: deps.Patterns})
	}
	steps = append(steps, &PersistStep{Now: now})
	return NewPipeline(steps...)
}

func (d Dependencies) validate() error {
	var errs []error
	if d.Extractor == nil {
		errs = append(errs, errors.New("extractor is required"))
	}
	if d.Normalizer == nil {
		errs = append(errs, errors.New("normalizer is required"))
	}
	if d.Dedup == nil {
		errs = append(errs, errors.New("dedup detector is required"))
	}
	return errors.Join(errs...)
}

// Ingest runs one upload end to end. A session is opened for the run and
// closed when it ends; nothing is saved unless every step succeeds. Errors
// name the failing step and wrap its cause, so callers can use errors.As to
// find an *extractor.ExtractionExhaustedError or a
// *fielddetect.ColumnDetectionError.
func Ingest(ctx context.Context, upload Upload, deps Dependencies) (*Result, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("Ingest: %w", err)
	}
	if len(upload.Data) == 0 {
		return nil, fmt.Errorf("Ingest: upload %q is empty", upload.Name)
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}
	runID := uuid.NewString()
	if deps.NewRunID != nil {
		runID = deps.NewRunID()
	}

	log := logger.FromContext(ctx).With().
		Str("run_id", runID).
		Str("document", upload.Name).
		Str("account_id", upload.AccountID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{Upload: upload, RunID: runID, StartedAt: now()}

	if deps.Sessions != nil {
		session, err := deps.Sessions.Open(ctx)
		if err != nil {
			return nil, fmt.Errorf("Ingest: opening session: %w", err)
		}
		defer func() {
			if err := session.Close(); err != nil {
				log.Warn().Err(err).Msg("closing session")
			}
		}()
		state.Session = session
	}

	log.Info().Msg("ingestion started")
	if err := NewIngestionPipeline(deps).Execute(ctx, state); err != nil {
		return nil, err
	}

	res := buildResult(state)
	log.Info().
		Str("strategy", res.Extraction.SuccessStrategy).
		Int("transactions", len(res.Transactions)).
		Int("duplicates", res.Duplicates).
		Int("skipped", res.Skipped).
		Int("warnings", len(res.Warnings)).
		Msg("ingestion finished")
	return res, nil
}

func buildResult(state *PipelineState) *Result {
	res := &Result{
		RunID:          state.RunID,
		Transactions:   state.Transactions,
		Flat:           state.Flat,
		Extraction:     state.Extraction,
		Unique:         len(state.Dedup.Unique),
		Duplicates:     len(state.Dedup.Duplicates),
		DedupStats:     state.Dedup.Stats,
		DedupStatsMap:  state.Dedup.Stats.Map(),
		Patterns:       state.Patterns.Recurring,
		EMIConversions: state.Patterns.EMIConversions,
		Anomalies:      state.Patterns.Anomalies,
		Warnings:       state.Warnings,
		Skipped:        len(state.SkippedRows),
		SkippedRows:    state.SkippedRows,
	}
	return res
}
