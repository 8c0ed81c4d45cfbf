package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-ingest/internal/dedup"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/extractor"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/merchant"
	"github.com/dvloznov/statement-ingest/internal/normalizer"
	"github.com/dvloznov/statement-ingest/internal/patterns"
)

// PipelineStep is a single step in the ingestion pipeline.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState is shared across all steps of one ingestion.
type PipelineState struct {
	Upload    Upload
	RunID     string
	StartedAt time.Time

	Session Session

	Extraction   *extractor.Result
	Transactions []*domain.Transaction
	SkippedRows  []extractor.SkippedRow
	Existing     []*domain.Transaction
	Dedup        *dedup.Result
	Patterns     patterns.Report
	Warnings     []EnrichmentWarning
	Flat         []map[string]any
}

// Step 1: ExtractStep runs the strategy chain over the upload.
type ExtractStep struct {
	Extractor DocumentExtractor
}

func (s *ExtractStep) Name() string { return "extract" }

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	doc := &extractor.Document{
		Name:        state.Upload.Name,
		ContentType: state.Upload.ContentType,
		Data:        state.Upload.Data,
	}
	res, err := s.Extractor.Extract(ctx, doc)
	if err != nil {
		return err
	}
	state.Extraction = res
	state.SkippedRows = append(state.SkippedRows, res.Skipped...)
	return nil
}

// Step 2: NormalizeStep turns rows into canonical transactions. A row that
// fails validation is skipped like an unparseable line.
type NormalizeStep struct {
	Normalizer *normalizer.Normalizer
}

func (s *NormalizeStep) Name() string { return "normalize" }

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	ex := state.Extraction
	bank := state.Upload.BankName
	if bank == "" {
		bank = ex.BankName
	}
	uc := normalizer.UploadContext{
		UserID:    state.Upload.UserID,
		AccountID: state.Upload.AccountID,
		Currency:  state.Upload.Currency,
		Source:    ex.Kind.Source(),
		BankName:  bank,
		Period:    ex.Period,
	}

	txs := make([]*domain.Transaction, 0, len(ex.Rows))
	for _, row := range ex.Rows {
		tx, err := s.Normalizer.FromRow(row, uc)
		if err != nil {
			log.Warn().Err(err).Int("page", row.Page).Int("line", row.Line).Msg("row rejected by normalizer")
			state.SkippedRows = append(state.SkippedRows, extractor.SkippedRow{
				Page: row.Page, Line: row.Line, Raw: row.Raw, Reason: err.Error(),
			})
			continue
		}
		txs = append(txs, tx)
	}
	if len(txs) == 0 {
		return errors.New("no row survived normalization")
	}
	state.Transactions = txs
	return nil
}

// Step 3: EnrichStep resolves merchants and categories. A failure on one
// transaction is recorded as a warning and never aborts the batch.
type EnrichStep struct {
	Merchants   MerchantNormalizer
	Categorizer Classifier
}

func (s *EnrichStep) Name() string { return "enrich" }

func (s *EnrichStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	for _, tx := range state.Transactions {
		if w := s.enrich(tx); w != nil {
			log.Warn().Err(w.Err).Str("transaction_id", tx.ID).Str("stage", w.Stage).Msg("enrichment failed")
			state.Warnings = append(state.Warnings, *w)
		}
	}
	return nil
}

// enrichable is the part of a transaction enrichment may touch.
type enrichable struct {
	clean, merchantRaw, merchantCanonical, merchantID string
	category                                          domain.Category
	confidence                                        *float64
	metadata                                          map[string]any
}

func snapshot(tx *domain.Transaction) enrichable {
	var md map[string]any
	if tx.Metadata != nil {
		md = make(map[string]any, len(tx.Metadata))
		for k, v := range tx.Metadata {
			md[k] = v
		}
	}
	return enrichable{
		clean:             tx.CleanDescription,
		merchantRaw:       tx.MerchantRaw,
		merchantCanonical: tx.MerchantCanonical,
		merchantID:        tx.MerchantID,
		category:          tx.Category,
		confidence:        tx.CategoryConfidence,
		metadata:          md,
	}
}

func (e enrichable) restore(tx *domain.Transaction) {
	tx.CleanDescription = e.clean
	tx.MerchantRaw = e.merchantRaw
	tx.MerchantCanonical = e.merchantCanonical
	tx.MerchantID = e.merchantID
	tx.Category = e.category
	tx.CategoryConfidence = e.confidence
	tx.Metadata = e.metadata
}

func (s *EnrichStep) enrich(tx *domain.Transaction) (warning *EnrichmentWarning) {
	before := snapshot(tx)
	stage := StageMerchant
	defer func() {
		if r := recover(); r != nil {
			before.restore(tx)
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			warning = &EnrichmentWarning{TransactionID: tx.ID, Stage: stage, Err: err}
		}
	}()

	tx.CleanDescription = merchant.CleanDescription(tx.RawDescription)
	if s.Merchants != nil {
		m := s.Merchants.Normalize(tx.RawDescription)
		tx.SetMerchant(m.Raw, m.Name)
		tx.SetMetadata("merchant_confidence", m.Confidence)
	}

	stage = StageCategory
	if s.Categorizer != nil {
		p := s.Categorizer.Categorize(tx)
		tx.SetCategory(p.Category, p.Confidence)
	}
	return nil
}

// Step 4: LoadExistingStep reads stored records of the account that could
// match the batch.
type LoadExistingStep struct {
	WindowDays int
}

func (s *LoadExistingStep) Name() string { return "load_existing" }

func (s *LoadExistingStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Session == nil || len(state.Transactions) == 0 {
		return nil
	}
	from, to := dateSpan(state.Transactions)
	existing, err := state.Session.ExistingTransactions(ctx, state.Upload.AccountID,
		from.AddDays(-s.WindowDays), to.AddDays(s.WindowDays))
	if err != nil {
		return fmt.Errorf("loading existing transactions: %w", err)
	}
	state.Existing = existing
	return nil
}

func dateSpan(txs []*domain.Transaction) (from, to civil.Date) {
	from, to = txs[0].Date, txs[0].Date
	for _, tx := range txs[1:] {
		if tx.Date.Before(from) {
			from = tx.Date
		}
		if tx.Date.After(to) {
			to = tx.Date
		}
	}
	return from, to
}

// Step 5: DedupStep flags duplicates within the batch and against what is
// stored.
type DedupStep struct {
	Detector *dedup.Detector
}

func (s *DedupStep) Name() string { return "dedup" }

func (s *DedupStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Dedup = s.Detector.Run(state.Transactions, state.Existing)
	log := logger.FromContext(ctx)
	log.Info().
		Int("groups_found", state.Dedup.Stats.GroupsFound).
		Int("total_merged", state.Dedup.Stats.TotalMerged).
		Msg("deduplication finished")
	return nil
}

// Step 6: DetectPatternsStep runs the pattern detectors over stored history
// and the new batch together.
type DetectPatternsStep struct {
	Config patterns.Config
}

func (s *DetectPatternsStep) Name() string { return "detect_patterns" }

func (s *DetectPatternsStep) Execute(ctx context.Context, state *PipelineState) error {
	history := make([]*domain.Transaction, 0, len(state.Existing)+len(state.Transactions))
	history = append(history, state.Existing...)
	history = append(history, state.Transactions...)
	state.Patterns = patterns.Detect(history, s.Config)
	return nil
}

// Step 7: PersistStep flattens the batch and hands it to the session in one
// call.
type PersistStep struct {
	Now func() time.Time
}

func (s *PersistStep) Name() string { return "persist" }

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Flat = make([]map[string]any, len(state.Transactions))
	for i, tx := range state.Transactions {
		state.Flat[i] = normalizer.ToFlat(tx)
	}
	if state.Session == nil {
		return nil
	}
	batch := &Batch{
		RunID:        state.RunID,
		UploadName:   state.Upload.Name,
		UserID:       state.Upload.UserID,
		AccountID:    state.Upload.AccountID,
		StartedAt:    state.StartedAt,
		FinishedAt:   s.Now(),
		Extraction:   state.Extraction,
		Transactions: state.Transactions,
		Flat:         state.Flat,
		DedupStats:   state.Dedup.Stats,
	}
	if err := state.Session.SaveTransactions(ctx, batch); err != nil {
		return fmt.Errorf("saving transactions: %w", err)
	}
	return nil
}
