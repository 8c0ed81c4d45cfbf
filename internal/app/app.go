// Package app wires configuration, reference tables and a storage sink into
// the dependencies of an ingestion run. The commands share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-ingest/internal/categorizer"
	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/dedup"
	"github.com/dvloznov/statement-ingest/internal/extractor"
	"github.com/dvloznov/statement-ingest/internal/infra/bigquery"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/merchant"
	"github.com/dvloznov/statement-ingest/internal/normalizer"
	"github.com/dvloznov/statement-ingest/internal/patterns"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
	"github.com/dvloznov/statement-ingest/internal/store/sqlite"
)

// Sink names accepted by New.
const (
	SinkNone     = "none"
	SinkSQLite   = "sqlite"
	SinkBigQuery = "bigquery"
)

// App holds the wired dependencies and whatever needs closing after use.
type App struct {
	Config config.Config
	Deps   pipeline.Dependencies

	closers []func() error
}

// NewLogger builds the process logger at cfg.LogLevel on stderr.
func NewLogger(cfg config.Config) (zerolog.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), err
	}
	return logger.NewWithLevel(os.Stderr, level), nil
}

// New loads the reference tables and the classifier model, and opens sink.
func New(ctx context.Context, cfg config.Config, sink string) (*App, error) {
	log := logger.FromContext(ctx)

	tables, err := config.LoadReferenceTables(cfg.ReferenceTablesPath)
	if err != nil {
		return nil, err
	}
	cfg.Extractor.Synonyms = tables.Synonyms

	var model *categorizer.Model
	if cfg.MLModelPath != "" {
		if model, err = categorizer.LoadModel(cfg.MLModelPath); err != nil {
			return nil, fmt.Errorf("loading classifier model: %w", err)
		}
		log.Info().Str("path", cfg.MLModelPath).Int("categories", len(model.Categories())).Msg("classifier model loaded")
	}

	a := &App{Config: cfg}

	var opts []extractor.Option
	if cfg.Extractor.EnableModel {
		gm, err := extractor.NewGeminiModel(ctx, "")
		if err != nil {
			return nil, err
		}
		opts = append(opts, extractor.WithStatementModel(gm))
	}

	a.Deps = pipeline.Dependencies{
		Extractor:      extractor.New(cfg.Extractor, opts...),
		Normalizer:     normalizer.New(cfg.DefaultCurrency),
		Merchants:      merchant.New(tables.Merchants, cfg.MerchantFuzzyFloor),
		Categorizer:    categorizer.New(tables.Rules, model),
		Dedup:          dedup.New(cfg.Dedup),
		DetectPatterns: cfg.DetectPatterns,
		Patterns:       patterns.DefaultConfig(),
	}

	switch sink {
	case SinkNone, "":
	case SinkSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("sqlite sink needs SQLITE_PATH")
		}
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.Deps.Sessions = db
		a.closers = append(a.closers, db.Close)
	case SinkBigQuery:
		if cfg.GCPProjectID == "" {
			return nil, errors.New("bigquery sink needs GCP_PROJECT_ID")
		}
		repo, err := bigquery.NewRepository(ctx, cfg.GCPProjectID, cfg.BigQueryDataset)
		if err != nil {
			return nil, err
		}
		a.Deps.Sessions = repo
		a.closers = append(a.closers, repo.Close)
	default:
		return nil, fmt.Errorf("unknown sink %q (want %s, %s or %s)", sink, SinkNone, SinkSQLite, SinkBigQuery)
	}

	log.Debug().Str("sink", sink).Bool("detect_patterns", cfg.DetectPatterns).Msg("app wired")
	return a, nil
}

// Ingest runs one upload with the wired dependencies.
func (a *App) Ingest(ctx context.Context, upload pipeline.Upload) (*pipeline.Result, error) {
	return pipeline.Ingest(ctx, upload, a.Deps)
}

// Close releases the sink.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
