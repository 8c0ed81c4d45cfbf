package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-ingest/internal/app"
	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/gcsuploader"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
	"github.com/dvloznov/statement-ingest/internal/writer"
)

func main() {
	var (
		sink          string
		accountID     string
		userID        string
		currency      string
		bankName      string
		format        string
		xlsxPath      string
		archive       string
		withDuplicate bool
		timeout       time.Duration
	)
	flag.StringVar(&sink, "sink", app.SinkNone, "where to save transactions: none, sqlite or bigquery")
	flag.StringVar(&accountID, "account", "", "account the statements belong to (required)")
	flag.StringVar(&userID, "user", "", "owner of the account")
	flag.StringVar(&currency, "currency", "", "currency for rows that do not state one")
	flag.StringVar(&bankName, "bank", "", "bank name, overriding the statement header")
	flag.StringVar(&format, "format", "json", "report format: json or csv")
	flag.StringVar(&xlsxPath, "xlsx", "", "also write the ledger of the last file to this .xlsx path")
	flag.StringVar(&archive, "archive", "", "copy successfully ingested local files to this gs://bucket/prefix")
	flag.BoolVar(&withDuplicate, "include-duplicates", false, "keep duplicate rows in the csv ledger")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "overall time limit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if accountID == "" || flag.NArg() == 0 {
		log.Fatal().Msg("Usage: ingest -account ACCOUNT_ID [-sink none|sqlite|bigquery] [-format json|csv] FILE_OR_GS_URI...")
	}
	if format != "json" && format != "csv" {
		log.Fatal().Str("format", format).Msg("format must be json or csv")
	}

	// Create context with timeout so the command doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, sink)
	if err != nil {
		log.Fatal().Err(err).Msg("Setup failed")
	}
	defer a.Close()

	storage := gcsuploader.NewGCSStorageService()
	var (
		reports []app.Report
		ledgers []*writer.Ledger
		failed  int
	)
	for _, location := range flag.Args() {
		res, err := ingestOne(ctx, log, a, storage, location, pipeline.Upload{
			UserID:    userID,
			AccountID: accountID,
			Currency:  currency,
			BankName:  bankName,
		})
		reports = append(reports, app.NewReport(location, res, err))
		if err != nil {
			failed++
			continue
		}
		ledgers = append(ledgers, ledgerFor(res, accountID))

		if archive != "" && !gcsuploader.IsGCSURI(location) {
			if err := archiveFile(ctx, storage, archive, accountID, location); err != nil {
				log.Error().Err(err).Str("file", location).Msg("Archiving failed")
			}
		}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			log.Fatal().Err(err).Msg("Writing report failed")
		}
	case "csv":
		w := &writer.CSVWriter{IncludeHeader: true, IncludeDuplicates: withDuplicate}
		for _, l := range ledgers {
			if err := w.Write(os.Stdout, l); err != nil {
				log.Fatal().Err(err).Msg("Writing ledger failed")
			}
		}
	}

	if xlsxPath != "" && len(ledgers) > 0 {
		xw := &writer.XLSXWriter{IncludeDuplicates: withDuplicate}
		if err := xw.WriteToFile(xlsxPath, ledgers[len(ledgers)-1]); err != nil {
			log.Error().Err(err).Msg("Writing workbook failed")
		}
	}

	if failed > 0 {
		log.Error().Int("failed", failed).Int("total", flag.NArg()).Msg("Some files failed")
		os.Exit(1)
	}
}

func ingestOne(ctx context.Context, log zerolog.Logger, a *app.App, storage gcsuploader.StorageService, location string, upload pipeline.Upload) (*pipeline.Result, error) {
	src, err := gcsuploader.ReadSource(ctx, location, storage)
	if err != nil {
		log.Error().Err(err).Str("file", location).Msg("Reading source failed")
		return nil, err
	}
	upload.Name = src.Name
	upload.ContentType = src.ContentType
	upload.Data = src.Data

	res, err := a.Ingest(ctx, upload)
	if err != nil {
		log.Error().Err(err).Str("file", location).Msg("Ingestion failed")
		return nil, err
	}
	return res, nil
}

func ledgerFor(res *pipeline.Result, accountID string) *writer.Ledger {
	l := &writer.Ledger{AccountID: accountID, Transactions: res.Transactions}
	if ex := res.Extraction; ex != nil {
		l.BankName = ex.BankName
		l.Period = ex.Period
	}
	return l
}

func archiveFile(ctx context.Context, storage gcsuploader.StorageService, prefix, accountID, file string) error {
	bucket, object, err := gcsuploader.ParseGCSURI(prefix + "/" + accountID + "/" + filepath.Base(file))
	if err != nil {
		return err
	}
	object = path.Clean(object)
	if err := storage.UploadFile(ctx, bucket, object, file); err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("bucket", bucket).Str("object", object).Msg("Statement archived")
	return nil
}
