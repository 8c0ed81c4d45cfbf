package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/statement-ingest/internal/app"
	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/gcsuploader"
	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/jobs/inmemory"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
)

// Each argument is ACCOUNT_ID=FILE_OR_GS_URI. Uploads of one account are
// ingested one after another; different accounts run in parallel. The report
// is one job summary per account.
func main() {
	var (
		sink       string
		user       string
		currency   string
		workers    int
		maxRetries int
	)
	flag.StringVar(&sink, "sink", app.SinkSQLite, "where to save transactions: none, sqlite or bigquery")
	flag.StringVar(&user, "user", "", "user id stamped on every transaction")
	flag.StringVar(&currency, "currency", "", "currency for rows that do not state one")
	flag.IntVar(&workers, "workers", 5, "concurrent workers")
	flag.IntVar(&maxRetries, "retries", 3, "retries per failed upload")
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
	if flag.NArg() == 0 {
		log.Fatal().Msg("Usage: worker [-sink sqlite] [-workers 5] ACCOUNT_ID=FILE_OR_GS_URI...")
	}

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, sink)
	if err != nil {
		log.Fatal().Err(err).Msg("Setup failed")
	}
	defer a.Close()

	storage := gcsuploader.NewGCSStorageService()
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore, inmemory.WithWorkers(workers))

	handler := func(ctx context.Context, job jobs.Job) error {
		upload, ok := job.(*jobs.IngestUploadJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		src, err := gcsuploader.ReadSource(ctx, upload.Source, storage)
		if err != nil {
			return err
		}
		res, err := a.Ingest(ctx, pipeline.Upload{
			Name:        src.Name,
			ContentType: src.ContentType,
			Data:        src.Data,
			UserID:      upload.UserID,
			AccountID:   upload.AccountID,
			Currency:    upload.Currency,
			BankName:    upload.BankName,
		})
		if err != nil {
			return err
		}

		upload.RunID = res.RunID
		upload.Transactions = res.Unique
		upload.Duplicates = res.Duplicates
		log := logger.FromContext(ctx)
		log.Info().
			Str("run_id", res.RunID).
			Int("transactions", upload.Transactions).
			Msg("Upload ingested")
		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	var accounts []string
	seen := make(map[string]bool)
	for _, arg := range flag.Args() {
		account, source, ok := strings.Cut(arg, "=")
		if !ok || account == "" || source == "" {
			log.Fatal().Str("arg", arg).Msg("expected ACCOUNT_ID=FILE_OR_GS_URI")
		}
		job := &jobs.IngestUploadJob{
			Source:     source,
			UserID:     user,
			AccountID:  account,
			Currency:   currency,
			MaxRetries: maxRetries,
		}
		if err := jobQueue.PublishIngestUpload(ctx, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to publish job")
		}
		if !seen[account] {
			seen[account] = true
			accounts = append(accounts, account)
		}
	}

	log.Info().Int("jobs", flag.NArg()).Msg("Worker started, waiting for jobs...")
	waitForJobs(ctx, jobStore, flag.NArg())

	log.Info().Msg("Shutting down worker...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	var (
		report []jobs.AccountSummary
		failed bool
	)
	for _, account := range accounts {
		sum, err := jobs.SummarizeAccount(context.Background(), jobStore, account)
		if err != nil {
			log.Fatal().Err(err).Msg("Summarizing jobs failed")
		}
		failed = failed || sum.Failed > 0 || sum.Pending > 0
		report = append(report, sum)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatal().Err(err).Msg("Writing job report failed")
	}
	if failed {
		os.Exit(1)
	}
}

// waitForJobs returns once every job has completed or failed for good, or
// when ctx is cancelled.
func waitForJobs(ctx context.Context, store jobs.JobStore, total int) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		done := 0
		for _, status := range []jobs.JobStatus{jobs.JobStatusCompleted, jobs.JobStatusFailed} {
			list, err := store.ListJobs(ctx, jobs.JobFilter{Status: status})
			if err == nil {
				done += len(list)
			}
		}
		if done >= total {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
