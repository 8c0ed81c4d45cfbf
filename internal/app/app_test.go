package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/extractor"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
)

const statementCSV = `Txn Date,Narration,Withdrawal Amt,Deposit Amt,Closing Balance
01/01/2024,SWIGGY BANGALORE,450.00,,9550.00
01/01/2024,SWIGGY BLR,450.00,,9100.00
02/01/2024,NEFT/ACME CORP/SALARY,,50000.00,59100.00
`

func TestNew_Sinks(t *testing.T) {
	tests := []struct {
		name        string
		sink        string
		mutate      func(*config.Config)
		wantSession bool
		wantErr     string
	}{
		{name: "dry run", sink: SinkNone},
		{
			name:        "sqlite",
			sink:        SinkSQLite,
			mutate:      func(c *config.Config) { c.SQLitePath = filepath.Join(t.TempDir(), "ingest.db") },
			wantSession: true,
		},
		{name: "sqlite without path", sink: SinkSQLite, wantErr: "SQLITE_PATH"},
		{name: "bigquery without project", sink: SinkBigQuery, wantErr: "GCP_PROJECT_ID"},
		{name: "unknown sink", sink: "postgres", wantErr: "unknown sink"},
		{
			name:    "missing model file",
			sink:    SinkNone,
			mutate:  func(c *config.Config) { c.MLModelPath = filepath.Join(t.TempDir(), "missing.gob") },
			wantErr: "loading classifier model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			a, err := New(context.Background(), cfg, tt.sink)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("New() error = %v, want it to mention %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
			defer a.Close()
			if (a.Deps.Sessions != nil) != tt.wantSession {
				t.Errorf("Sessions set = %v, want %v", a.Deps.Sessions != nil, tt.wantSession)
			}
		})
	}
}

func TestApp_IngestReport(t *testing.T) {
	a, err := New(context.Background(), config.Default(), SinkNone)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	defer a.Close()

	res, err := a.Ingest(context.Background(), pipeline.Upload{Name: "jan.csv", Data: []byte(statementCSV), AccountID: "acc-1"})
	if err != nil {
		t.Fatalf("Ingest() unexpected error: %v", err)
	}

	r := NewReport("jan.csv", res, nil)
	if r.Unique != 2 || r.Duplicates != 1 || r.Strategy != extractor.StrategyTableGrid {
		t.Errorf("report = %+v", r)
	}
	if len(r.Transactions) != 3 || r.DedupStats["total_merged"] != 1 {
		t.Errorf("report transactions=%d stats=%v", len(r.Transactions), r.DedupStats)
	}
	if _, err := json.Marshal(r); err != nil {
		t.Errorf("report does not encode: %v", err)
	}
}

func TestNewReport_Failure(t *testing.T) {
	exhausted := &extractor.ExtractionExhaustedError{
		Document: "scan.png",
		Attempts: []extractor.Attempt{{Strategy: extractor.StrategyOCR, Status: extractor.StatusSkip}},
	}
	err := fmt.Errorf("pipeline step 1 (extract) failed: %w", exhausted)

	r := NewReport("scan.png", nil, err)
	if r.Error == "" || len(r.Attempts) != 1 {
		t.Errorf("report = %+v", r)
	}

	r = NewReport("empty.csv", nil, errors.New("upload is empty"))
	if r.Attempts != nil || r.Error != "upload is empty" {
		t.Errorf("report = %+v", r)
	}
}
