package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/categorizer"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/fielddetect"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	if err != nil {
		t.Fatalf("FromLookup() unexpected error: %v", err)
	}
	if cfg.Dedup.TimeWindowDays != 1 || cfg.Dedup.FuzzyThreshold != 85 || !cfg.Dedup.MergeDuplicates {
		t.Errorf("dedup defaults = %+v", cfg.Dedup)
	}
	if !cfg.Extractor.EnableTextLayer || !cfg.Extractor.EnableTableGrid || cfg.Extractor.EnableOCR {
		t.Errorf("strategy defaults = %+v", cfg.Extractor)
	}
	if cfg.Extractor.Dates.TwoDigitYearPivot != 69 || !cfg.Extractor.Dates.DayFirst {
		t.Errorf("date defaults = %+v", cfg.Extractor.Dates)
	}
	if cfg.DefaultCurrency != "INR" || cfg.MerchantFuzzyFloor != 80 || cfg.Extractor.OCRLanguage != "eng" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"DEDUP_TIME_WINDOW_DAYS":    "3",
		"DEDUP_FUZZY_THRESHOLD":     "92.5",
		"DEDUP_MERGE_DUPLICATES":    "false",
		"DEDUP_AMOUNT_TOLERANCE":    "0.5",
		"ENABLE_PDF_OCR":            "yes",
		"ENABLE_TABULA":             "1",
		"ENABLE_TEXT_LAYER":         "off",
		"OCR_LANGUAGE":              "eng+hin",
		"DATE_TWO_DIGIT_YEAR_PIVOT": "50",
		"DATE_DAY_FIRST":            "false",
		"ML_MODEL_PATH":             "/var/lib/ingest/model.gob",
		"DEFAULT_CURRENCY":          "usd",
		"MERCHANT_FUZZY_FLOOR":      "75",
		"SQLITE_PATH":               "ledger.db",
		"LOG_LEVEL":                 " debug ",
	}))
	if err != nil {
		t.Fatalf("FromLookup() unexpected error: %v", err)
	}

	if cfg.Dedup.TimeWindowDays != 3 || cfg.Dedup.FuzzyThreshold != 92.5 || cfg.Dedup.MergeDuplicates {
		t.Errorf("dedup = %+v", cfg.Dedup)
	}
	if !cfg.Dedup.AmountTolerance.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("AmountTolerance = %s", cfg.Dedup.AmountTolerance)
	}
	ex := cfg.Extractor
	if !ex.EnableOCR || !ex.EnableTabula || ex.EnableTextLayer || ex.OCRLanguage != "eng+hin" {
		t.Errorf("extractor = %+v", ex)
	}
	if ex.Dates.TwoDigitYearPivot != 50 || ex.Dates.DayFirst {
		t.Errorf("dates = %+v", ex.Dates)
	}
	if cfg.MLModelPath != "/var/lib/ingest/model.gob" || cfg.DefaultCurrency != "USD" ||
		cfg.MerchantFuzzyFloor != 75 || cfg.SQLitePath != "ledger.db" || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestFromLookup_CollectsErrors(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"DEDUP_TIME_WINDOW_DAYS": "-1",
		"DEDUP_FUZZY_THRESHOLD":  "120",
		"DEDUP_MERGE_DUPLICATES": "maybe",
		"DEFAULT_CURRENCY":       "RUPEE",
		"ENABLE_PDF_OCR":         "true",
	}))
	if err == nil {
		t.Fatal("FromLookup() expected an error")
	}
	for _, key := range []string{"DEDUP_TIME_WINDOW_DAYS", "DEDUP_FUZZY_THRESHOLD", "DEDUP_MERGE_DUPLICATES", "DEFAULT_CURRENCY"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error does not mention %s: %v", key, err)
		}
	}
	if strings.Contains(err.Error(), "ENABLE_PDF_OCR") {
		t.Errorf("valid variable reported: %v", err)
	}
}

func TestLoadReferenceTables(t *testing.T) {
	const doc = `
merchants:
  - name: Chai Point
    aliases: [chaipoint, chai pt]
synonyms:
  description: [txn remarks, narration]
rules:
  - category: Food & Dining
    keywords: [chai]
`
	path := filepath.Join(t.TempDir(), "reference.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	tables, err := LoadReferenceTables(path)
	if err != nil {
		t.Fatalf("LoadReferenceTables() unexpected error: %v", err)
	}
	if len(tables.Merchants) != 1 || tables.Merchants[0].Name != "Chai Point" {
		t.Errorf("Merchants = %+v", tables.Merchants)
	}
	if diff := cmp.Diff([]string{"txn remarks", "narration"}, tables.Synonyms[fielddetect.RoleDescription]); diff != "" {
		t.Errorf("description synonyms mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(fielddetect.DefaultSynonyms()[fielddetect.RoleDate], tables.Synonyms[fielddetect.RoleDate]); diff != "" {
		t.Errorf("date synonyms should keep defaults (-want +got):\n%s", diff)
	}
	want := []categorizer.Rule{{Category: domain.CategoryFood, Keywords: []string{"chai"}}}
	if diff := cmp.Diff(want, tables.Rules); diff != "" {
		t.Errorf("Rules mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadReferenceTables_EmptyPath(t *testing.T) {
	tables, err := LoadReferenceTables("")
	if err != nil {
		t.Fatalf("LoadReferenceTables() unexpected error: %v", err)
	}
	if len(tables.Merchants) == 0 || len(tables.Rules) == 0 || len(tables.Synonyms) == 0 {
		t.Error("empty path should return the built-in tables")
	}
}

func TestParseReferenceTables_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "malformed yaml", doc: "merchants: [name: {"},
		{name: "unknown role", doc: "synonyms:\n  payee: [to]\n"},
		{name: "unknown category", doc: "rules:\n  - category: Gadgets\n    keywords: [phone]\n"},
		{name: "unnamed merchant", doc: "merchants:\n  - aliases: [x]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseReferenceTables([]byte(tt.doc)); err == nil {
				t.Error("ParseReferenceTables() expected an error")
			}
		})
	}

	if _, err := LoadReferenceTables(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadReferenceTables() of a missing file should fail")
	}
}
