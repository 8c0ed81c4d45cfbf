// Package config reads the ingestion settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/dedup"
	"github.com/dvloznov/statement-ingest/internal/extractor"
	"github.com/dvloznov/statement-ingest/internal/merchant"
	"github.com/dvloznov/statement-ingest/internal/normalizer"
)

// Config is everything an ingestion run needs to know up front.
type Config struct {
	Dedup     dedup.Config
	Extractor extractor.Config

	MLModelPath         string
	DefaultCurrency     string
	ReferenceTablesPath string
	MerchantFuzzyFloor  float64
	DetectPatterns      bool

	LogLevel string

	GCPProjectID    string
	BigQueryDataset string
	SQLitePath      string
}

// Default returns the settings used when no variable is set.
func Default() Config {
	return Config{
		Dedup:              dedup.DefaultConfig(),
		Extractor:          extractor.DefaultConfig(),
		DefaultCurrency:    normalizer.DefaultCurrency,
		MerchantFuzzyFloor: merchant.DefaultFuzzyFloor,
		DetectPatterns:     true,
		LogLevel:           "info",
		BigQueryDataset:    "finance",
	}
}

// Load reads the process environment.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup, starting from Default. Every bad
// value is reported, not only the first.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	r := reader{lookup: lookup}

	cfg.Dedup.TimeWindowDays = r.intRange("DEDUP_TIME_WINDOW_DAYS", cfg.Dedup.TimeWindowDays, 0, 365)
	cfg.Dedup.FuzzyThreshold = r.floatRange("DEDUP_FUZZY_THRESHOLD", cfg.Dedup.FuzzyThreshold, 0, 100)
	cfg.Dedup.MergeDuplicates = r.boolean("DEDUP_MERGE_DUPLICATES", cfg.Dedup.MergeDuplicates)
	if v, ok := r.get("DEDUP_AMOUNT_TOLERANCE"); ok {
		d, err := decimal.NewFromString(v)
		switch {
		case err != nil:
			r.fail("DEDUP_AMOUNT_TOLERANCE", v, "must be a decimal")
		case d.IsNegative():
			r.fail("DEDUP_AMOUNT_TOLERANCE", v, "must not be negative")
		default:
			cfg.Dedup.AmountTolerance = d
		}
	}

	ex := &cfg.Extractor
	ex.EnableTextLayer = r.boolean("ENABLE_TEXT_LAYER", ex.EnableTextLayer)
	ex.EnableTableGrid = r.boolean("ENABLE_TABLE_GRID", ex.EnableTableGrid)
	ex.EnableTabula = r.boolean("ENABLE_TABULA", ex.EnableTabula)
	ex.EnableCamelot = r.boolean("ENABLE_CAMELOT", ex.EnableCamelot)
	ex.EnableOCR = r.boolean("ENABLE_PDF_OCR", ex.EnableOCR)
	ex.EnableModel = r.boolean("ENABLE_MODEL_PARSE", ex.EnableModel)
	ex.OCRLanguage = r.str("OCR_LANGUAGE", ex.OCRLanguage)
	ex.Dates.TwoDigitYearPivot = r.intRange("DATE_TWO_DIGIT_YEAR_PIVOT", ex.Dates.TwoDigitYearPivot, 0, 99)
	ex.Dates.DayFirst = r.boolean("DATE_DAY_FIRST", ex.Dates.DayFirst)

	cfg.MLModelPath = r.str("ML_MODEL_PATH", cfg.MLModelPath)
	cfg.DefaultCurrency = strings.ToUpper(r.str("DEFAULT_CURRENCY", cfg.DefaultCurrency))
	if len(cfg.DefaultCurrency) != 3 {
		r.fail("DEFAULT_CURRENCY", cfg.DefaultCurrency, "must be a three-letter currency code")
	}
	cfg.ReferenceTablesPath = r.str("REFERENCE_TABLES_PATH", cfg.ReferenceTablesPath)
	cfg.MerchantFuzzyFloor = r.floatRange("MERCHANT_FUZZY_FLOOR", cfg.MerchantFuzzyFloor, 0, 100)
	cfg.DetectPatterns = r.boolean("DETECT_PATTERNS", cfg.DetectPatterns)

	cfg.LogLevel = r.str("LOG_LEVEL", cfg.LogLevel)
	cfg.GCPProjectID = r.str("GCP_PROJECT_ID", cfg.GCPProjectID)
	cfg.BigQueryDataset = r.str("BIGQUERY_DATASET", cfg.BigQueryDataset)
	cfg.SQLitePath = r.str("SQLITE_PATH", cfg.SQLitePath)

	if err := errors.Join(r.errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) get(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) fail(key, value, msg string) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %s", key, value, msg))
}

func (r *reader) str(key, def string) string {
	if v, ok := r.get(key); ok {
		return v
	}
	return def
}

func (r *reader) boolean(key string, def bool) bool {
	v, ok := r.get(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "t", "true", "yes", "y", "on":
		return true
	case "0", "f", "false", "no", "n", "off":
		return false
	}
	r.fail(key, v, "must be a boolean")
	return def
}

func (r *reader) intRange(key string, def, lo, hi int) int {
	v, ok := r.get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, "must be an integer")
		return def
	}
	if n < lo || n > hi {
		r.fail(key, v, fmt.Sprintf("must be within [%d, %d]", lo, hi))
		return def
	}
	return n
}

func (r *reader) floatRange(key string, def, lo, hi float64) float64 {
	v, ok := r.get(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, "must be a number")
		return def
	}
	if f < lo || f > hi {
		r.fail(key, v, fmt.Sprintf("must be within [%g, %g]", lo, hi))
		return def
	}
	return f
}
