package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// Flat record keys.
const (
	KeyID                 = "id"
	KeyDate               = "date"
	KeyTimestamp          = "timestamp"
	KeyAmount             = "amount"
	KeyDirection          = "direction"
	KeyRawDescription     = "raw_description"
	KeyCleanDescription   = "clean_description"
	KeyMerchantRaw        = "merchant_raw"
	KeyMerchantCanonical  = "merchant_canonical"
	KeyMerchantID         = "merchant_id"
	KeyCategory           = "category"
	KeyTags               = "tags"
	KeyCategoryConfidence = "category_confidence"
	KeyBalance            = "balance"
	KeyCurrency           = "currency"
	KeyOriginalAmount     = "original_amount"
	KeyOriginalCurrency   = "original_currency"
	KeyAccountID          = "account_id"
	KeyUserID             = "user_id"
	KeySource             = "source"
	KeyBankName           = "bank_name"
	KeyPeriodFrom         = "statement_period_from"
	KeyPeriodTo           = "statement_period_to"
	KeyDuplicateOf        = "duplicate_of"
	KeyDuplicateCount     = "duplicate_count"
	KeyIsDuplicate        = "is_duplicate"
	KeyIngestedAt         = "ingested_at"
	KeyMetadata           = "metadata"
)

// ToFlat renders t as a flat record. Decimals are strings, dates are
// YYYY-MM-DD and times RFC 3339 with nanoseconds, so FromFlat(ToFlat(t))
// reproduces every field. Absent optional fields map to nil.
func ToFlat(t *domain.Transaction) map[string]any {
	m := map[string]any{
		KeyID:                 t.ID,
		KeyDate:               t.Date.String(),
		KeyTimestamp:          nil,
		KeyAmount:             t.Amount.String(),
		KeyDirection:          string(t.Direction),
		KeyRawDescription:     t.RawDescription,
		KeyCleanDescription:   t.CleanDescription,
		KeyMerchantRaw:        t.MerchantRaw,
		KeyMerchantCanonical:  t.MerchantCanonical,
		KeyMerchantID:         t.MerchantID,
		KeyCategory:           string(t.Category),
		KeyTags:               append([]string{}, t.Tags...),
		KeyCategoryConfidence: nil,
		KeyBalance:            decimalPtr(t.Balance),
		KeyCurrency:           t.Currency,
		KeyOriginalAmount:     decimalPtr(t.OriginalAmount),
		KeyOriginalCurrency:   t.OriginalCurrency,
		KeyAccountID:          t.AccountID,
		KeyUserID:             t.UserID,
		KeySource:             string(t.Source),
		KeyBankName:           t.BankName,
		KeyPeriodFrom:         nil,
		KeyPeriodTo:           nil,
		KeyDuplicateOf:        t.DuplicateOf,
		KeyDuplicateCount:     t.DuplicateCount,
		KeyIsDuplicate:        t.IsDuplicate,
		KeyIngestedAt:         t.IngestedAt.Format(time.RFC3339Nano),
		KeyMetadata:           copyMetadata(t.Metadata),
	}
	if t.Timestamp != nil {
		m[KeyTimestamp] = t.Timestamp.Format(time.RFC3339Nano)
	}
	if t.CategoryConfidence != nil {
		m[KeyCategoryConfidence] = *t.CategoryConfidence
	}
	if t.StatementPeriod != nil {
		m[KeyPeriodFrom] = t.StatementPeriod.From.String()
		m[KeyPeriodTo] = t.StatementPeriod.To.String()
	}
	return m
}

func decimalPtr(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func copyMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// FromFlat builds a transaction from caller-supplied flat data. Values may be
// strings or native Go/JSON types. Every problem is collected into one
// *domain.ValidationError. A missing id or ingestion time is generated and an
// unrecognized category becomes Unknown.
func (n *Normalizer) FromFlat(m map[string]any) (*domain.Transaction, error) {
	r := flatReader{m: m}
	t := &domain.Transaction{
		ID:                 r.str(KeyID),
		Timestamp:          r.timePtr(KeyTimestamp),
		Direction:          domain.Direction(strings.ToLower(r.str(KeyDirection))),
		RawDescription:     r.str(KeyRawDescription),
		CleanDescription:   r.str(KeyCleanDescription),
		MerchantRaw:        r.str(KeyMerchantRaw),
		MerchantCanonical:  r.str(KeyMerchantCanonical),
		MerchantID:         r.str(KeyMerchantID),
		Category:           domain.CoerceCategory(r.str(KeyCategory)),
		Tags:               r.stringList(KeyTags),
		CategoryConfidence: r.floatPtr(KeyCategoryConfidence),
		Balance:            r.decimalPtr(KeyBalance),
		Currency:           n.currency(r.str(KeyCurrency)),
		OriginalAmount:     r.decimalPtr(KeyOriginalAmount),
		OriginalCurrency:   r.str(KeyOriginalCurrency),
		AccountID:          r.str(KeyAccountID),
		UserID:             r.str(KeyUserID),
		Source:             domain.Source(r.str(KeySource)),
		BankName:           r.str(KeyBankName),
		DuplicateOf:        r.str(KeyDuplicateOf),
		DuplicateCount:     r.integer(KeyDuplicateCount),
		IsDuplicate:        r.boolean(KeyIsDuplicate),
		Metadata:           r.metadata(KeyMetadata),
	}

	// Missing date, amount or direction leave zero values that Validate
	// reports.
	if d, ok := r.date(KeyDate); ok {
		t.Date = d
	}
	if a := r.decimalPtr(KeyAmount); a != nil {
		t.Amount = *a
	}
	if d, ok := domain.ParseDirection(string(t.Direction)); ok {
		t.Direction = d
	}
	if from, ok := r.date(KeyPeriodFrom); ok {
		if to, ok := r.date(KeyPeriodTo); ok {
			t.StatementPeriod = &domain.Period{From: from, To: to}
		}
	}
	if t.Source == "" {
		t.Source = domain.SourceManual
	}
	if t.ID == "" {
		t.ID = n.newID()
	}
	if ts := r.timePtr(KeyIngestedAt); ts != nil {
		t.IngestedAt = *ts
	} else {
		t.IngestedAt = n.now()
	}
	if t.MerchantID == "" {
		t.MerchantID = domain.MerchantID(t.MerchantCanonical)
	}

	var verr *domain.ValidationError
	if errors.As(t.Validate(), &verr) {
		r.errs.Merge(verr)
	}
	if err := r.errs.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// flatReader converts loosely typed values and records what it cannot read.
type flatReader struct {
	m    map[string]any
	errs domain.ValidationError
}

func (r *flatReader) str(key string) string {
	v, ok := r.m[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func (r *flatReader) date(key string) (civil.Date, bool) {
	v, ok := r.m[key]
	if !ok || v == nil || v == "" {
		return civil.Date{}, false
	}
	switch x := v.(type) {
	case civil.Date:
		return x, true
	case time.Time:
		return civil.DateOf(x), true
	case string:
		d, err := civil.ParseDate(strings.TrimSpace(x))
		if err != nil {
			r.errs.Add("%s: not a YYYY-MM-DD date: %q", key, x)
			return civil.Date{}, false
		}
		return d, true
	}
	r.errs.Add("%s: unsupported type %T", key, v)
	return civil.Date{}, false
}

func (r *flatReader) timePtr(key string) *time.Time {
	v, ok := r.m[key]
	if !ok || v == nil || v == "" {
		return nil
	}
	switch x := v.(type) {
	case time.Time:
		return &x
	case *time.Time:
		return x
	case string:
		ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(x))
		if err != nil {
			r.errs.Add("%s: not an RFC 3339 time: %q", key, x)
			return nil
		}
		return &ts
	}
	r.errs.Add("%s: unsupported type %T", key, v)
	return nil
}

func (r *flatReader) decimalPtr(key string) *decimal.Decimal {
	v, ok := r.m[key]
	if !ok || v == nil || v == "" {
		return nil
	}
	var d decimal.Decimal
	var err error
	switch x := v.(type) {
	case decimal.Decimal:
		d = x
	case *decimal.Decimal:
		if x == nil {
			return nil
		}
		d = *x
	case string:
		d, err = decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(x), ",", ""))
	case json.Number:
		d, err = decimal.NewFromString(x.String())
	case float64:
		d = decimal.NewFromFloat(x)
	case float32:
		d = decimal.NewFromFloat32(x)
	case int:
		d = decimal.NewFromInt(int64(x))
	case int64:
		d = decimal.NewFromInt(x)
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err != nil {
		r.errs.Add("%s: not a decimal: %v", key, err)
		return nil
	}
	return &d
}

func (r *flatReader) floatPtr(key string) *float64 {
	v, ok := r.m[key]
	if !ok || v == nil || v == "" {
		return nil
	}
	var f float64
	var err error
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case json.Number:
		f, err = x.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err != nil {
		r.errs.Add("%s: not a number: %v", key, err)
		return nil
	}
	return &f
}

func (r *flatReader) integer(key string) int {
	v, ok := r.m[key]
	if !ok || v == nil || v == "" {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		if x == float64(int(x)) {
			return int(x)
		}
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return i
		}
	}
	r.errs.Add("%s: not an integer: %v", key, v)
	return 0
}

func (r *flatReader) boolean(key string) bool {
	v, ok := r.m[key]
	if !ok || v == nil || v == "" {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
			return b
		}
	}
	r.errs.Add("%s: not a boolean: %v", key, v)
	return false
}

func (r *flatReader) stringList(key string) []string {
	v, ok := r.m[key]
	if !ok || v == nil {
		return nil
	}
	switch x := v.(type) {
	case []string:
		if len(x) == 0 {
			return nil
		}
		return append([]string(nil), x...)
	case []any:
		var out []string
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				r.errs.Add("%s: non-string tag %v", key, item)
				continue
			}
			out = append(out, s)
		}
		return out
	case string:
		if x == "" {
			return nil
		}
		return strings.Split(x, ",")
	}
	r.errs.Add("%s: unsupported type %T", key, v)
	return nil
}

func (r *flatReader) metadata(key string) map[string]any {
	v, ok := r.m[key]
	if !ok || v == nil {
		return nil
	}
	if md, ok := v.(map[string]any); ok {
		return copyMetadata(md)
	}
	r.errs.Add("%s: must be an object, got %T", key, v)
	return nil
}
