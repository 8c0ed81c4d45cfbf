package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction is the side of the ledger a transaction sits on. The amount is
// always unsigned; the direction carries the sign.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == DirectionDebit || d == DirectionCredit
}

// ParseDirection accepts the usual statement spellings (debit, dr, withdrawal,
// credit, cr, deposit) in any case.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debit", "dr", "d", "withdrawal", "out", "paid out":
		return DirectionDebit, true
	case "credit", "cr", "c", "deposit", "in", "paid in":
		return DirectionCredit, true
	}
	return "", false
}

// Source tags where a transaction came from.
type Source string

const (
	SourcePDF    Source = "pdf"
	SourceCSV    Source = "csv"
	SourceXLSX   Source = "xlsx"
	SourceText   Source = "text"
	SourceImage  Source = "image"
	SourceManual Source = "manual"
)

// Period is the statement period printed on a statement header.
type Period struct {
	From civil.Date
	To   civil.Date
}

// Transaction is the canonical record every source is mapped to.
//
// Core fields (ID, Date, Timestamp, Amount, Direction, RawDescription,
// Balance, Currency, AccountID, Source) are set once by the normalizer.
// Enrichment only touches merchant, category and duplicate fields.
type Transaction struct {
	ID        string
	Date      civil.Date
	Timestamp *time.Time

	Amount    decimal.Decimal
	Direction Direction

	RawDescription   string
	CleanDescription string

	MerchantRaw       string
	MerchantCanonical string
	MerchantID        string

	Category           Category
	Tags               []string
	CategoryConfidence *float64

	Balance *decimal.Decimal

	Currency         string
	OriginalAmount   *decimal.Decimal
	OriginalCurrency string

	AccountID string
	UserID    string
	Source    Source

	BankName        string
	StatementPeriod *Period

	DuplicateOf    string
	DuplicateCount int
	IsDuplicate    bool

	IngestedAt time.Time
	Metadata   map[string]any
}

// merchantNamespace seeds the name-based UUIDs used as merchant ids.
var merchantNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("statement-ingest/merchant"))

// MerchantID returns the deterministic id for a canonical merchant name.
// Names differing only in case or surrounding space share an id. Empty names
// have no id.
func MerchantID(canonical string) string {
	key := strings.ToLower(strings.Join(strings.Fields(canonical), " "))
	if key == "" {
		return ""
	}
	return uuid.NewSHA1(merchantNamespace, []byte(key)).String()
}

// SetMerchant records the canonical merchant and keeps MerchantID in sync.
func (t *Transaction) SetMerchant(raw, canonical string) {
	t.MerchantRaw = raw
	t.MerchantCanonical = canonical
	t.MerchantID = MerchantID(canonical)
}

// SetCategory records a categorization result, coercing unknown labels.
func (t *Transaction) SetCategory(c Category, confidence float64) {
	t.Category = CoerceCategory(string(c))
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	t.CategoryConfidence = &confidence
}

// SetMetadata sets a metadata key, allocating the map on first use.
func (t *Transaction) SetMetadata(key string, value any) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]any)
	}
	t.Metadata[key] = value
}

// SignedAmount is the amount with debits negative, for balance arithmetic only.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Validate checks the record invariants and reports every violation at once.
func (t *Transaction) Validate() error {
	var v ValidationError
	if strings.TrimSpace(t.ID) == "" {
		v.add("id: must not be empty")
	}
	if !t.Date.IsValid() {
		v.add("date: must be a valid calendar date")
	}
	if !t.Amount.IsPositive() {
		v.add("amount: must be strictly positive, got " + t.Amount.String())
	}
	if !t.Direction.Valid() {
		v.add("direction: must be debit or credit, got " + quote(string(t.Direction)))
	}
	if _, ok := categorySet[t.Category]; !ok {
		v.add("category: not in the category enumeration: " + quote(string(t.Category)))
	}
	if t.CategoryConfidence != nil && (*t.CategoryConfidence < 0 || *t.CategoryConfidence > 1) {
		v.add("category_confidence: must be within [0, 1]")
	}
	if t.MerchantCanonical != "" && t.MerchantID != MerchantID(t.MerchantCanonical) {
		v.add("merchant_id: does not match merchant_canonical")
	}
	if t.OriginalAmount != nil && !t.OriginalAmount.IsPositive() {
		v.add("original_amount: must be strictly positive when present")
	}
	if v.empty() {
		return nil
	}
	return &v
}

func quote(s string) string {
	return `"` + s + `"`
}
