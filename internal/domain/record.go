package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is one transaction object as returned by the source API, before
// any validation. Field types are whatever encoding/json produced.
type RawRecord map[string]interface{}

// CleanRecord is a validated, normalized transaction ready for enrichment and
// loading. Date carries only the calendar date (UTC midnight); Amount is
// non-negative and rounded to two decimal places.
type CleanRecord struct {
	CustomerID      string
	ProductID       string
	ProductCategory string
	Date            time.Time
	Amount          decimal.Decimal
	TransactionType string
	SpendCategory   string

	// AmountCategory is empty until the enrichment stage assigns a band name.
	AmountCategory string
}

// DedupKey is the composite identity used for within-batch deduplication:
// same customer, product, date and amount means the same transaction.
func (r CleanRecord) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s|%s",
		r.CustomerID, r.ProductID, r.Date.Format("2006-01-02"), r.Amount.StringFixed(2))
}

// RejectReason is a machine-readable code explaining why a raw record was
// dropped by the cleaner.
type RejectReason string

const (
	ReasonMissingField   RejectReason = "missing_field"
	ReasonBadDate        RejectReason = "bad_date"
	ReasonBadAmount      RejectReason = "bad_amount"
	ReasonNegativeAmount RejectReason = "negative_amount"
)

// Rejection pairs a dropped raw record with the reason it was dropped.
type Rejection struct {
	Record RawRecord
	Reason RejectReason
	Detail string
}

// PageFailure records one source page that could not be fetched even after
// retries. The run continues without its records.
type PageFailure struct {
	Page int
	Err  error
}
