package clean

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/transaction-etl/internal/domain"
	"github.com/dvloznov/transaction-etl/internal/enrich"
)

// dateLayouts are the source date representations the cleaner accepts. All of
// them normalize to a plain calendar date in UTC.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"2006/01/02",
}

// Result partitions a raw batch. Accepted holds the deduplicated fact stream;
// Duplicates counts later occurrences of an already accepted identity;
// Rejected holds everything else, each with a reason code. Every input record
// lands in exactly one of the three.
type Result struct {
	Accepted   []domain.CleanRecord
	Duplicates int
	Rejected   []domain.Rejection
}

// Cleaner validates and repairs raw records one at a time, deduplicating
// across the batch it is fed.
type Cleaner struct{}

func New() *Cleaner {
	return &Cleaner{}
}

// Clean applies the validation rules in order to every record: required
// fields, date normalization, amount parsing, then batch deduplication with
// first occurrence winning.
func (c *Cleaner) Clean(records []domain.RawRecord) Result {
	var res Result
	seen := make(map[string]bool, len(records))

	for _, raw := range records {
		rec, reason, detail := cleanOne(raw)
		if reason != "" {
			res.Rejected = append(res.Rejected, domain.Rejection{
				Record: raw,
				Reason: reason,
				Detail: detail,
			})
			continue
		}

		key := rec.DedupKey()
		if seen[key] {
			res.Duplicates++
			continue
		}
		seen[key] = true
		res.Accepted = append(res.Accepted, rec)
	}

	return res
}

// cleanOne validates a single raw record. On success the returned reason is
// empty; otherwise the reason code and a human-readable detail are set.
func cleanOne(raw domain.RawRecord) (domain.CleanRecord, domain.RejectReason, string) {
	var rec domain.CleanRecord

	customerID, ok := stringField(raw, "customer_id")
	if !ok {
		return rec, domain.ReasonMissingField, "customer_id is missing or empty"
	}
	productID, ok := stringField(raw, "product_id")
	if !ok {
		return rec, domain.ReasonMissingField, "product_id is missing or empty"
	}

	dateStr, ok := stringField(raw, "transaction_date")
	if !ok {
		return rec, domain.ReasonMissingField, "transaction_date is missing or empty"
	}
	date, err := parseDate(dateStr)
	if err != nil {
		return rec, domain.ReasonBadDate, fmt.Sprintf("unparseable date %q", dateStr)
	}

	rawAmount, present := raw["transaction_amount"]
	if !present || rawAmount == nil {
		return rec, domain.ReasonMissingField, "transaction_amount is missing"
	}
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return rec, domain.ReasonBadAmount, err.Error()
	}
	if amount.IsNegative() {
		return rec, domain.ReasonNegativeAmount, fmt.Sprintf("negative amount %s", amount.StringFixed(2))
	}

	rec = domain.CleanRecord{
		CustomerID:      customerID,
		ProductID:       productID,
		ProductCategory: optionalField(raw, "product_category", enrich.UncategorizedSpend),
		Date:            date,
		Amount:          amount.Round(2),
		TransactionType: optionalField(raw, "transaction_type", enrich.UnknownTransactionType),
		SpendCategory:   optionalField(raw, "spend_category", enrich.UncategorizedSpend),
	}
	return rec, "", ""
}

// parseDate tries the accepted layouts and truncates to a UTC calendar date.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("parseDate: %q matches no accepted layout", s)
}

// parseAmount accepts the numeric shapes encoding/json can produce, plus
// numeric strings, which the source emits for some historical pages.
func parseAmount(v interface{}) (decimal.Decimal, error) {
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("parseAmount: non-numeric amount %q", val)
		}
		return d, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("parseAmount: amount has type %T, want number", v)
	}
}

// stringField returns the trimmed string value for key, reporting ok=false
// when the field is absent, empty, or not a string-like scalar.
func stringField(m domain.RawRecord, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		return s, s != ""
	case float64:
		// Some sources serialize identifiers as numbers.
		return strings.TrimSuffix(fmt.Sprintf("%v", val), ".0"), true
	default:
		return "", false
	}
}

// optionalField returns the trimmed string value for key, or the sentinel when
// the field is absent or empty. Missing optional fields never cause rejection.
func optionalField(m domain.RawRecord, key, sentinel string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return sentinel
	}
	s, ok := v.(string)
	if !ok {
		return sentinel
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return sentinel
	}
	return s
}
