package enrich

import (
	"fmt"
	"strings"

	"github.com/dvloznov/transaction-etl/internal/domain"
)

// Sentinel names used when the source omits a categorical field.
const (
	UnknownTransactionType = "unknown"
	UncategorizedSpend     = "uncategorized"
)

// Categorize derives the amount category for each cleaned record and
// normalizes the categorical name fields. It is pure: no I/O, input slice is
// not modified.
func Categorize(bands Bands, records []domain.CleanRecord) ([]domain.CleanRecord, error) {
	out := make([]domain.CleanRecord, 0, len(records))
	for i, rec := range records {
		band, err := bands.Categorize(rec.Amount)
		if err != nil {
			return nil, fmt.Errorf("Categorize: record %d: %w", i, err)
		}
		rec.AmountCategory = band.Name
		rec.TransactionType = normalizeName(rec.TransactionType, UnknownTransactionType)
		rec.SpendCategory = normalizeName(rec.SpendCategory, UncategorizedSpend)
		rec.ProductCategory = normalizeName(rec.ProductCategory, UncategorizedSpend)
		out = append(out, rec)
	}
	return out, nil
}

// normalizeName lowercases and trims a lookup name, substituting the sentinel
// when nothing remains.
func normalizeName(name, sentinel string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return sentinel
	}
	return name
}
