package enrich

import (
	"github.com/dvloznov/transaction-etl/internal/domain"
)

// Aggregate computes per-customer transaction counts and spend totals from a
// cleaned batch. The result feeds the run summary only; it is never written
// back to the store, which answers the same query via the
// customer_transaction_totals view.
func Aggregate(records []domain.CleanRecord) map[string]domain.CustomerTotals {
	totals := make(map[string]domain.CustomerTotals, len(records))
	for _, rec := range records {
		t := totals[rec.CustomerID]
		t.TransactionCount++
		t.TotalAmount = t.TotalAmount.Add(rec.Amount)
		totals[rec.CustomerID] = t
	}
	return totals
}
