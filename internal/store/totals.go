package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// CustomerTotalRow is one row of the standing customer_transaction_totals
// view, recomputed by the store on every query.
type CustomerTotalRow struct {
	CustomerID        string
	TotalTransactions int64
	TotalAmount       decimal.Decimal
}

// CustomerTransactionTotals reads the per-customer aggregate view, used for
// post-run reporting.
func CustomerTransactionTotals(ctx context.Context, db DBTX) ([]CustomerTotalRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT customer_id, total_transactions, total_amount FROM customer_transaction_totals ORDER BY customer_id`)
	if err != nil {
		return nil, fmt.Errorf("CustomerTransactionTotals: %w", err)
	}
	defer rows.Close()

	var totals []CustomerTotalRow
	for rows.Next() {
		var r CustomerTotalRow
		if err := rows.Scan(&r.CustomerID, &r.TotalTransactions, &r.TotalAmount); err != nil {
			return nil, fmt.Errorf("CustomerTransactionTotals: scan: %w", err)
		}
		totals = append(totals, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("CustomerTransactionTotals: rows: %w", err)
	}
	return totals, nil
}
