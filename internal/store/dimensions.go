package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dvloznov/transaction-etl/internal/enrich"
)

// Resolver maps natural keys to dimension rows, creating rows lazily on first
// unseen key. Lookups are memoized per resolver, so resolving the same key
// many times within one transaction costs one round trip and never creates a
// duplicate row. The discipline is check-then-insert with the table's
// uniqueness constraint as backstop: an insert that conflicts re-reads the
// key instead of failing the batch.
type Resolver struct {
	db DBTX

	customers        map[string]bool
	products         map[string]bool
	spendCategories  map[string]int64
	transactionTypes map[string]int64
	amountCategories map[string]int64
}

func NewResolver(db DBTX) *Resolver {
	return &Resolver{
		db:               db,
		customers:        make(map[string]bool),
		products:         make(map[string]bool),
		spendCategories:  make(map[string]int64),
		transactionTypes: make(map[string]int64),
		amountCategories: make(map[string]int64),
	}
}

// Customer ensures a customer row exists. The customer_id natural key is also
// the primary key, so nothing needs resolving beyond existence.
func (r *Resolver) Customer(ctx context.Context, customerID string) error {
	if r.customers[customerID] {
		return nil
	}

	var existing string
	err := r.db.QueryRowContext(ctx,
		`SELECT customer_id FROM customers WHERE customer_id = $1`,
		customerID).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO customers (customer_id) VALUES ($1) ON CONFLICT (customer_id) DO NOTHING`,
			customerID)
	}
	if err != nil {
		return fmt.Errorf("Resolver.Customer: %q: %w", customerID, err)
	}

	r.customers[customerID] = true
	return nil
}

// Product ensures a product row exists. The category recorded on first sight
// sticks; products are never updated afterwards.
func (r *Resolver) Product(ctx context.Context, productID, productCategory string) error {
	if r.products[productID] {
		return nil
	}

	var existing string
	err := r.db.QueryRowContext(ctx,
		`SELECT product_id FROM products WHERE product_id = $1`,
		productID).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO products (product_id, product_category) VALUES ($1, $2) ON CONFLICT (product_id) DO NOTHING`,
			productID, productCategory)
	}
	if err != nil {
		return fmt.Errorf("Resolver.Product: %q: %w", productID, err)
	}

	r.products[productID] = true
	return nil
}

// SpendCategory resolves a spend category name to its surrogate key.
func (r *Resolver) SpendCategory(ctx context.Context, name string) (int64, error) {
	if id, ok := r.spendCategories[name]; ok {
		return id, nil
	}
	id, err := r.resolveNamed(ctx, "spend_categories", name)
	if err != nil {
		return 0, fmt.Errorf("Resolver.SpendCategory: %q: %w", name, err)
	}
	r.spendCategories[name] = id
	return id, nil
}

// TransactionType resolves a transaction type name to its surrogate key.
func (r *Resolver) TransactionType(ctx context.Context, name string) (int64, error) {
	if id, ok := r.transactionTypes[name]; ok {
		return id, nil
	}
	id, err := r.resolveNamed(ctx, "transaction_types", name)
	if err != nil {
		return 0, fmt.Errorf("Resolver.TransactionType: %q: %w", name, err)
	}
	r.transactionTypes[name] = id
	return id, nil
}

// AmountCategory resolves an amount band to its surrogate key. The bands are
// seeded by migration, so the insert path only runs against an unseeded
// store; it records the band's bounds, with NULL max for the open top band.
func (r *Resolver) AmountCategory(ctx context.Context, band enrich.Band) (int64, error) {
	if id, ok := r.amountCategories[band.Name]; ok {
		return id, nil
	}

	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM amount_categories WHERE name = $1`,
		band.Name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		var max interface{}
		if band.Max != nil {
			max = *band.Max
		}
		err = r.db.QueryRowContext(ctx,
			`INSERT INTO amount_categories (name, min_amount, max_amount) VALUES ($1, $2, $3)
			 ON CONFLICT (name) DO NOTHING RETURNING id`,
			band.Name, band.Min, max).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			err = r.db.QueryRowContext(ctx,
				`SELECT id FROM amount_categories WHERE name = $1`,
				band.Name).Scan(&id)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("Resolver.AmountCategory: %q: %w", band.Name, err)
	}

	r.amountCategories[band.Name] = id
	return id, nil
}

// resolveNamed looks up a surrogate key by unique name in a lookup table,
// inserting the name if absent. A concurrent insert surfaces as the RETURNING
// clause producing no row; the key is then re-read.
func (r *Resolver) resolveNamed(ctx context.Context, table, name string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM `+table+` WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO `+table+` (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id`,
		name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
		err = r.db.QueryRowContext(ctx,
			`SELECT id FROM `+table+` WHERE name = $1`, name).Scan(&id)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}
