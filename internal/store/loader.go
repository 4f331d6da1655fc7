package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/transaction-etl/internal/domain"
	"github.com/dvloznov/transaction-etl/internal/enrich"
)

// factColumns is the column list for bulk fact inserts; created_at is
// assigned by the store.
const factColumns = "customer_id, product_id, transaction_date, transaction_amount, transaction_type_id, spend_category_id, amount_category_id"

// argsPerFact is the number of bind parameters per fact row.
const argsPerFact = 7

// ChunkResult reports the outcome of one sub-transaction.
type ChunkResult struct {
	Chunk     int
	Attempted int
	Loaded    int
	Err       error
}

// Loader writes enriched records to the fact table. Each chunk runs in its
// own transaction: dimension rows are resolved first, fact rows are
// bulk-inserted, then the transaction commits. Any error rolls the whole
// chunk back, so a chunk either lands completely or not at all.
type Loader struct {
	db        *sql.DB
	bands     enrich.Bands
	chunkSize int
	log       zerolog.Logger
}

func NewLoader(db *sql.DB, bands enrich.Bands, chunkSize int, log zerolog.Logger) *Loader {
	return &Loader{db: db, bands: bands, chunkSize: chunkSize, log: log}
}

// Load splits records into chunks and loads them sequentially. A chunk
// failure caused by the store rejecting a statement fails only that chunk;
// losing the store entirely aborts the remaining chunks and returns
// ErrStoreUnavailable wrapped in the error.
func (l *Loader) Load(ctx context.Context, records []domain.CleanRecord) ([]ChunkResult, error) {
	var results []ChunkResult

	for i, n := 0, 0; i < len(records); i, n = i+l.chunkSize, n+1 {
		end := i + l.chunkSize
		if end > len(records) {
			end = len(records)
		}

		res := l.loadChunk(ctx, n, records[i:end])
		results = append(results, res)

		if res.Err != nil {
			l.log.Error().Int("chunk", n).Int("records", res.Attempted).Err(res.Err).Msg("chunk rolled back")
			if isConnectivity(res.Err) {
				return results, fmt.Errorf("Load: aborting after chunk %d: %w: %w", n, ErrStoreUnavailable, res.Err)
			}
			continue
		}
		l.log.Info().Int("chunk", n).Int("loaded", res.Loaded).Msg("chunk committed")
	}

	return results, nil
}

func (l *Loader) loadChunk(ctx context.Context, n int, records []domain.CleanRecord) ChunkResult {
	res := ChunkResult{Chunk: n, Attempted: len(records)}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		res.Err = fmt.Errorf("loadChunk: begin: %w", err)
		return res
	}

	if err := l.insertFacts(ctx, tx, records); err != nil {
		tx.Rollback()
		res.Err = err
		return res
	}

	if err := tx.Commit(); err != nil {
		res.Err = fmt.Errorf("loadChunk: commit: %w", err)
		return res
	}

	res.Loaded = len(records)
	return res
}

// insertFacts resolves every dimension key for the chunk, then bulk-inserts
// the fact rows in a single statement. Runs entirely on tx so a failure
// leaves nothing behind.
func (l *Loader) insertFacts(ctx context.Context, tx *sql.Tx, records []domain.CleanRecord) error {
	resolver := NewResolver(tx)
	args := make([]interface{}, 0, len(records)*argsPerFact)

	for i, rec := range records {
		if err := resolver.Customer(ctx, rec.CustomerID); err != nil {
			return fmt.Errorf("insertFacts: record %d: %w", i, err)
		}
		if err := resolver.Product(ctx, rec.ProductID, rec.ProductCategory); err != nil {
			return fmt.Errorf("insertFacts: record %d: %w", i, err)
		}
		typeID, err := resolver.TransactionType(ctx, rec.TransactionType)
		if err != nil {
			return fmt.Errorf("insertFacts: record %d: %w", i, err)
		}
		spendID, err := resolver.SpendCategory(ctx, rec.SpendCategory)
		if err != nil {
			return fmt.Errorf("insertFacts: record %d: %w", i, err)
		}
		band, ok := l.bands.ByName(rec.AmountCategory)
		if !ok {
			return fmt.Errorf("insertFacts: record %d: unknown amount category %q", i, rec.AmountCategory)
		}
		amountID, err := resolver.AmountCategory(ctx, band)
		if err != nil {
			return fmt.Errorf("insertFacts: record %d: %w", i, err)
		}

		args = append(args, rec.CustomerID, rec.ProductID, rec.Date, rec.Amount, typeID, spendID, amountID)
	}

	if _, err := tx.ExecContext(ctx, factInsertQuery(len(records)), args...); err != nil {
		return fmt.Errorf("insertFacts: insert %d rows: %w", len(records), err)
	}
	return nil
}

// factInsertQuery builds the multi-row INSERT for n fact rows.
func factInsertQuery(n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO transactions (")
	b.WriteString(factColumns)
	b.WriteString(") VALUES ")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		base := i * argsPerFact
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
	}
	return b.String()
}
