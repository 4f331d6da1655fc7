package pipeline_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/transaction-etl/internal/clean"
	"github.com/dvloznov/transaction-etl/internal/domain"
	"github.com/dvloznov/transaction-etl/internal/enrich"
	"github.com/dvloznov/transaction-etl/internal/extract"
	"github.com/dvloznov/transaction-etl/internal/logger"
	"github.com/dvloznov/transaction-etl/internal/pipeline"
	"github.com/dvloznov/transaction-etl/internal/store"
)

func newSourceServer(t *testing.T, records []map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Page int `json:"page"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Page > 1 {
			json.NewEncoder(w).Encode([]map[string]interface{}{})
			return
		}
		json.NewEncoder(w).Encode(records)
	}))
}

func newRunner(t *testing.T, srvURL string) (*pipeline.Runner, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	log := logger.New()
	bands := enrich.DefaultBands()
	r := &pipeline.Runner{
		Extractor: extract.New(extract.Options{
			URL:          srvURL,
			APIKey:       "test-key",
			StartDate:    "2024-01-01",
			EndDate:      "2024-01-31",
			PageSize:     50,
			MaxPages:     5,
			Retries:      1,
			RetryWaitMin: time.Millisecond,
			RetryWaitMax: time.Millisecond,
			Log:          log,
		}),
		Cleaner: clean.New(),
		Bands:   bands,
		Loader:  store.NewLoader(db, bands, 500, log),
		Log:     log,
	}
	return r, mock, func() { db.Close() }
}

// expectDims scripts first-sight dimension resolution for one record.
func expectDims(mock sqlmock.Sqlmock, customer, product, productCategory, txType, spend, band string, typeID, spendID, amountID int64) {
	mock.ExpectQuery("SELECT customer_id FROM customers").
		WithArgs(customer).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO customers").
		WithArgs(customer).WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("SELECT product_id FROM products").
		WithArgs(product).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO products").
		WithArgs(product, productCategory).WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("SELECT id FROM transaction_types").
		WithArgs(txType).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO transaction_types").
		WithArgs(txType).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(typeID))

	mock.ExpectQuery("SELECT id FROM spend_categories").
		WithArgs(spend).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO spend_categories").
		WithArgs(spend).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(spendID))

	mock.ExpectQuery("SELECT id FROM amount_categories").
		WithArgs(band).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(amountID))
}

// Duplicate and negative-amount records: three extracted, one rejected for
// the negative amount, two accepted, one fact row after deduplication, and
// the surviving row lands in the medium band.
func TestRun_DedupAndNegativeAmount(t *testing.T) {
	raw := []map[string]interface{}{
		{
			"customer_id": "C1", "product_id": "P1", "transaction_date": "2024-01-05",
			"transaction_amount": 75.00, "transaction_type": "purchase", "spend_category": "grocery",
		},
		{
			"customer_id": "C1", "product_id": "P1", "transaction_date": "2024-01-05",
			"transaction_amount": 75.00, "transaction_type": "purchase", "spend_category": "grocery",
		},
		{
			"customer_id": "C2", "product_id": "P2", "transaction_date": "2024-01-06",
			"transaction_amount": -10.0, "transaction_type": "purchase", "spend_category": "grocery",
		},
	}
	srv := newSourceServer(t, raw)
	defer srv.Close()

	r, mock, done := newRunner(t, srv.URL)
	defer done()

	mock.ExpectBegin()
	expectDims(mock, "C1", "P1", "uncategorized", "purchase", "grocery", "medium", 7, 3, 2)
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs("C1", "P1", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(7), int64(3), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	summary := r.Run(context.Background())

	assert.Equal(t, 3, summary.Extracted)
	assert.Equal(t, 2, summary.Accepted)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, 1, summary.RejectedByReason[domain.ReasonNegativeAmount])
	assert.Equal(t, 1, summary.Loaded)
	assert.Equal(t, 0, summary.FailedBatches)
	assert.Empty(t, summary.Errors)

	require.Contains(t, summary.CustomerTotals, "C1")
	assert.Equal(t, 1, summary.CustomerTotals["C1"].TransactionCount)
	assert.Equal(t, "75.00", summary.CustomerTotals["C1"].TotalAmount.StringFixed(2))

	assert.NoError(t, mock.ExpectationsWereMet())
}

// A record with an unparseable date is rejected with the bad-date reason
// while unrelated records in the same batch still commit.
func TestRun_BadDateIsolated(t *testing.T) {
	raw := []map[string]interface{}{
		{
			"customer_id": "C1", "product_id": "P1", "transaction_date": "not-a-date",
			"transaction_amount": 10.0, "transaction_type": "purchase", "spend_category": "grocery",
		},
		{
			"customer_id": "C2", "product_id": "P2", "transaction_date": "2024-01-06",
			"transaction_amount": 20.0, "transaction_type": "purchase", "spend_category": "grocery",
		},
	}
	srv := newSourceServer(t, raw)
	defer srv.Close()

	r, mock, done := newRunner(t, srv.URL)
	defer done()

	mock.ExpectBegin()
	expectDims(mock, "C2", "P2", "uncategorized", "purchase", "grocery", "low", 7, 3, 1)
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs("C2", "P2", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(7), int64(3), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	summary := r.Run(context.Background())

	assert.Equal(t, 2, summary.Extracted)
	assert.Equal(t, 1, summary.RejectedByReason[domain.ReasonBadDate])
	assert.Equal(t, 1, summary.Accepted)
	assert.Equal(t, 1, summary.Loaded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_EmptyExtraction(t *testing.T) {
	srv := newSourceServer(t, []map[string]interface{}{})
	defer srv.Close()

	r, mock, done := newRunner(t, srv.URL)
	defer done()

	summary := r.Run(context.Background())

	assert.Equal(t, 0, summary.Extracted)
	assert.Equal(t, 0, summary.Loaded)
	assert.Empty(t, summary.Errors)
	// The loader must never have touched the store.
	assert.NoError(t, mock.ExpectationsWereMet())
}

type panickyLoader struct{}

func (panickyLoader) Load(ctx context.Context, records []domain.CleanRecord) ([]store.ChunkResult, error) {
	panic("loader exploded")
}

// Component panics are captured in the summary; nothing escapes Run.
func TestRun_RecoversPanic(t *testing.T) {
	raw := []map[string]interface{}{
		{
			"customer_id": "C1", "product_id": "P1", "transaction_date": "2024-01-05",
			"transaction_amount": 75.00,
		},
	}
	srv := newSourceServer(t, raw)
	defer srv.Close()

	r, _, done := newRunner(t, srv.URL)
	defer done()
	r.Loader = panickyLoader{}

	summary := r.Run(context.Background())

	require.NotEmpty(t, summary.Errors)
	assert.Contains(t, summary.Errors[len(summary.Errors)-1], "panic")
}

func TestRun_InvalidBands(t *testing.T) {
	srv := newSourceServer(t, []map[string]interface{}{})
	defer srv.Close()

	r, _, done := newRunner(t, srv.URL)
	defer done()
	r.Bands = enrich.Bands{} // misconfigured partition

	summary := r.Run(context.Background())

	require.NotEmpty(t, summary.Errors)
	assert.Equal(t, 0, summary.Extracted)
}
