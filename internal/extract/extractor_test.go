package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/transaction-etl/internal/logger"
)

type pageBody struct {
	Page int `json:"page"`
}

func testOptions(url string) Options {
	return Options{
		URL:          url,
		APIKey:       "test-key",
		StartDate:    "2023-01-01",
		EndDate:      "2023-01-31",
		PageSize:     2,
		MaxPages:     10,
		Retries:      1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
		Log:          logger.New(),
	}
}

func record(customer string) map[string]interface{} {
	return map[string]interface{}{"customer_id": customer}
}

func TestFetchAll_Paginates(t *testing.T) {
	pages := map[int][]map[string]interface{}{
		1: {record("C1"), record("C2")},
		2: {record("C3"), record("C4")},
		3: {record("C5")}, // short page ends the walk
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body pageBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(pages[body.Page])
	}))
	defer srv.Close()

	c := New(testOptions(srv.URL))
	records, failures := c.FetchAll(context.Background())

	if len(failures) != 0 {
		t.Fatalf("expected no failures, got %v", failures)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
	if records[4]["customer_id"] != "C5" {
		t.Errorf("unexpected last record: %v", records[4])
	}
}

func TestFetchAll_PageFailureIsolated(t *testing.T) {
	var mu sync.Mutex
	attempts := map[int]int{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body pageBody
		json.NewDecoder(r.Body).Decode(&body)

		mu.Lock()
		attempts[body.Page]++
		mu.Unlock()

		// Page 1 always fails; page 2 succeeds with a short page.
		if body.Page == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{record("C1")})
	}))
	defer srv.Close()

	c := New(testOptions(srv.URL))
	records, failures := c.FetchAll(context.Background())

	if len(failures) != 1 || failures[0].Page != 1 {
		t.Fatalf("expected page 1 failure, got %v", failures)
	}
	if len(records) != 1 {
		t.Fatalf("failed page must not affect other pages; got %d records", len(records))
	}

	mu.Lock()
	defer mu.Unlock()
	// One initial attempt plus the configured single retry.
	if attempts[1] != 2 {
		t.Errorf("page 1 attempts = %d, want 2", attempts[1])
	}
	if attempts[2] != 1 {
		t.Errorf("page 2 attempts = %d, want 1", attempts[2])
	}
}

func TestFetchAll_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "an array"}`))
	}))
	defer srv.Close()

	c := New(testOptions(srv.URL))
	records, failures := c.FetchAll(context.Background())

	if len(records) != 0 {
		t.Errorf("expected no records from malformed page, got %d", len(records))
	}
	if len(failures) == 0 {
		t.Error("expected a page failure for malformed response")
	}
}

func TestFetchAll_MaxPagesBound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Always a full page: without the bound this would never stop.
		json.NewEncoder(w).Encode([]map[string]interface{}{record("C1"), record("C2")})
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.MaxPages = 3
	c := New(opts)

	records, failures := c.FetchAll(context.Background())
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(records) != 6 {
		t.Errorf("expected 3 pages * 2 records, got %d", len(records))
	}
}
