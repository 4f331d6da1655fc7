package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/dvloznov/transaction-etl/internal/domain"
)

// Options configures a source API client.
type Options struct {
	URL       string
	APIKey    string
	StartDate string
	EndDate   string

	PageSize int
	MaxPages int

	// Retries is the number of additional attempts per page after the first
	// one fails. Failures beyond that skip the page, not the run.
	Retries int

	// RetryWaitMin/Max bound the delay between attempts. Zero values fall
	// back to short defaults.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	Log zerolog.Logger
}

// Client fetches raw transaction pages from the source API.
type Client struct {
	http *retryablehttp.Client
	opts Options
}

// pageRequest is the JSON body the source API expects.
type pageRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Page      int    `json:"page"`
	PageSize  int    `json:"page_size"`
}

func New(opts Options) *Client {
	if opts.RetryWaitMin == 0 {
		opts.RetryWaitMin = 250 * time.Millisecond
	}
	if opts.RetryWaitMax == 0 {
		opts.RetryWaitMax = 2 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.Retries
	rc.RetryWaitMin = opts.RetryWaitMin
	rc.RetryWaitMax = opts.RetryWaitMax
	rc.Logger = nil

	return &Client{http: rc, opts: opts}
}

// FetchAll walks the source pages in order until a short page, an empty page,
// or MaxPages. A page that fails even after retries is recorded as a
// PageFailure and skipped; its records are simply absent, records from other
// pages are unaffected.
func (c *Client) FetchAll(ctx context.Context) ([]domain.RawRecord, []domain.PageFailure) {
	var records []domain.RawRecord
	var failures []domain.PageFailure

	for page := 1; page <= c.opts.MaxPages; page++ {
		recs, err := c.fetchPage(ctx, page)
		if err != nil {
			c.opts.Log.Warn().Int("page", page).Err(err).Msg("page fetch failed, skipping")
			failures = append(failures, domain.PageFailure{Page: page, Err: err})
			if ctx.Err() != nil {
				break
			}
			continue
		}

		records = append(records, recs...)
		if len(recs) < c.opts.PageSize {
			break
		}
	}

	return records, failures
}

// fetchPage POSTs the date-range request for one page. Transport-level errors
// and retryable status codes are retried internally by the HTTP client with a
// short delay, up to the configured bound.
func (c *Client) fetchPage(ctx context.Context, page int) ([]domain.RawRecord, error) {
	body, err := json.Marshal(pageRequest{
		StartDate: c.opts.StartDate,
		EndDate:   c.opts.EndDate,
		Page:      page,
		PageSize:  c.opts.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fetchPage: marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fetchPage: build request: %w", err)
	}
	req.Header.Set("x-api-key", c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetchPage: page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetchPage: page %d: unexpected status %d", page, resp.StatusCode)
	}

	var recs []domain.RawRecord
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		return nil, fmt.Errorf("fetchPage: page %d: decode response: %w", page, err)
	}

	return recs, nil
}
