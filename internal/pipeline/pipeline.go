package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/transaction-etl/internal/clean"
	"github.com/dvloznov/transaction-etl/internal/domain"
	"github.com/dvloznov/transaction-etl/internal/enrich"
	"github.com/dvloznov/transaction-etl/internal/store"
)

// Extractor pulls raw transaction pages from the remote source.
type Extractor interface {
	FetchAll(ctx context.Context) ([]domain.RawRecord, []domain.PageFailure)
}

// Cleaner partitions a raw batch into accepted and rejected records.
type Cleaner interface {
	Clean(records []domain.RawRecord) clean.Result
}

// Loader writes enriched records to the fact table in chunked transactions.
type Loader interface {
	Load(ctx context.Context, records []domain.CleanRecord) ([]store.ChunkResult, error)
}

// Runner drives one extract, clean, enrich, load cycle and accumulates the
// run summary. Data flows strictly forward; no stage reaches back into an
// earlier one.
type Runner struct {
	Extractor Extractor
	Cleaner   Cleaner
	Bands     enrich.Bands
	Loader    Loader
	Log       zerolog.Logger
}

// Run executes the pipeline. It always returns a summary: component failures
// are folded into the summary's error list, and a panic in any stage is
// recovered into it rather than escaping.
func (r *Runner) Run(ctx context.Context) (summary *domain.RunSummary) {
	summary = domain.NewRunSummary()
	log := r.Log.With().Str("run_id", summary.RunID).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			summary.AddError(fmt.Errorf("Run: panic: %v", rec))
			log.Error().Interface("panic", rec).Msg("pipeline panicked")
		}
		summary.Elapsed = time.Since(summary.StartedAt)
		log.Info().
			Int("extracted", summary.Extracted).
			Int("accepted", summary.Accepted).
			Int("rejected", summary.Rejected()).
			Int("duplicates", summary.Duplicates).
			Int("loaded", summary.Loaded).
			Int("failed_batches", summary.FailedBatches).
			Dur("elapsed", summary.Elapsed).
			Msg("run finished")
	}()

	if err := r.Bands.Validate(); err != nil {
		summary.AddError(fmt.Errorf("Run: %w", err))
		return summary
	}

	// Extract.
	raw, pageFailures := r.Extractor.FetchAll(ctx)
	summary.Extracted = len(raw)
	summary.FailedPages = pageFailures
	for _, pf := range pageFailures {
		summary.AddError(fmt.Errorf("Run: page %d: %w", pf.Page, pf.Err))
	}
	log.Info().Int("records", len(raw)).Int("failed_pages", len(pageFailures)).Msg("extraction finished")
	if len(raw) == 0 {
		return summary
	}

	// Clean.
	res := r.Cleaner.Clean(raw)
	summary.Accepted = len(res.Accepted) + res.Duplicates
	summary.Duplicates = res.Duplicates
	for _, rej := range res.Rejected {
		summary.RejectedByReason[rej.Reason]++
	}
	log.Info().
		Int("accepted", summary.Accepted).
		Int("rejected", len(res.Rejected)).
		Int("duplicates", res.Duplicates).
		Msg("cleaning finished")

	// Enrich.
	enriched, err := enrich.Categorize(r.Bands, res.Accepted)
	if err != nil {
		summary.AddError(fmt.Errorf("Run: %w", err))
		return summary
	}
	summary.CustomerTotals = enrich.Aggregate(enriched)
	if len(enriched) == 0 {
		return summary
	}

	// Load.
	chunks, err := r.Loader.Load(ctx, enriched)
	for _, c := range chunks {
		summary.Loaded += c.Loaded
		if c.Err != nil {
			summary.FailedBatches++
			summary.FailedRecords += c.Attempted
			summary.AddError(fmt.Errorf("Run: chunk %d: %w", c.Chunk, c.Err))
		}
	}
	if err != nil {
		// Connectivity loss: chunks past the failure were never attempted.
		summary.AddError(fmt.Errorf("Run: %w", err))
	}

	return summary
}
