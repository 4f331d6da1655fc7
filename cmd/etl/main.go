package main

import (
	"context"
	"flag"
	"time"

	"github.com/dvloznov/transaction-etl/internal/clean"
	"github.com/dvloznov/transaction-etl/internal/config"
	"github.com/dvloznov/transaction-etl/internal/enrich"
	"github.com/dvloznov/transaction-etl/internal/extract"
	"github.com/dvloznov/transaction-etl/internal/logger"
	"github.com/dvloznov/transaction-etl/internal/pipeline"
	"github.com/dvloznov/transaction-etl/internal/store"
)

func main() {
	log := logger.New()

	startDate := flag.String("start", "", "Override ETL_START_DATE (YYYY-MM-DD)")
	endDate := flag.String("end", "", "Override ETL_END_DATE (YYYY-MM-DD)")
	timeout := flag.Duration("timeout", 30*time.Minute, "Overall run timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration error")
	}
	if *startDate != "" {
		cfg.StartDate = *startDate
	}
	if *endDate != "" {
		cfg.EndDate = *endDate
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	db, err := store.Open(ctx, cfg.DB.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot reach the store")
	}
	defer db.Close()

	bands := enrich.DefaultBands()
	runner := &pipeline.Runner{
		Extractor: extract.New(extract.Options{
			URL:       cfg.APIURL,
			APIKey:    cfg.APIKey,
			StartDate: cfg.StartDate,
			EndDate:   cfg.EndDate,
			PageSize:  cfg.PageSize,
			MaxPages:  cfg.MaxPages,
			Retries:   cfg.FetchRetries,
			Log:       log,
		}),
		Cleaner: clean.New(),
		Bands:   bands,
		Loader:  store.NewLoader(db, bands, cfg.BatchSize, log),
		Log:     log,
	}

	log.Info().
		Str("start_date", cfg.StartDate).
		Str("end_date", cfg.EndDate).
		Msg("Starting pipeline run")

	summary := runner.Run(ctx)

	for reason, count := range summary.RejectedByReason {
		log.Info().Str("reason", string(reason)).Int("count", count).Msg("Rejections")
	}
	for _, e := range summary.Errors {
		log.Warn().Str("error", e).Msg("Run error")
	}

	// Post-run reporting: per-customer rollups plus the standing view.
	for customer, totals := range summary.CustomerTotals {
		log.Debug().
			Str("customer_id", customer).
			Int("transactions", totals.TransactionCount).
			Str("total_amount", totals.TotalAmount.StringFixed(2)).
			Msg("Customer totals")
	}
	if rows, err := store.CustomerTransactionTotals(ctx, db); err != nil {
		log.Warn().Err(err).Msg("Could not read customer_transaction_totals view")
	} else {
		log.Info().Int("customers", len(rows)).Msg("Store-side customer totals refreshed")
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("extracted", summary.Extracted).
		Int("accepted", summary.Accepted).
		Int("rejected", summary.Rejected()).
		Int("duplicates", summary.Duplicates).
		Int("loaded", summary.Loaded).
		Int("failed_batches", summary.FailedBatches).
		Dur("elapsed", summary.Elapsed).
		Msg("Run complete")
}
