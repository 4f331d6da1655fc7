package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CustomerTotals is the per-customer rollup computed during enrichment.
// It feeds reporting only; the fact table plus the standing
// customer_transaction_totals view answer the same question in SQL.
type CustomerTotals struct {
	TransactionCount int
	TotalAmount      decimal.Decimal
}

// RunSummary is the outcome of a single pipeline run. Every record extracted
// from the source is accounted for in exactly one of its counters, and every
// component failure is captured in Errors rather than escaping the run.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	Elapsed   time.Duration

	Extracted   int
	FailedPages []PageFailure

	// Accepted counts records that passed validation, including later
	// duplicates that were then dropped from the fact stream.
	Accepted         int
	Duplicates       int
	RejectedByReason map[RejectReason]int

	Loaded        int
	FailedBatches int
	FailedRecords int

	CustomerTotals map[string]CustomerTotals

	Errors []string
}

func NewRunSummary() *RunSummary {
	return &RunSummary{
		RunID:            uuid.NewString(),
		StartedAt:        time.Now(),
		RejectedByReason: make(map[RejectReason]int),
		CustomerTotals:   make(map[string]CustomerTotals),
	}
}

// Rejected returns the total rejection count across all reasons.
func (s *RunSummary) Rejected() int {
	n := 0
	for _, c := range s.RejectedByReason {
		n += c
	}
	return n
}

func (s *RunSummary) AddError(err error) {
	if err != nil {
		s.Errors = append(s.Errors, err.Error())
	}
}
