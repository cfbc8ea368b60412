package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/elys-network/rdm/internal/types"
)

// SaveCycleSummary persists a complete cycle summary and returns its row ID.
func SaveCycleSummary(ctx context.Context, summary *types.CycleSummary) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}
	if summary == nil {
		return 0, fmt.Errorf("nil cycle summary")
	}

	outcomesJSON, err := json.Marshal(summary.Outcomes)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal outcomes: %w", err)
	}

	query := `
		INSERT INTO cycle_summaries (
			cycle_id, cycle_number, epoch, started_at, finished_at,
			total_pool, total_distributed,
			succeeded, failed, skipped, compounds_succeeded, compounds_failed,
			tx_refs, outcomes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING summary_id;
	`

	var summaryID int64
	err = DB.QueryRowContext(ctx,
		query,
		summary.CycleID, summary.CycleNumber, summary.Epoch, summary.StartedAt, summary.FinishedAt,
		summary.TotalPool, summary.TotalDistributed,
		summary.Succeeded, summary.Failed, summary.Skipped, summary.CompoundsSucceeded, summary.CompoundsFailed,
		pq.Array(summary.TxRefs()), outcomesJSON,
	).Scan(&summaryID)
	if err != nil {
		return 0, fmt.Errorf("failed to save cycle summary: %w", err)
	}
	summary.SummaryID = summaryID

	log.Info().
		Int64("summary_id", summaryID).
		Str("cycle_id", summary.CycleID).
		Int("cycle_number", summary.CycleNumber).
		Float64("total_distributed", summary.TotalDistributed).
		Msg("Cycle summary saved to database")

	return summaryID, nil
}

// SummarySink adapts SaveCycleSummary and the cycle counter to the
// scheduler's collaborator interfaces.
type SummarySink struct{}

// SaveCycleSummary implements scheduler.ReportSink.
func (SummarySink) SaveCycleSummary(ctx context.Context, summary *types.CycleSummary) error {
	_, err := SaveCycleSummary(ctx, summary)
	return err
}

// NextCycleNumber implements scheduler.CycleCounter.
func (SummarySink) NextCycleNumber(ctx context.Context) (int, error) {
	return IncrementCycleNumber(ctx)
}
