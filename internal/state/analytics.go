package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/rdm/internal/types"
)

var ErrSummaryNotFound = errors.New("cycle summary not found")

// PerformanceMetrics represents aggregated distribution data across cycles.
type PerformanceMetrics struct {
	TotalCycles          int     `json:"total_cycles"`
	TotalPool            float64 `json:"total_pool"`
	TotalDistributed     float64 `json:"total_distributed"`
	TotalSucceeded       int     `json:"total_succeeded"`
	TotalFailed          int     `json:"total_failed"`
	TotalCompoundsFailed int     `json:"total_compounds_failed"`
	CyclesWithFailures   int     `json:"cycles_with_failures"`
	DistributionRatioPct float64 `json:"distribution_ratio_percent"`
}

// EpochClaim is one row of the claim ledger.
type EpochClaim struct {
	Epoch          string   `json:"epoch"`
	Wallet         string   `json:"wallet"`
	Claimed        bool     `json:"claimed"`
	Amount         *float64 `json:"amount,omitempty"`
	TxRef          string   `json:"tx_ref,omitempty"`
	FailedAttempts int      `json:"failed_attempts"`
	LastError      string   `json:"last_error,omitempty"`
}

const summaryColumns = `
	summary_id, cycle_id, cycle_number, epoch, started_at, finished_at,
	total_pool, total_distributed,
	succeeded, failed, skipped, compounds_succeeded, compounds_failed,
	tx_refs, outcomes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (*types.CycleSummary, error) {
	var s types.CycleSummary
	var txRefs []string
	var outcomesJSON []byte

	err := row.Scan(
		&s.SummaryID, &s.CycleID, &s.CycleNumber, &s.Epoch, &s.StartedAt, &s.FinishedAt,
		&s.TotalPool, &s.TotalDistributed,
		&s.Succeeded, &s.Failed, &s.Skipped, &s.CompoundsSucceeded, &s.CompoundsFailed,
		pq.Array(&txRefs), &outcomesJSON,
	)
	if err != nil {
		return nil, err
	}
	if len(outcomesJSON) > 0 {
		if err := json.Unmarshal(outcomesJSON, &s.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outcomes: %w", err)
		}
	}
	return &s, nil
}

// GetRecentSummaries retrieves the most recent cycle summaries.
func GetRecentSummaries(ctx context.Context, limit int) ([]types.CycleSummary, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	query := `SELECT ` + summaryColumns + `
		FROM cycle_summaries
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := DB.QueryContext(ctx, query, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent cycle summaries")
		return nil, fmt.Errorf("failed to query recent cycle summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]types.CycleSummary, 0, limit)
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan cycle summary row")
			continue
		}
		summaries = append(summaries, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(summaries)).Int("limit", limit).Msg("Retrieved recent cycle summaries")
	return summaries, nil
}

// GetSummaryByID retrieves a cycle summary by its row ID.
func GetSummaryByID(ctx context.Context, summaryID int64) (*types.CycleSummary, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `SELECT ` + summaryColumns + `
		FROM cycle_summaries
		WHERE summary_id = $1`

	s, err := scanSummary(DB.QueryRowContext(ctx, query, summaryID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrSummaryNotFound, summaryID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle summary %d: %w", summaryID, err)
	}
	return s, nil
}

// GetPerformanceMetrics aggregates all persisted cycle summaries.
func GetPerformanceMetrics(ctx context.Context) (*PerformanceMetrics, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(total_pool), 0),
			COALESCE(SUM(total_distributed), 0),
			COALESCE(SUM(succeeded), 0),
			COALESCE(SUM(failed), 0),
			COALESCE(SUM(compounds_failed), 0),
			COUNT(CASE WHEN failed > 0 THEN 1 END)
		FROM cycle_summaries
	`

	m := &PerformanceMetrics{}
	err := DB.QueryRowContext(ctx, query).Scan(
		&m.TotalCycles,
		&m.TotalPool,
		&m.TotalDistributed,
		&m.TotalSucceeded,
		&m.TotalFailed,
		&m.TotalCompoundsFailed,
		&m.CyclesWithFailures,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get performance metrics: %w", err)
	}
	if m.TotalPool > 0 {
		m.DistributionRatioPct = m.TotalDistributed / m.TotalPool * 100
	}
	return m, nil
}

// GetEpochClaims lists the ledger rows of one epoch.
func GetEpochClaims(ctx context.Context, epoch string) ([]EpochClaim, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	rows, err := DB.QueryContext(ctx, `
		SELECT epoch, wallet, claimed, amount, COALESCE(tx_ref, ''), failed_attempts, COALESCE(last_error, '')
		FROM reward_claims
		WHERE epoch = $1
		ORDER BY wallet ASC`, epoch)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims for %s: %w", epoch, err)
	}
	defer rows.Close()

	claims := make([]EpochClaim, 0)
	for rows.Next() {
		var c EpochClaim
		var amount sql.NullFloat64
		if err := rows.Scan(&c.Epoch, &c.Wallet, &c.Claimed, &amount, &c.TxRef, &c.FailedAttempts, &c.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan claim row: %w", err)
		}
		if amount.Valid {
			v := amount.Float64
			c.Amount = &v
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return claims, nil
}
