package distributor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/rdm/internal/allocator"
	"github.com/elys-network/rdm/internal/logger"
	"github.com/elys-network/rdm/internal/metrics"
	"github.com/elys-network/rdm/internal/settlement"
	"github.com/elys-network/rdm/internal/types"
)

// Settler turns an allocation plan into claim outcomes.
type Settler interface {
	Settle(ctx context.Context, dist *types.WeeklyDistribution) settlement.Result
}

// Config holds the configuration for creating a new Distributor.
type Config struct {
	Settler    Settler
	Allocation allocator.Options
	Metrics    *metrics.Metrics // Optional
	Now        func() time.Time // Optional, defaults to time.Now
}

// CycleRequest is the input of a single cycle.
type CycleRequest struct {
	Pool        float64
	Holders     []types.HolderRecord
	CycleNumber int    // Informational, stamped on the summary
	Epoch       string // Informational, stamped on the summary
}

// Distributor runs allocation followed by settlement. It keeps no state
// between cycles; callers must not run overlapping cycles on the same holders.
type Distributor struct {
	logger     zerolog.Logger
	settler    Settler
	allocation allocator.Options
	metrics    *metrics.Metrics
	now        func() time.Time
}

// New creates a Distributor from an explicit configuration value.
func New(cfg Config) (*Distributor, error) {
	if cfg.Settler == nil {
		return nil, fmt.Errorf("settler cannot be nil")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	alloc := cfg.Allocation
	if alloc.Now == nil {
		alloc.Now = now
	}
	return &Distributor{
		logger:     logger.GetForComponent("distributor"),
		settler:    cfg.Settler,
		allocation: alloc,
		metrics:    cfg.Metrics,
		now:        now,
	}, nil
}

// RunCycle executes one complete distribution cycle. Invalid input is rejected
// before anything is submitted and yields no summary.
func (d *Distributor) RunCycle(ctx context.Context, req CycleRequest) (*types.CycleSummary, error) {
	startedAt := d.now().UTC()
	cycleID := uuid.New().String()
	cycleLogger := d.logger.With().Str("cycle_id", cycleID).Int("cycle", req.CycleNumber).Logger()

	cycleLogger.Info().Float64("pool", req.Pool).Int("holders", len(req.Holders)).Msg("--- Starting Distribution Cycle ---")

	if err := allocator.ValidateCycleInputs(req.Pool, req.Holders); err != nil {
		d.metrics.ObserveCycle("rejected")
		cycleLogger.Error().Err(err).Msg("Cycle rejected before allocation")
		return nil, err
	}

	// --- Step 1: Allocation ---
	dist, err := allocator.Allocate(req.Pool, req.Holders, d.allocation)
	if err != nil {
		d.metrics.ObserveCycle("rejected")
		cycleLogger.Error().Err(err).Msg("Cycle aborted: allocation failed")
		return nil, err
	}
	logDistribution(cycleLogger, dist)

	// --- Step 2: Settlement ---
	cycleLogger.Info().Msg("Processing claims...")
	res := d.settler.Settle(ctx, dist)

	summary := &types.CycleSummary{
		CycleID:            cycleID,
		CycleNumber:        req.CycleNumber,
		Epoch:              req.Epoch,
		StartedAt:          startedAt,
		FinishedAt:         d.now().UTC(),
		TotalPool:          dist.TotalPool,
		TotalDistributed:   res.TotalDistributed,
		Succeeded:          res.Succeeded,
		Failed:             res.Failed,
		Skipped:            res.Skipped,
		CompoundsSucceeded: res.CompoundsSucceeded,
		CompoundsFailed:    res.CompoundsFailed,
		Outcomes:           res.Outcomes,
	}
	d.metrics.ObserveSummary(summary)

	cycleLogger.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Int("exhausted", res.Exhausted).
		Float64("distributed", summary.TotalDistributed).
		Str("cycleDuration", summary.FinishedAt.Sub(startedAt).String()).
		Msg("--- Distribution Cycle Completed ---")

	return summary, nil
}

func logDistribution(l zerolog.Logger, dist *types.WeeklyDistribution) {
	for _, r := range dist.Rewards {
		l.Info().
			Str("wallet", r.Holder.Wallet).
			Str("tier", string(r.Holder.Tier)).
			Bool("claimed", r.Holder.Claimed).
			Float64("reward", r.Reward).
			Msg("Allocated reward")
	}
	l.Info().Float64("totalPool", dist.TotalPool).Float64("totalAllocated", dist.TotalAllocated()).Msg("Weekly reward distribution planned")
}
