package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/elys-network/rdm/internal/distributor"
	"github.com/elys-network/rdm/internal/logger"
	"github.com/elys-network/rdm/internal/metrics"
	"github.com/elys-network/rdm/internal/types"
)

var (
	ErrSnapshotUnavailable = errors.New("holder snapshot unavailable")
	ErrTreasuryUnavailable = errors.New("treasury balance unavailable")
	ErrTreasuryGated       = errors.New("treasury balance too low for distribution")
	ErrReportFailed        = errors.New("failed to persist cycle summary")
)

// TreasuryReader reports the distributable treasury balance in tokens.
type TreasuryReader interface {
	GetTreasuryBalance(ctx context.Context) (float64, error)
}

// SnapshotProvider returns the holders for the epoch pinned on ctx.
type SnapshotProvider interface {
	FetchHolders(ctx context.Context) ([]types.HolderRecord, error)
}

// CycleCounter hands out increasing cycle numbers.
type CycleCounter interface {
	NextCycleNumber(ctx context.Context) (int, error)
}

// ReportSink persists cycle summaries.
type ReportSink interface {
	SaveCycleSummary(ctx context.Context, summary *types.CycleSummary) error
}

// CycleRunner is implemented by *distributor.Distributor.
type CycleRunner interface {
	RunCycle(ctx context.Context, req distributor.CycleRequest) (*types.CycleSummary, error)
}

// Config holds the collaborators and gating parameters of the scheduler.
type Config struct {
	Treasury TreasuryReader
	Snapshot SnapshotProvider
	Runner   CycleRunner
	Counter  CycleCounter // Optional, defaults to an in-process counter
	Sink     ReportSink   // Optional, summaries are only logged without it

	RewardPool         float64
	MinTreasuryBalance float64

	Metrics *metrics.Metrics // Optional
	Now     func() time.Time // Optional, defaults to time.Now
}

// Scheduler drives distribution cycles. Ticks are serialized by the loop;
// Tick itself must not be called concurrently.
type Scheduler struct {
	logger     zerolog.Logger
	treasury   TreasuryReader
	snapshot   SnapshotProvider
	runner     CycleRunner
	counter    CycleCounter
	sink       ReportSink
	pool       float64
	minBalance float64
	metrics    *metrics.Metrics
	now        func() time.Time

	localCycle int
}

// New creates a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid scheduler configuration: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		logger:     logger.GetForComponent("scheduler"),
		treasury:   cfg.Treasury,
		snapshot:   cfg.Snapshot,
		runner:     cfg.Runner,
		counter:    cfg.Counter,
		sink:       cfg.Sink,
		pool:       cfg.RewardPool,
		minBalance: cfg.MinTreasuryBalance,
		metrics:    cfg.Metrics,
		now:        now,
	}, nil
}

func validateConfig(cfg Config) error {
	if cfg.Treasury == nil {
		return fmt.Errorf("treasury reader cannot be nil")
	}
	if cfg.Snapshot == nil {
		return fmt.Errorf("snapshot provider cannot be nil")
	}
	if cfg.Runner == nil {
		return fmt.Errorf("cycle runner cannot be nil")
	}
	if cfg.RewardPool <= 0 {
		return fmt.Errorf("reward pool must be positive, got %f", cfg.RewardPool)
	}
	if cfg.MinTreasuryBalance < 0 {
		return fmt.Errorf("minimum treasury balance cannot be negative, got %f", cfg.MinTreasuryBalance)
	}
	return nil
}

// RunLoop runs a tick immediately and then once per interval until ctx is
// cancelled. Tick errors are logged and never stop the loop.
func (s *Scheduler) RunLoop(ctx context.Context, interval time.Duration) {
	s.logger.Info().
		Dur("interval", interval).
		Float64("pool", s.pool).
		Msg("Starting distribution loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Distribution loop stopped due to context cancellation")
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	_, err := s.Tick(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrTreasuryGated):
		s.logger.Info().Err(err).Msg("Distribution skipped")
	case ctx.Err() != nil:
		s.logger.Warn().Err(err).Msg("Tick interrupted by shutdown")
	default:
		s.logger.Error().Err(err).Msg("Distribution tick failed")
	}
}

// Tick performs one gated distribution cycle. It returns ErrTreasuryGated
// without touching holders when the treasury cannot fund the pool. When the
// summary cannot be persisted both the summary and ErrReportFailed are
// returned, since the cycle itself has already settled.
func (s *Scheduler) Tick(ctx context.Context) (*types.CycleSummary, error) {
	epoch := types.EpochOf(s.now())
	ctx = types.WithEpoch(ctx, epoch)
	tickLogger := s.logger.With().Str("epoch", epoch).Logger()

	balance, err := s.treasury.GetTreasuryBalance(ctx)
	if err != nil {
		s.metrics.ObserveCycle("error")
		return nil, fmt.Errorf("%w: %w", ErrTreasuryUnavailable, err)
	}
	s.metrics.ObserveTreasury(balance)
	tickLogger.Info().Float64("treasuryBalance", balance).Msg("Treasury balance fetched")

	if balance < s.minBalance {
		s.metrics.ObserveCycle("gated")
		return nil, fmt.Errorf("%w: balance %f below minimum %f", ErrTreasuryGated, balance, s.minBalance)
	}
	if balance < s.pool {
		s.metrics.ObserveCycle("gated")
		return nil, fmt.Errorf("%w: balance %f cannot fund pool %f", ErrTreasuryGated, balance, s.pool)
	}

	holders, err := s.snapshot.FetchHolders(ctx)
	if err != nil {
		s.metrics.ObserveCycle("error")
		return nil, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}

	cycleNumber, err := s.nextCycleNumber(ctx)
	if err != nil {
		s.metrics.ObserveCycle("error")
		return nil, err
	}

	summary, err := s.runner.RunCycle(ctx, distributor.CycleRequest{
		Pool:        s.pool,
		Holders:     holders,
		CycleNumber: cycleNumber,
		Epoch:       epoch,
	})
	if err != nil {
		return nil, fmt.Errorf("cycle %d failed: %w", cycleNumber, err)
	}

	if s.sink == nil {
		return summary, nil
	}
	if err := s.sink.SaveCycleSummary(ctx, summary); err != nil {
		tickLogger.Error().Err(err).Str("cycle_id", summary.CycleID).Msg("Failed to save cycle summary")
		return summary, fmt.Errorf("%w: %w", ErrReportFailed, err)
	}
	return summary, nil
}

func (s *Scheduler) nextCycleNumber(ctx context.Context) (int, error) {
	if s.counter == nil {
		s.localCycle++
		return s.localCycle, nil
	}
	n, err := s.counter.NextCycleNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to increment cycle counter: %w", err)
	}
	return n, nil
}
