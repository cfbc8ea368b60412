package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/elys-network/rdm/internal/logger"
	"github.com/elys-network/rdm/internal/types"
)

// Per-holder error kinds. Neither aborts the cycle.
var (
	ErrSubmissionFailure = errors.New("claim submission failed")
	ErrCompoundFailure   = errors.New("compound submission failed")
	ErrNilCollaborator   = errors.New("settlement collaborator is nil")
)

// ledgerWriteTimeout bounds a ledger write once it is detached from the
// cycle context.
const ledgerWriteTimeout = 10 * time.Second

// Policy controls which allocations get submitted and how.
type Policy struct {
	// MaxAttempts skips holders that already failed this many times in the
	// current epoch. Zero retries on every cycle.
	MaxAttempts int
	// SkipZeroRewards avoids submitting empty claims.
	SkipZeroRewards bool
	// CompoundTiers are auto-compounded after a successful claim.
	CompoundTiers []types.Tier
	// Concurrency bounds parallel holder processing. 1 or less is sequential.
	Concurrency int
}

// DefaultPolicy retries failed claims every cycle and compounds Platinum only.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     0,
		SkipZeroRewards: true,
		CompoundTiers:   []types.Tier{types.TierPlatinum},
		Concurrency:     1,
	}
}

// Result is the ordered settlement of one distribution.
type Result struct {
	Outcomes           []types.ClaimOutcome
	Succeeded          int
	Failed             int
	Skipped            int // Includes Exhausted
	Exhausted          int
	CompoundsSucceeded int
	CompoundsFailed    int
	TotalDistributed   float64
}

// Engine drives every allocated reward through claim and optional compound.
type Engine struct {
	claims    ClaimSubmitter
	compounds CompoundSubmitter
	ledger    ClaimLedger
	policy    Policy
	logger    zerolog.Logger
}

// NewEngine wires the engine to its external collaborators.
func NewEngine(claims ClaimSubmitter, compounds CompoundSubmitter, ledger ClaimLedger, policy Policy) (*Engine, error) {
	if claims == nil {
		return nil, fmt.Errorf("%w: claim submitter", ErrNilCollaborator)
	}
	if compounds == nil {
		return nil, fmt.Errorf("%w: compound submitter", ErrNilCollaborator)
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: claim ledger", ErrNilCollaborator)
	}
	if policy.MaxAttempts < 0 {
		return nil, fmt.Errorf("max attempts cannot be negative: %d", policy.MaxAttempts)
	}
	return &Engine{
		claims:    claims,
		compounds: compounds,
		ledger:    ledger,
		policy:    policy,
		logger:    logger.GetForComponent("settlement"),
	}, nil
}

type slotState int

const (
	slotSkipped slotState = iota
	slotExhausted
	slotProcessed
)

type slot struct {
	state   slotState
	outcome types.ClaimOutcome
}

// Settle processes every unclaimed allocation of dist. Outcomes come back in
// snapshot order regardless of Concurrency.
func (e *Engine) Settle(ctx context.Context, dist *types.WeeklyDistribution) Result {
	slots := make([]slot, len(dist.Rewards))

	if e.policy.Concurrency <= 1 {
		for i, alloc := range dist.Rewards {
			slots[i] = e.settleOne(ctx, alloc)
		}
	} else {
		eg := errgroup.Group{}
		eg.SetLimit(e.policy.Concurrency)
		for i := range dist.Rewards {
			index := i
			eg.Go(func() error {
				slots[index] = e.settleOne(ctx, dist.Rewards[index])
				return nil
			})
		}
		_ = eg.Wait()
	}

	res := Result{Outcomes: make([]types.ClaimOutcome, 0, len(slots))}
	for _, s := range slots {
		switch s.state {
		case slotSkipped:
			res.Skipped++
			continue
		case slotExhausted:
			res.Skipped++
			res.Exhausted++
			continue
		}
		o := s.outcome
		res.Outcomes = append(res.Outcomes, o)
		if !o.Success {
			res.Failed++
			continue
		}
		res.Succeeded++
		res.TotalDistributed += o.Amount
		if o.Compound != nil {
			if o.Compound.Success {
				res.CompoundsSucceeded++
			} else {
				res.CompoundsFailed++
			}
		}
	}
	return res
}

func (e *Engine) settleOne(ctx context.Context, alloc types.AllocatedReward) slot {
	h := alloc.Holder
	log := e.logger.With().Str("wallet", h.Wallet).Str("tier", string(h.Tier)).Logger()

	if h.Claimed {
		log.Debug().Msg("Already claimed this epoch, skipping")
		return slot{state: slotSkipped}
	}
	if e.policy.MaxAttempts > 0 && h.FailedAttempts >= e.policy.MaxAttempts {
		log.Warn().Int("failedAttempts", h.FailedAttempts).Msg("Claim retries exhausted for this epoch, skipping")
		return slot{state: slotExhausted}
	}
	if e.policy.SkipZeroRewards && alloc.Reward <= 0 {
		log.Debug().Msg("Zero reward, skipping")
		return slot{state: slotSkipped}
	}

	outcome := types.ClaimOutcome{Wallet: h.Wallet, Tier: h.Tier, Amount: alloc.Reward}

	receipt, err := e.submitClaim(ctx, h.Wallet, alloc.Reward)
	if err != nil {
		outcome.Error = err.Error()
		log.Error().Err(err).Float64("amount", alloc.Reward).Msg("Claim failed")
		if lerr := e.recordFailure(ctx, h.Wallet, err.Error()); lerr != nil {
			outcome.LedgerError = lerr.Error()
			log.Error().Err(lerr).Msg("Failed to record claim failure")
		}
		return slot{state: slotProcessed, outcome: outcome}
	}

	outcome.Success = true
	outcome.TxRef = receipt.TxRef
	log.Info().Str("txRef", receipt.TxRef).Float64("amount", alloc.Reward).Msg("Claim processed")

	if lerr := e.markClaimed(ctx, h.Wallet, alloc.Reward, receipt.TxRef); lerr != nil {
		outcome.LedgerError = lerr.Error()
		log.Error().Err(lerr).Str("txRef", receipt.TxRef).Msg("Claim paid but claimed flag not recorded")
	}

	if e.compoundsTier(h.Tier) {
		compound := &types.CompoundOutcome{Success: true}
		if err := e.submitCompound(ctx, h.Wallet, alloc.Reward); err != nil {
			compound.Success = false
			compound.Error = err.Error()
			log.Error().Err(err).Msg("Auto-compound failed")
		} else {
			log.Info().Float64("amount", alloc.Reward).Msg("Auto-compounded into staking")
		}
		outcome.Compound = compound
	}

	return slot{state: slotProcessed, outcome: outcome}
}

func (e *Engine) submitClaim(ctx context.Context, wallet string, amount float64) (receipt ClaimReceipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrSubmissionFailure, r)
		}
	}()
	receipt, err = e.claims.SubmitClaim(ctx, wallet, amount)
	if err != nil {
		return ClaimReceipt{}, fmt.Errorf("%w: %w", ErrSubmissionFailure, err)
	}
	return receipt, nil
}

func (e *Engine) submitCompound(ctx context.Context, wallet string, amount float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrCompoundFailure, r)
		}
	}()
	if err := e.compounds.SubmitCompound(ctx, wallet, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrCompoundFailure, err)
	}
	return nil
}

// markClaimed records a paid claim even when ctx was cancelled after the
// payout, otherwise the next snapshot would show the holder unclaimed.
func (e *Engine) markClaimed(ctx context.Context, wallet string, amount float64, txRef string) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ledger panic: %v", r)
		}
	}()
	return e.ledger.MarkClaimed(ctx, wallet, amount, txRef)
}

func (e *Engine) recordFailure(ctx context.Context, wallet, reason string) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ledger panic: %v", r)
		}
	}()
	return e.ledger.RecordFailure(ctx, wallet, reason)
}

func (e *Engine) compoundsTier(tier types.Tier) bool {
	for _, t := range e.policy.CompoundTiers {
		if t == tier {
			return true
		}
	}
	return false
}
