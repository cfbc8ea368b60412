package allocator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/elys-network/rdm/internal/types"
)

// Error definitions for the allocation step. All of them are fatal to a cycle.
var (
	ErrNoHolders      = errors.New("no holders in snapshot")
	ErrInvalidPool    = errors.New("reward pool is invalid")
	ErrInvalidBalance = errors.New("holder balance is invalid")
	ErrZeroWeight     = errors.New("total allocation weight is zero")
)

// Options tunes how weights are derived from a holder record.
type Options struct {
	// WeightByBalance multiplies the tier weight by the holder's token balance.
	// Off by default: tier alone decides the share.
	WeightByBalance bool
	// Now stamps the distribution. Defaults to time.Now.
	Now func() time.Time
}

// Allocate splits pool across holders proportionally to their weight and
// returns the plan in snapshot order. A zero or negative pool yields a zero
// reward for everybody.
func Allocate(pool float64, holders []types.HolderRecord, opts Options) (*types.WeeklyDistribution, error) {
	if math.IsNaN(pool) || math.IsInf(pool, 0) {
		return nil, fmt.Errorf("%w: %v is not finite", ErrInvalidPool, pool)
	}
	if len(holders) == 0 {
		return nil, ErrNoHolders
	}

	weights, total, err := holderWeights(holders, opts.WeightByBalance)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	dist := &types.WeeklyDistribution{
		TotalPool: pool,
		Rewards:   make([]types.AllocatedReward, len(holders)),
		CreatedAt: now().UTC(),
	}
	for i, h := range holders {
		reward := 0.0
		if pool > 0 {
			reward = pool * weights[i] / total
		}
		dist.Rewards[i] = types.AllocatedReward{Holder: h, Reward: reward}
	}
	return dist, nil
}

// ValidateCycleInputs applies the stricter checks a distribution cycle needs
// before anything is allocated or submitted: a positive finite pool and at
// least one holder.
func ValidateCycleInputs(pool float64, holders []types.HolderRecord) error {
	if len(holders) == 0 {
		return ErrNoHolders
	}
	if math.IsNaN(pool) || math.IsInf(pool, 0) || pool <= 0 {
		return fmt.Errorf("%w: %v must be positive and finite", ErrInvalidPool, pool)
	}
	return nil
}

func holderWeights(holders []types.HolderRecord, byBalance bool) ([]float64, float64, error) {
	weights := make([]float64, len(holders))
	var total float64
	for i, h := range holders {
		m, err := h.Tier.Multiplier()
		if err != nil {
			return nil, 0, fmt.Errorf("holder %s: %w", h.Wallet, err)
		}
		if h.TokenBalance < 0 || math.IsNaN(h.TokenBalance) || math.IsInf(h.TokenBalance, 0) {
			return nil, 0, fmt.Errorf("%w: holder %s has %v", ErrInvalidBalance, h.Wallet, h.TokenBalance)
		}
		w := m
		if byBalance {
			w *= h.TokenBalance
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return nil, 0, ErrZeroWeight
	}
	return weights, total, nil
}
