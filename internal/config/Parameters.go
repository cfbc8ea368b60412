/*

This file contains the distribution parameters and their defaults.

*/

package config

import "time"

const (
	// DefaultCallTimeout bounds a single guardian call.
	DefaultCallTimeout = 30 * time.Second
	// DefaultLoopInterval matches the treasury monitor cadence. Claims are
	// tracked per weekly epoch, so ticking more often only retries failures.
	DefaultLoopInterval = 30 * time.Minute
	// DefaultMinTreasuryBalance is the balance below which no cycle runs.
	DefaultMinTreasuryBalance = 0.5
	// DefaultTokenPrecision is the number of decimals of the reward token.
	DefaultTokenPrecision = 9
	// DefaultRewardDenom is the on-chain denom of the reward token.
	DefaultRewardDenom = "brain"
)

// Distribution holds the knobs of a distribution cycle.
type Distribution struct {
	// RewardPool is the number of tokens split across holders per epoch.
	RewardPool float64
	// MinTreasuryBalance gates cycles on the treasury balance.
	MinTreasuryBalance float64
	// RewardDenom and TokenPrecision describe the reward token on chain.
	RewardDenom    string
	TokenPrecision int
	// WeightByBalance also weights rewards by token balance, not just tier.
	WeightByBalance bool
	// MaxClaimAttempts stops retrying a holder after this many failed claims
	// in the same epoch. Zero retries forever.
	MaxClaimAttempts int
	// SettlementConcurrency bounds parallel claim submissions.
	SettlementConcurrency int
	// LoopInterval is the scheduler tick.
	LoopInterval time.Duration
}

func loadDistributionConfig() (Distribution, error) {
	d := Distribution{
		RewardDenom: getEnvDefault("REWARD_DENOM", DefaultRewardDenom),
	}
	var err error

	if d.RewardPool, err = getEnvAsFloat64("REWARD_POOL_AMOUNT"); err != nil {
		return d, err
	}
	if d.MinTreasuryBalance, err = getEnvAsFloat64Default("MIN_TREASURY_BALANCE", DefaultMinTreasuryBalance); err != nil {
		return d, err
	}
	if d.TokenPrecision, err = getEnvAsIntDefault("TOKEN_PRECISION", DefaultTokenPrecision); err != nil {
		return d, err
	}
	if d.WeightByBalance, err = getEnvAsBoolDefault("WEIGHT_BY_BALANCE", false); err != nil {
		return d, err
	}
	if d.MaxClaimAttempts, err = getEnvAsIntDefault("MAX_CLAIM_ATTEMPTS", 0); err != nil {
		return d, err
	}
	if d.SettlementConcurrency, err = getEnvAsIntDefault("SETTLEMENT_CONCURRENCY", 1); err != nil {
		return d, err
	}
	if d.LoopInterval, err = getEnvAsDurationDefault("LOOP_INTERVAL", DefaultLoopInterval); err != nil {
		return d, err
	}
	return d, nil
}
