/*

This file contains the holder side of a distribution: tiers, their fixed reward
multipliers and the per-holder record supplied by the snapshot provider.

*/

package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Tier is the staking classification of a holder. Tiers are assigned outside
// this service and never change during a cycle.
type Tier string

const (
	TierBronze   Tier = "Bronze"
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
)

// AllTiers lists the tiers in increasing multiplier order.
var AllTiers = []Tier{TierBronze, TierSilver, TierGold, TierPlatinum}

// TierMultipliers is the fixed reward weight of every tier.
var TierMultipliers = map[Tier]float64{
	TierBronze:   1.0,
	TierSilver:   1.5,
	TierGold:     2.0,
	TierPlatinum: 3.0,
}

var (
	ErrUnknownTier   = errors.New("unknown tier")
	ErrInvalidWallet = errors.New("wallet address is invalid")
)

// Multiplier returns the reward weight for the tier.
func (t Tier) Multiplier() (float64, error) {
	m, ok := TierMultipliers[t]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTier, string(t))
	}
	return m, nil
}

// Rank returns the position of the tier in AllTiers, or -1.
func (t Tier) Rank() int {
	for i, tier := range AllTiers {
		if tier == t {
			return i
		}
	}
	return -1
}

// Valid reports whether the tier has a multiplier.
func (t Tier) Valid() bool {
	_, ok := TierMultipliers[t]
	return ok
}

// ParseTier maps a case-insensitive tier name onto a Tier.
func ParseTier(s string) (Tier, error) {
	for _, tier := range AllTiers {
		if strings.EqualFold(strings.TrimSpace(s), string(tier)) {
			return tier, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// HolderRecord is one holder as seen by a single snapshot.
type HolderRecord struct {
	Wallet         string  `json:"wallet"`
	TokenBalance   float64 `json:"token_balance"`   // Informational unless balance weighting is enabled
	Tier           Tier    `json:"tier"`
	Claimed        bool    `json:"claimed"`         // Reflects claims already recorded for the current epoch
	FailedAttempts int     `json:"failed_attempts"` // Failed claims recorded for the current epoch
}

// ValidateWallet checks that a wallet is a base58 encoded 32 byte public key.
func ValidateWallet(wallet string) error {
	if wallet == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidWallet)
	}
	raw, err := base58.Decode(wallet)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidWallet, wallet, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: %q decodes to %d bytes, want 32", ErrInvalidWallet, wallet, len(raw))
	}
	return nil
}
