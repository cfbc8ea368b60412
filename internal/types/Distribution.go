/*

This file contains the types produced by a distribution cycle: the allocation
plan, the per-holder claim outcomes and the cycle summary that gets persisted.

*/

package types

import "time"

// AllocatedReward is a holder value copy plus the reward computed for it.
type AllocatedReward struct {
	Holder HolderRecord `json:"holder"`
	Reward float64      `json:"reward"`
}

// WeeklyDistribution is the full plan for one cycle. It is never mutated after
// the allocator returns it.
type WeeklyDistribution struct {
	TotalPool float64           `json:"total_pool"`
	Rewards   []AllocatedReward `json:"rewards"`
	CreatedAt time.Time         `json:"created_at"`
}

// TotalAllocated sums the rewards in the plan.
func (d *WeeklyDistribution) TotalAllocated() float64 {
	var total float64
	for _, r := range d.Rewards {
		total += r.Reward
	}
	return total
}

// CompoundOutcome is the result of re-staking a claimed reward.
type CompoundOutcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ClaimOutcome is produced once per processed holder per cycle.
type ClaimOutcome struct {
	Wallet      string           `json:"wallet"`
	Tier        Tier             `json:"tier"`
	Amount      float64          `json:"amount"`
	Success     bool             `json:"success"`
	TxRef       string           `json:"tx_ref,omitempty"`
	Error       string           `json:"error,omitempty"`
	Compound    *CompoundOutcome `json:"compound,omitempty"`
	LedgerError string           `json:"ledger_error,omitempty"` // Claim succeeded but the claimed flag could not be recorded
}

// CycleSummary is the auditable result of one distribution cycle.
type CycleSummary struct {
	SummaryID          int64          `json:"summary_id,omitempty"` // Assigned by the DB
	CycleID            string         `json:"cycle_id"`
	CycleNumber        int            `json:"cycle_number"`
	Epoch              string         `json:"epoch"`
	StartedAt          time.Time      `json:"started_at"`
	FinishedAt         time.Time      `json:"finished_at"`
	TotalPool          float64        `json:"total_pool"`
	TotalDistributed   float64        `json:"total_distributed"`
	Succeeded          int            `json:"succeeded"`
	Failed             int            `json:"failed"`
	Skipped            int            `json:"skipped"`
	CompoundsSucceeded int            `json:"compounds_succeeded"`
	CompoundsFailed    int            `json:"compounds_failed"`
	Outcomes           []ClaimOutcome `json:"outcomes"`
}

// TxRefs returns the transaction references of successful claims in order.
func (s *CycleSummary) TxRefs() []string {
	refs := make([]string, 0, len(s.Outcomes))
	for _, o := range s.Outcomes {
		if o.Success && o.TxRef != "" {
			refs = append(refs, o.TxRef)
		}
	}
	return refs
}
