package settlement

import (
	"context"
)

// ClaimReceipt is what a claim collaborator hands back on success.
type ClaimReceipt struct {
	TxRef string
}

// ClaimSubmitter pays an allocated reward out to a holder.
// Any returned error, including a context deadline, counts as a failed claim.
type ClaimSubmitter interface {
	SubmitClaim(ctx context.Context, wallet string, amount float64) (ClaimReceipt, error)
}

// CompoundSubmitter re-stakes a claimed reward on behalf of a holder.
type CompoundSubmitter interface {
	SubmitCompound(ctx context.Context, wallet string, amount float64) error
}

// ClaimLedger records claim state outside of the engine so that the next
// snapshot reflects it. The engine never persists anything itself.
type ClaimLedger interface {
	// MarkClaimed flips the holder's claimed flag for the current epoch.
	MarkClaimed(ctx context.Context, wallet string, amount float64, txRef string) error
	// RecordFailure counts a failed claim attempt for the current epoch.
	RecordFailure(ctx context.Context, wallet string, reason string) error
}
