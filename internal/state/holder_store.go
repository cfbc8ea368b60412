package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/elys-network/rdm/internal/logger"
	"github.com/elys-network/rdm/internal/types"
)

var ErrDBNotInitialized = errors.New("database not initialized")

// HolderStore is the Postgres-backed snapshot provider and claim ledger.
// The epoch comes from the context (types.WithEpoch), falling back to the
// epoch of the current time.
type HolderStore struct {
	now    func() time.Time
	logger zerolog.Logger
}

// NewHolderStore creates a store over the global DB pool.
func NewHolderStore(now func() time.Time) *HolderStore {
	if now == nil {
		now = time.Now
	}
	return &HolderStore{now: now, logger: logger.GetForComponent("holder_store")}
}

// FetchHolders returns every holder in stable snapshot order with the claim
// state of the current epoch. Rows with an invalid wallet or tier are dropped.
func (s *HolderStore) FetchHolders(ctx context.Context) ([]types.HolderRecord, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	epoch := types.EpochFromContext(ctx, s.now())

	query := `
		SELECT
			h.wallet, h.token_balance, h.tier,
			COALESCE(c.claimed, FALSE), COALESCE(c.failed_attempts, 0)
		FROM holders h
		LEFT JOIN reward_claims c ON c.wallet = h.wallet AND c.epoch = $1
		ORDER BY h.first_seen_at ASC, h.wallet ASC
	`
	rows, err := DB.QueryContext(ctx, query, epoch)
	if err != nil {
		return nil, fmt.Errorf("failed to query holders: %w", err)
	}
	defer rows.Close()

	holders := make([]types.HolderRecord, 0)
	for rows.Next() {
		var h types.HolderRecord
		var tier string
		if err := rows.Scan(&h.Wallet, &h.TokenBalance, &tier, &h.Claimed, &h.FailedAttempts); err != nil {
			return nil, fmt.Errorf("failed to scan holder row: %w", err)
		}
		if h.Tier, err = types.ParseTier(tier); err != nil {
			s.logger.Warn().Err(err).Str("wallet", h.Wallet).Msg("Dropping holder with unknown tier")
			continue
		}
		if err := types.ValidateWallet(h.Wallet); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping holder with invalid wallet")
			continue
		}
		holders = append(holders, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during holder row iteration: %w", err)
	}

	s.logger.Info().Str("epoch", epoch).Int("holders", len(holders)).Msg("Fetched holder snapshot")
	return holders, nil
}

// MarkClaimed records a paid claim for the epoch.
func (s *HolderStore) MarkClaimed(ctx context.Context, wallet string, amount float64, txRef string) error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	epoch := types.EpochFromContext(ctx, s.now())

	_, err := DB.ExecContext(ctx, `
		INSERT INTO reward_claims (epoch, wallet, claimed, amount, tx_ref, updated_at)
		VALUES ($1, $2, TRUE, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (epoch, wallet) DO UPDATE
		SET claimed = TRUE, amount = EXCLUDED.amount, tx_ref = EXCLUDED.tx_ref, updated_at = CURRENT_TIMESTAMP;`,
		epoch, wallet, amount, txRef)
	if err != nil {
		return fmt.Errorf("failed to mark %s claimed for %s: %w", wallet, epoch, err)
	}
	return nil
}

// RecordFailure counts a failed claim attempt for the epoch.
func (s *HolderStore) RecordFailure(ctx context.Context, wallet string, reason string) error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	epoch := types.EpochFromContext(ctx, s.now())

	_, err := DB.ExecContext(ctx, `
		INSERT INTO reward_claims (epoch, wallet, failed_attempts, last_error, updated_at)
		VALUES ($1, $2, 1, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (epoch, wallet) DO UPDATE
		SET failed_attempts = reward_claims.failed_attempts + 1, last_error = EXCLUDED.last_error, updated_at = CURRENT_TIMESTAMP;`,
		epoch, wallet, reason)
	if err != nil {
		return fmt.Errorf("failed to record claim failure of %s for %s: %w", wallet, epoch, err)
	}
	return nil
}

// UpsertHolder inserts or refreshes a holder row. Used by
// scripts/seed_holders; the production indexer writes the table directly.
func UpsertHolder(ctx context.Context, h types.HolderRecord) error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if err := types.ValidateWallet(h.Wallet); err != nil {
		return err
	}
	if !h.Tier.Valid() {
		return fmt.Errorf("%w: %q", types.ErrUnknownTier, string(h.Tier))
	}
	_, err := DB.ExecContext(ctx, `
		INSERT INTO holders (wallet, token_balance, tier)
		VALUES ($1, $2, $3)
		ON CONFLICT (wallet) DO UPDATE
		SET token_balance = EXCLUDED.token_balance, tier = EXCLUDED.tier, updated_at = CURRENT_TIMESTAMP;`,
		h.Wallet, h.TokenBalance, string(h.Tier))
	if err != nil {
		return fmt.Errorf("failed to upsert holder %s: %w", h.Wallet, err)
	}
	return nil
}
