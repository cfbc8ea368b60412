package types

import (
	"context"
	"fmt"
	"time"
)

type epochKey struct{}

// EpochOf returns the weekly distribution epoch containing t, e.g. "2026-W43".
// Claims are tracked per epoch, so every holder can claim once a week.
func EpochOf(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// WithEpoch pins the epoch for everything done under ctx. The scheduler sets
// it once per tick so that the snapshot and the ledger agree on the week even
// across a boundary.
func WithEpoch(ctx context.Context, epoch string) context.Context {
	return context.WithValue(ctx, epochKey{}, epoch)
}

// EpochFromContext returns the pinned epoch, or the epoch of now.
func EpochFromContext(ctx context.Context, now time.Time) string {
	if epoch, ok := ctx.Value(epochKey{}).(string); ok && epoch != "" {
		return epoch
	}
	return EpochOf(now)
}
