package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/elys-network/rdm/internal/types"
)

func TestObserveSummary(t *testing.T) {
	m := New()
	start := time.Now()
	m.ObserveSummary(&types.CycleSummary{
		StartedAt:        start,
		FinishedAt:       start.Add(2 * time.Second),
		TotalPool:        100,
		TotalDistributed: 60,
		Skipped:          2,
		Outcomes: []types.ClaimOutcome{
			{Tier: types.TierPlatinum, Success: true, Amount: 40, Compound: &types.CompoundOutcome{Success: false}},
			{Tier: types.TierGold, Success: true, Amount: 20},
			{Tier: types.TierGold, Success: false},
		},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("completed")))
	assert.Equal(t, 60.0, testutil.ToFloat64(m.distributed))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.lastPool))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.claims.WithLabelValues("Gold", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.claims.WithLabelValues("Gold", "failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.claims.WithLabelValues("all", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.compounds.WithLabelValues("failed")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCycle("gated")
		m.ObserveTreasury(1)
		m.ObserveSummary(&types.CycleSummary{})
	})
}
