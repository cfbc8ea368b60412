package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/elys-network/rdm/internal/types"
)

const namespace = "rdm"

// Metrics holds the distribution collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	claims        *prometheus.CounterVec
	compounds     *prometheus.CounterVec
	distributed   prometheus.Counter
	cycleDuration prometheus.Histogram
	lastPool      prometheus.Gauge
	treasury      prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Distribution cycles by result (completed, rejected, gated, error).",
		}, []string{"result"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Claims by tier and result (succeeded, failed, skipped).",
		}, []string{"tier", "result"}),
		compounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compounds_total",
			Help:      "Auto-compound submissions by result.",
		}, []string{"result"}),
		distributed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distributed_tokens_total",
			Help:      "Tokens successfully claimed across all cycles.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a distribution cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		lastPool: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pool_tokens",
			Help:      "Pool size of the most recent cycle.",
		}),
		treasury: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "treasury_balance",
			Help:      "Last observed treasury balance.",
		}),
	}
	m.registry.MustRegister(m.cycles, m.claims, m.compounds, m.distributed, m.cycleDuration, m.lastPool, m.treasury)
	return m
}

// Registry exposes the registry for the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCycle records a cycle result label such as "rejected" or "gated".
func (m *Metrics) ObserveCycle(result string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
}

// ObserveTreasury records the treasury balance seen by the scheduler.
func (m *Metrics) ObserveTreasury(balance float64) {
	if m == nil {
		return
	}
	m.treasury.Set(balance)
}

// ObserveSummary records a completed cycle.
func (m *Metrics) ObserveSummary(s *types.CycleSummary) {
	if m == nil || s == nil {
		return
	}
	m.cycles.WithLabelValues("completed").Inc()
	m.lastPool.Set(s.TotalPool)
	m.distributed.Add(s.TotalDistributed)
	m.cycleDuration.Observe(s.FinishedAt.Sub(s.StartedAt).Seconds())
	m.claims.WithLabelValues("all", "skipped").Add(float64(s.Skipped))
	for _, o := range s.Outcomes {
		result := "failed"
		if o.Success {
			result = "succeeded"
		}
		m.claims.WithLabelValues(string(o.Tier), result).Inc()
		if o.Compound != nil {
			if o.Compound.Success {
				m.compounds.WithLabelValues("succeeded").Inc()
			} else {
				m.compounds.WithLabelValues("failed").Inc()
			}
		}
	}
}
