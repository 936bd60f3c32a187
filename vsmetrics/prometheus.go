package vsmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector reports Engine events as Prometheus metrics.
type PrometheusCollector struct {
	searchTotal      *prometheus.CounterVec
	searchDuration   *prometheus.HistogramVec
	searchMatched    prometheus.Histogram
	mutationTotal    *prometheus.CounterVec
	mutationDuration prometheus.Histogram
	coalesceTotal    prometheus.Counter
	backfillTotal    *prometheus.CounterVec
	backfillDuration prometheus.Histogram
	fanoutDuration   prometheus.Histogram
	fanoutFailed     prometheus.Counter
}

// NewPrometheusCollector registers its metrics on reg. Pass
// prometheus.DefaultRegisterer to use the global registry.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		searchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vsengine",
			Name:      "search_total",
			Help:      "Hybrid searches by plan and outcome.",
		}, []string{"plan", "outcome"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vsengine",
			Name:      "search_duration_seconds",
			Help:      "Hybrid search latency by plan.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"plan"}),
		searchMatched: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vsengine",
			Name:      "search_matched_records",
			Help:      "Records in a search's top-k result set, before limit windowing.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		mutationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vsengine",
			Name:      "mutation_total",
			Help:      "Applied mutation records by outcome.",
		}, []string{"outcome"}),
		mutationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vsengine",
			Name:      "mutation_duration_seconds",
			Help:      "Mutation apply latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		coalesceTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsengine",
			Name:      "mutation_coalesced_total",
			Help:      "Pending mutations overwritten before a worker applied them.",
		}),
		backfillTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vsengine",
			Name:      "backfill_total",
			Help:      "Schema backfill sweeps by outcome.",
		}, []string{"outcome"}),
		backfillDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vsengine",
			Name:      "backfill_duration_seconds",
			Help:      "Schema backfill sweep latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		fanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vsengine",
			Name:      "fanout_duration_seconds",
			Help:      "Cross-partition search latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		fanoutFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsengine",
			Name:      "fanout_partitions_failed_total",
			Help:      "Partitions that exhausted retries during fan-out.",
		}),
	}
	reg.MustRegister(
		c.searchTotal, c.searchDuration, c.searchMatched,
		c.mutationTotal, c.mutationDuration, c.coalesceTotal,
		c.backfillTotal, c.backfillDuration,
		c.fanoutDuration, c.fanoutFailed,
	)
	return c
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *PrometheusCollector) RecordSearch(plan PlanKind, matched int, duration time.Duration, err error) {
	c.searchTotal.WithLabelValues(plan.String(), outcome(err)).Inc()
	c.searchDuration.WithLabelValues(plan.String()).Observe(duration.Seconds())
	c.searchMatched.Observe(float64(matched))
}

func (c *PrometheusCollector) RecordMutation(duration time.Duration, err error) {
	c.mutationTotal.WithLabelValues(outcome(err)).Inc()
	c.mutationDuration.Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordCoalesce() {
	c.coalesceTotal.Inc()
}

func (c *PrometheusCollector) RecordBackfill(keys int, duration time.Duration, err error) {
	c.backfillTotal.WithLabelValues(outcome(err)).Inc()
	c.backfillDuration.Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordFanout(partitions, failed int, duration time.Duration) {
	c.fanoutDuration.Observe(duration.Seconds())
	for i := 0; i < failed; i++ {
		c.fanoutFailed.Inc()
	}
}
