// Package metrics exposes the row-query engine's Prometheus
// instrumentation: query latency, cache hit/miss/rebuild counts, and the
// size of the loaded IOC rule set. A nil *Registry is a valid no-op, so
// callers that don't care about metrics never need a sentinel check.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles the engine's collectors against one prometheus.Registerer
// so a process embedding multiple engines can keep their metrics separate.
type Registry struct {
	queryDuration *prometheus.HistogramVec
	cacheResults  *prometheus.CounterVec
	iocRuleCount  *prometheus.GaugeVec
}

// NewRegistry registers the engine's collectors against reg and returns a
// Registry ready to record observations. Pass prometheus.NewRegistry() for
// an isolated registry, or prometheus.DefaultRegisterer to expose on the
// process-wide /metrics endpoint.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rowquery_query_duration_seconds",
			Help:    "Duration of query_rows calls, by project.",
			Buckets: prometheus.DefBuckets,
		}, []string{"project"}),
		cacheResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rowquery_cache_result_total",
			Help: "Row-text and IOC-flag cache outcomes, by cache and result.",
		}, []string{"cache", "result"}),
		iocRuleCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rowquery_ioc_rules_total",
			Help: "Number of loaded IOC rules, by project.",
		}, []string{"project"}),
	}
}

// ObserveQueryDuration records how long a query_rows call took for project.
func (r *Registry) ObserveQueryDuration(project string, d time.Duration) {
	if r == nil {
		return
	}
	r.queryDuration.WithLabelValues(project).Observe(d.Seconds())
}

// CacheResult names the outcome of a cache lookup for metrics recording.
type CacheResult string

const (
	CacheHit     CacheResult = "hit"
	CacheMiss    CacheResult = "miss"
	CacheRebuild CacheResult = "rebuild"
)

// RecordCacheResult increments the counter for one cache lookup outcome.
func (r *Registry) RecordCacheResult(cache string, result CacheResult) {
	if r == nil {
		return
	}
	r.cacheResults.WithLabelValues(cache, string(result)).Inc()
}

// SetIocRuleCount sets the gauge tracking how many IOC rules are loaded for
// project.
func (r *Registry) SetIocRuleCount(project string, n int) {
	if r == nil {
		return
	}
	r.iocRuleCount.WithLabelValues(project).Set(float64(n))
}
