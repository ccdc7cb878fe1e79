// Package metrics records routing outcomes as Prometheus counters.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters shared by the routing components.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	routed        *prometheus.CounterVec
	classifyCalls *prometheus.CounterVec
	clarified     *prometheus.CounterVec
	fixes         *prometheus.CounterVec
	enrichJobs    *prometheus.CounterVec
	queries       *prometheus.CounterVec
	swept         prometheus.Counter
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the Metrics registered on the default registry
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New registers a fresh set of counters on reg
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		routed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaknote",
			Subsystem: "router",
			Name:      "notes_total",
			Help:      "Notes routed, by source (prefix or classifier) and resulting status",
		}, []string{"source", "status"}),
		classifyCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaknote",
			Subsystem: "classifier",
			Name:      "attempts_total",
			Help:      "Completion attempts made by the classifier, by outcome",
		}, []string{"outcome"}),
		clarified: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaknote",
			Subsystem: "clarify",
			Name:      "resolutions_total",
			Help:      "Clarification replies, by resolution kind",
		}, []string{"kind"}),
		fixes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaknote",
			Subsystem: "fix",
			Name:      "requests_total",
			Help:      "Fix requests, by result",
		}, []string{"result"}),
		enrichJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaknote",
			Subsystem: "enrich",
			Name:      "jobs_total",
			Help:      "Enrichment jobs, by result",
		}, []string{"result"}),
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaknote",
			Subsystem: "query",
			Name:      "commands_total",
			Help:      "Query commands answered, by command",
		}, []string{"command"}),
		swept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "leaknote",
			Subsystem: "clarify",
			Name:      "expired_total",
			Help:      "Pending clarifications deleted by the expiry sweep",
		}),
	}
}

// Routed counts one routing decision
func (m *Metrics) Routed(source, status string) {
	if m == nil {
		return
	}
	m.routed.WithLabelValues(source, status).Inc()
}

// ClassifyAttempt counts one completion attempt
func (m *Metrics) ClassifyAttempt(outcome string) {
	if m == nil {
		return
	}
	m.classifyCalls.WithLabelValues(outcome).Inc()
}

// Clarified counts one clarification resolution
func (m *Metrics) Clarified(kind string) {
	if m == nil {
		return
	}
	m.clarified.WithLabelValues(kind).Inc()
}

// Fixed counts one fix request
func (m *Metrics) Fixed(result string) {
	if m == nil {
		return
	}
	m.fixes.WithLabelValues(result).Inc()
}

// Enriched counts one enrichment job
func (m *Metrics) Enriched(result string) {
	if m == nil {
		return
	}
	m.enrichJobs.WithLabelValues(result).Inc()
}

// Queried counts one query command
func (m *Metrics) Queried(command string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(command).Inc()
}

// Swept adds n expired clarifications
func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}
