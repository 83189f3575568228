package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PromMetrics struct {
	storeOps       *prometheus.CounterVec
	storeLatency   *prometheus.HistogramVec
	authorizations *prometheus.CounterVec
	keyRefreshes   *prometheus.CounterVec
	events         *prometheus.CounterVec
}

func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {

	m := &PromMetrics{
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasks_store_operations_total",
			Help: "Number of task store operations by operation and result",
		}, []string{"op", "result"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tasks_store_latency_seconds",
			Help:    "Latency of task store operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		authorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasks_authorizations_total",
			Help: "Number of bearer token checks by outcome and rejection reason",
		}, []string{"outcome", "reason"}),
		keyRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasks_signing_key_refreshes_total",
			Help: "Number of signing key set fetches by result",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasks_events_published_total",
			Help: "Number of task change events published by result",
		}, []string{"result"}),
	}
	reg.MustRegister(m.storeOps, m.storeLatency, m.authorizations, m.keyRefreshes, m.events)
	return m
}

func (m *PromMetrics) StoreOp(op string, d time.Duration, err error) {
	m.storeOps.WithLabelValues(op, result(err)).Inc()
	m.storeLatency.WithLabelValues(op).Observe(d.Seconds())
}
func (m *PromMetrics) Authorization(accepted bool, reason string) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	m.authorizations.WithLabelValues(outcome, reason).Inc()
}
func (m *PromMetrics) KeyRefresh(err error) {
	m.keyRefreshes.WithLabelValues(result(err)).Inc()
}
func (m *PromMetrics) EventPublished(err error) {
	m.events.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
