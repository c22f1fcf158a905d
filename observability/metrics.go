package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// RouterMetrics exposes Prometheus collectors for the forwarding core.
type RouterMetrics struct {
	forwards           *prometheus.CounterVec
	resolutions        *prometheus.CounterVec
	collateralDeposits prometheus.Counter
	queuedActions      *prometheus.CounterVec
	replays            *prometheus.CounterVec
	queueDepth         prometheus.Gauge
}

var (
	routerMetricsOnce sync.Once
	routerRegistry    *RouterMetrics
)

// Router returns the lazily-initialised router metrics registry.
func Router() *RouterMetrics {
	routerMetricsOnce.Do(func() {
		routerRegistry = &RouterMetrics{
			forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vector",
				Subsystem: "router",
				Name:      "forwards_total",
				Help:      "Forward attempts segmented by outcome (forwarded, skipped, or the failure code).",
			}, []string{"outcome"}),
			resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vector",
				Subsystem: "router",
				Name:      "resolutions_total",
				Help:      "Resolution attempts segmented by outcome (resolved, skipped, or the failure code).",
			}, []string{"outcome"}),
			collateralDeposits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vector",
				Subsystem: "router",
				Name:      "collateral_deposits_total",
				Help:      "Just-in-time collateral deposits issued before forwarding.",
			}),
			queuedActions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vector",
				Subsystem: "router",
				Name:      "queued_actions_total",
				Help:      "Actions written to the retry queue segmented by action type.",
			}, []string{"type"}),
			replays: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vector",
				Subsystem: "router",
				Name:      "replays_total",
				Help:      "Queued-action replays segmented by outcome (success, failure, exhausted).",
			}, []string{"outcome"}),
			queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vector",
				Subsystem: "router",
				Name:      "queue_depth",
				Help:      "Pending actions currently in the retry queue.",
			}),
		}
		prometheus.MustRegister(
			routerRegistry.forwards,
			routerRegistry.resolutions,
			routerRegistry.collateralDeposits,
			routerRegistry.queuedActions,
			routerRegistry.replays,
			routerRegistry.queueDepth,
		)
	})
	return routerRegistry
}

// RecordForward counts one forwarding attempt with its outcome label.
func (m *RouterMetrics) RecordForward(outcome string) {
	if m == nil {
		return
	}
	m.forwards.WithLabelValues(outcome).Inc()
}

// RecordResolution counts one resolution attempt with its outcome label.
func (m *RouterMetrics) RecordResolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

// RecordCollateralDeposit counts one just-in-time deposit.
func (m *RouterMetrics) RecordCollateralDeposit() {
	if m == nil {
		return
	}
	m.collateralDeposits.Inc()
}

// RecordQueued counts one retry-queue write.
func (m *RouterMetrics) RecordQueued(actionType string) {
	if m == nil {
		return
	}
	m.queuedActions.WithLabelValues(actionType).Inc()
}

// RecordReplay counts one replay attempt outcome.
func (m *RouterMetrics) RecordReplay(outcome string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(outcome).Inc()
}

// SetQueueDepth publishes the current retry-queue depth.
func (m *RouterMetrics) SetQueueDepth(depth float64) {
	if m == nil {
		return
	}
	m.queueDepth.Set(depth)
}
