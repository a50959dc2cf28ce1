package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// BillActionsTotal counts save, print, share and reset outcomes.
	BillActionsTotal *prometheus.CounterVec
	// CartMutationsTotal counts accepted cart mutations by operation.
	CartMutationsTotal *prometheus.CounterVec
	// BackendRequestDuration records shop backend latency in milliseconds.
	BackendRequestDuration *prometheus.HistogramVec
	// BillingSessionsActive tracks open billing sessions.
	BillingSessionsActive prometheus.Gauge
	// BillEventsTotal counts published bill lifecycle events.
	BillEventsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers billing Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BillActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_actions_total",
			Help:      "Count of bill workflow actions by outcome.",
		}, []string{"action", "result"})
		CartMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of applied cart mutations.",
		}, []string{"op"})
		BackendRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_ms",
			Help:      "Latency of shop backend calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"operation", "result"})
		BillingSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "billing_sessions_active",
			Help:      "Number of billing sessions currently held in memory.",
		})
		BillEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_events_total",
			Help:      "Count of published bill events by topic.",
		}, []string{"topic"})

		mustRegisterCollector(reg, BillActionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BillActionsTotal = v
			}
		})
		mustRegisterCollector(reg, CartMutationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartMutationsTotal = v
			}
		})
		mustRegisterCollector(reg, BackendRequestDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				BackendRequestDuration = v
			}
		})
		mustRegisterCollector(reg, BillingSessionsActive, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				BillingSessionsActive = v
			}
		})
		mustRegisterCollector(reg, BillEventsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BillEventsTotal = v
			}
		})
	})
}

// The helpers below are no-ops until MustRegisterDomainMetrics has run.

// RecordBillAction increments the bill action counter.
func RecordBillAction(action string, err error) {
	if BillActionsTotal == nil {
		return
	}
	BillActionsTotal.WithLabelValues(action, resultLabel(err)).Inc()
}

// RecordCartMutation increments the cart mutation counter.
func RecordCartMutation(op string) {
	if CartMutationsTotal == nil {
		return
	}
	CartMutationsTotal.WithLabelValues(op).Inc()
}

// ObserveBackend records the latency of one backend operation.
func ObserveBackend(operation string, started time.Time, err error) {
	if BackendRequestDuration == nil {
		return
	}
	BackendRequestDuration.WithLabelValues(operation, resultLabel(err)).Observe(DurationMillis(time.Since(started)))
}

// SetActiveSessions reports the number of live billing sessions.
func SetActiveSessions(n int) {
	if BillingSessionsActive == nil {
		return
	}
	BillingSessionsActive.Set(float64(n))
}

// RecordBillEvent increments the event counter for topic.
func RecordBillEvent(topic string) {
	if BillEventsTotal == nil {
		return
	}
	BillEventsTotal.WithLabelValues(topic).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
