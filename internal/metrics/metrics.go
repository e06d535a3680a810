package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the console's prometheus collectors
type Metrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	pollTicksTotal      *prometheus.CounterVec
	rulesLoaded         prometheus.Gauge
	queueItems          *prometheus.GaugeVec
	transitionsRejected *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rule_console_requests_total",
				Help: "Requests issued to the rule service by operation and result",
			},
			[]string{"op", "result"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rule_console_request_duration_seconds",
				Help:    "Latency of rule service requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		pollTicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rule_console_poll_ticks_total",
				Help: "Queue stats poll ticks by result (ok, error, skipped)",
			},
			[]string{"result"},
		),
		rulesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rule_console_rules_loaded",
				Help: "Number of rules in the last loaded rule list",
			},
		),
		queueItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rule_console_queue_items",
				Help: "Delivery queue items by state from the last stats snapshot",
			},
			[]string{"state"},
		),
		transitionsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rule_console_transitions_rejected_total",
				Help: "View transitions rejected by reason",
			},
			[]string{"reason"},
		),
	}

	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.pollTicksTotal,
		m.rulesLoaded,
		m.queueItems,
		m.transitionsRejected,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// ObserveRequest records one rule service call
func (m *Metrics) ObserveRequest(op, result string, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(op, result).Inc()
	m.requestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// IncPollTicks counts a poll tick outcome
func (m *Metrics) IncPollTicks(result string) {
	m.pollTicksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetRulesLoaded(count float64) {
	m.rulesLoaded.Set(count)
}

// SetQueueItems sets the gauge for one queue state
func (m *Metrics) SetQueueItems(state string, count float64) {
	m.queueItems.WithLabelValues(state).Set(count)
}

func (m *Metrics) IncTransitionsRejected(reason string) {
	m.transitionsRejected.WithLabelValues(reason).Inc()
}

// Collector accessors for reading back current values

func (m *Metrics) PollTicks(result string) prometheus.Counter {
	return m.pollTicksTotal.WithLabelValues(result)
}

func (m *Metrics) RulesLoaded() prometheus.Gauge {
	return m.rulesLoaded
}

func (m *Metrics) QueueItems(state string) prometheus.Gauge {
	return m.queueItems.WithLabelValues(state)
}

func (m *Metrics) TransitionsRejected(reason string) prometheus.Counter {
	return m.transitionsRejected.WithLabelValues(reason)
}
