// Package metrics provides Prometheus metrics for the medication tracker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestsCreated       prometheus.Counter
	RequestsResponded     *prometheus.CounterVec
	RequestsApplied       prometheus.Counter
	MedicationsInserted   prometheus.Counter
	IntakeEvents          *prometheus.CounterVec
	ApplyDuration         prometheus.Histogram
	KafkaMessagesProduced prometheus.Counter
	KafkaMessagesConsumed prometheus.Counter
	OutboxPending         prometheus.Gauge
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		RequestsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medication_requests_created_total",
			Help: "Total medication change requests created",
		}),
		RequestsResponded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medication_requests_responded_total",
			Help: "Total patient responses by decision",
		}, []string{"decision"}),
		RequestsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medication_requests_applied_total",
			Help: "Total approved requests applied to the medication store",
		}),
		MedicationsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medications_inserted_total",
			Help: "Total medication rows inserted",
		}),
		IntakeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_events_total",
			Help: "Total intake log events by outcome",
		}, []string{"taken"}),
		ApplyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "request_apply_duration_seconds",
			Help:    "Approved request apply duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.RequestsCreated,
		m.RequestsResponded,
		m.RequestsApplied,
		m.MedicationsInserted,
		m.IntakeEvents,
		m.ApplyDuration,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
