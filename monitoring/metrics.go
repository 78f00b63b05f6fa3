package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_validations_total",
			Help: "Ticket scans by outcome",
		},
		[]string{"outcome"},
	)

	validationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticket_validation_duration_seconds",
			Help:    "Time to produce an authoritative validation result",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_status_transitions_total",
			Help: "Successful ticket status changes",
		},
		[]string{"from", "to"},
	)

	ticketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Tickets signed and persisted",
		},
	)

	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_store_errors_total",
			Help: "Ticket store calls that failed for infrastructure reasons",
		},
		[]string{"operation"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ticket_store_breaker_state",
			Help: "Circuit breaker state per breaker: 0 closed, 1 half-open, 2 open",
		},
		[]string{"name"},
	)

	gateNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_notifications_total",
			Help: "Realtime gate notifications by result",
		},
		[]string{"result"},
	)
)

// Monitor records engine metrics. A nil *Monitor is valid and records
// nothing, which keeps metrics optional for callers and tests.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// Track a finished scan
func (m *Monitor) TrackValidation(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	validationsTotal.WithLabelValues(outcome).Inc()
	validationDuration.Observe(duration.Seconds())
}

func (m *Monitor) TrackTransition(from, to string) {
	if m == nil {
		return
	}
	statusTransitions.WithLabelValues(from, to).Inc()
}

func (m *Monitor) TrackIssued() {
	if m == nil {
		return
	}
	ticketsIssued.Inc()
}

func (m *Monitor) TrackStoreError(operation string) {
	if m == nil {
		return
	}
	storeErrors.WithLabelValues(operation).Inc()
}

// TrackBreakerState takes the numeric breaker state (closed 0, half-open 1,
// open 2).
func (m *Monitor) TrackBreakerState(name string, state int) {
	if m == nil {
		return
	}
	breakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Monitor) TrackNotification(result string) {
	if m == nil {
		return
	}
	gateNotifications.WithLabelValues(result).Inc()
}
