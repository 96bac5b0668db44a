package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking metrics
	BookingsTotal    *prometheus.CounterVec
	BookingLatency   prometheus.Histogram
	SlotConflicts    prometheus.Counter
	Transitions      *prometheus.CounterVec
	CodeRetriesTotal prometheus.Counter

	// Billing metrics
	BillsGenerated  prometheus.Counter
	PaymentsApplied *prometheus.CounterVec
	PaymentAmount   prometheus.Histogram

	// Audit metrics
	AuditEventsEmitted prometheus.Counter
	AuditEmitFailures  prometheus.Counter
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		BookingsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		BookingLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "booking_duration_seconds",
			Help:      "Time spent admitting or rejecting a booking",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		SlotConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "slot_conflicts_total",
			Help:      "Bookings rejected because the slot was already taken",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "appointment_transitions_total",
			Help:      "Appointment status transitions by target status",
		}, []string{"to"}),
		CodeRetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "identifier_retries_total",
			Help:      "Identifier generation collisions that triggered a retry",
		}),
		BillsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bills_generated_total",
			Help:      "Bills materialized from appointments",
		}),
		PaymentsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "payments_applied_total",
			Help:      "Payment transactions applied by method",
		}, []string{"method"}),
		PaymentAmount: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "payment_amount",
			Help:      "Distribution of applied payment amounts",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		AuditEventsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_events_emitted_total",
			Help:      "Audit events published to the sink",
		}),
		AuditEmitFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_emit_failures_total",
			Help:      "Audit events that could not be published",
		}),
	}
}
