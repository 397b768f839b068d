package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chefbook",
			Name:      "booking_created_total",
			Help:      "Count of bookings created.",
		},
	)

	bookingConflict = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chefbook",
			Name:      "booking_conflict_total",
			Help:      "Count of booking requests rejected for an overlapping slot.",
		},
	)

	statusTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chefbook",
			Name:      "status_transition_total",
			Help:      "Count of booking status transitions by source and target status.",
		},
		[]string{"from", "to"},
	)

	paymentVerification = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chefbook",
			Name:      "payment_verification_total",
			Help:      "Count of payment verifications by outcome.",
		},
		[]string{"outcome"},
	)

	refundIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chefbook",
			Name:      "refund_total",
			Help:      "Count of refund attempts by outcome.",
		},
		[]string{"outcome"},
	)

	sweepTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chefbook",
			Name:      "sweep_transitions_total",
			Help:      "Count of bookings moved by the lifecycle sweeper by step.",
		},
		[]string{"step"},
	)

	sweepErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chefbook",
			Name:      "sweep_errors_total",
			Help:      "Count of failed sweeper steps.",
		},
		[]string{"step"},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chefbook",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of lifecycle sweeps.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chefbook",
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chefbook",
			Name:      "gateway_requests_total",
			Help:      "Count of payment gateway calls by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	cacheFallback = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chefbook",
			Name:      "cache_fallback_total",
			Help:      "Count of cache operations served by the in-memory fallback.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated, bookingConflict, statusTransition,
			paymentVerification, refundIssued,
			sweepTransitions, sweepErrors, sweepDuration,
			httpRequests, gatewayRequests, cacheFallback,
		)
	})
}

func IncBookingCreated() {
	bookingCreated.Inc()
}

func IncBookingConflict() {
	bookingConflict.Inc()
}

func IncTransition(from, to string) {
	statusTransition.WithLabelValues(from, to).Inc()
}

func IncPaymentVerification(outcome string) {
	paymentVerification.WithLabelValues(outcome).Inc()
}

func IncRefund(outcome string) {
	refundIssued.WithLabelValues(outcome).Inc()
}

func AddSweepTransitions(step string, n int) {
	sweepTransitions.WithLabelValues(step).Add(float64(n))
}

func IncSweepError(step string) {
	sweepErrors.WithLabelValues(step).Inc()
}

func ObserveSweep(d time.Duration) {
	sweepDuration.Observe(d.Seconds())
}

func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

func IncGateway(op, outcome string) {
	gatewayRequests.WithLabelValues(op, outcome).Inc()
}

func IncCacheFallback() {
	cacheFallback.Inc()
}
