package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "celestia"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"method", "route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings created by service type.",
		},
		[]string{"service_type"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Booking status changes by target status and outcome.",
		},
		[]string{"status", "outcome"},
	)

	payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payment attempts by outcome.",
		},
		[]string{"outcome"},
	)

	workItemSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_item_status_syncs_total",
			Help:      "Work-item status updates mirrored onto bookings.",
		},
		[]string{"status"},
	)

	outboxTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_tasks_total",
			Help:      "Outbox tasks processed by type and result.",
		},
		[]string{"task_type", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			bookingsCreated,
			bookingTransitions,
			payments,
			workItemSyncs,
			outboxTasks,
		)
	})
}

func ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func IncBookingCreated(serviceType string) {
	bookingsCreated.WithLabelValues(serviceType).Inc()
}

func IncTransition(status string, ok bool) {
	bookingTransitions.WithLabelValues(status, outcome(ok)).Inc()
}

// IncPayment records a payment outcome: paid, replayed, rejected or error.
func IncPayment(result string) {
	payments.WithLabelValues(result).Inc()
}

func IncWorkItemSync(status string) {
	workItemSyncs.WithLabelValues(status).Inc()
}

func IncOutboxTask(taskType, result string) {
	outboxTasks.WithLabelValues(taskType, result).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "rejected"
}
