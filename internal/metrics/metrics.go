package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatbook"

var (
	once sync.Once

	bookingOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_operations_total",
			Help:      "Booking operations by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	bookingRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rejections_total",
			Help:      "Rejected booking operations by reason.",
		},
		[]string{"reason"},
	)

	calendarCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_calls_total",
			Help:      "External calendar calls by operation and result.",
		},
		[]string{"op", "result"},
	)

	calendarDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calendar_call_duration_seconds",
			Help:      "External calendar call latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	suggestionsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "suggestions_returned",
			Help:      "Alternative slots returned per rejected request.",
			Buckets:   []float64{0, 1, 2},
		},
	)

	journalTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_tasks_total",
			Help:      "Journal mirror tasks by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		},
		[]string{"route", "status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingOperations,
			bookingRejections,
			calendarCalls,
			calendarDuration,
			suggestionsReturned,
			journalTasks,
			httpRequests,
		)
	})
}

func IncBookingOperation(action, outcome string) {
	bookingOperations.WithLabelValues(action, outcome).Inc()
}

func IncRejection(reason string) {
	bookingRejections.WithLabelValues(reason).Inc()
}

// ObserveCalendarCall records one calendar round trip.
func ObserveCalendarCall(op string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	calendarCalls.WithLabelValues(op, result).Inc()
	calendarDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func ObserveSuggestions(n int) {
	suggestionsReturned.Observe(float64(n))
}

// IncJournalTask counts a settled mirror task: completed, retry or failed.
func IncJournalTask(taskType, outcome string) {
	journalTasks.WithLabelValues(taskType, outcome).Inc()
}

func IncHTTP(route, status string) {
	httpRequests.WithLabelValues(route, status).Inc()
}
