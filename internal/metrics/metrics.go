package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bookings"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	availabilityFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_query_failures_total",
			Help:      "Busy queries answered with the fail-safe fully busy window.",
		},
	)

	availabilityLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "availability_query_seconds",
			Help:      "Latency of calendar busy queries.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	suggestionsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "suggestions_returned",
			Help:      "Number of alternative slots returned per suggestion scan.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Booking notifications by delivery status.",
		},
		[]string{"status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookings,
			availabilityFailures,
			availabilityLatency,
			suggestionsReturned,
			notifications,
		)
	})
}

// IncHTTP increments the counter for an endpoint and response code.
func IncHTTP(endpoint string, code int) {
	httpRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

// IncBooking records a booking attempt outcome
// (committed, conflict, rejected, commit_failed).
func IncBooking(bookingType, outcome string) {
	bookings.WithLabelValues(bookingType, outcome).Inc()
}

// BookingsCounter exposes one outcome series for inspection.
func BookingsCounter(bookingType, outcome string) prometheus.Counter {
	return bookings.WithLabelValues(bookingType, outcome)
}

func IncAvailabilityFailure() {
	availabilityFailures.Inc()
}

func ObserveAvailabilityQuery(d time.Duration) {
	availabilityLatency.Observe(d.Seconds())
}

func ObserveSuggestions(n int) {
	suggestionsReturned.Observe(float64(n))
}

func IncNotification(status string) {
	notifications.WithLabelValues(status).Inc()
}
