// Package metrics defines the prometheus collectors exposed on the
// admin API. Collectors are registered on the default registry at
// startup; handlers and services record through the package helpers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersBookedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_booked_total",
			Help: "Total number of orders booked",
		},
		[]string{"order_type"},
	)

	OrderBookingDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "order_booking_duration_seconds",
			Help:    "Duration of order booking transactions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"order_type"},
	)

	TransactionsBookedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transactions_booked_total",
			Help: "Total number of double-entry transactions booked",
		},
	)

	PayoutRunsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payout_runs_created_total",
			Help: "Total number of payout runs created",
		},
	)

	BonGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bon_generated_total",
			Help: "Total number of receipt documents generated",
		},
	)

	BonErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bon_errors_total",
			Help: "Total number of receipt generations that failed",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"api", "code"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"api"},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Current number of active WebSocket event subscribers",
		},
	)

	dbEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_events_total",
			Help: "Database lifecycle and retry events by name",
		},
		[]string{"event"},
	)

	dbDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_duration_seconds",
			Help:    "Database operation durations by name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	dbGauges = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_gauge",
			Help: "Database gauges by name",
		},
		[]string{"name"},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersBookedTotal,
		OrderBookingDurationSeconds,
		TransactionsBookedTotal,
		PayoutRunsCreatedTotal,
		BonGeneratedTotal,
		BonErrorsTotal,
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		WSConnections,
		dbEventsTotal,
		dbDurationSeconds,
		dbGauges,
	)
}

// ObserveHTTPRequest records metrics for one HTTP request.
func ObserveHTTPRequest(api, code string, startedAt time.Time) {
	HTTPRequestsTotal.WithLabelValues(api, code).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(api).Observe(time.Since(startedAt).Seconds())
}

// ObserveOrderBooked records metrics for one booked order.
func ObserveOrderBooked(orderType string, transactions int, startedAt time.Time) {
	OrdersBookedTotal.WithLabelValues(orderType).Inc()
	TransactionsBookedTotal.Add(float64(transactions))
	OrderBookingDurationSeconds.WithLabelValues(orderType).Observe(time.Since(startedAt).Seconds())
}

// Database adapts the prometheus collectors to the storage layer's
// metrics interface. Tag maps are dropped; the event name carries the
// cardinality prometheus can afford.
type Database struct{}

// NewDatabase returns the storage metrics adapter.
func NewDatabase() *Database {
	return &Database{}
}

func (d *Database) IncrementCounter(name string, tags map[string]string) {
	dbEventsTotal.WithLabelValues(name).Inc()
}

func (d *Database) RecordDuration(name string, duration time.Duration, tags map[string]string) {
	dbDurationSeconds.WithLabelValues(name).Observe(duration.Seconds())
}

func (d *Database) SetGauge(name string, value float64, tags map[string]string) {
	dbGauges.WithLabelValues(name).Set(value)
}
