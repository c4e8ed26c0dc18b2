package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the access ledger and its HTTP surface.
var (
	EventsAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parking_events_appended_total",
			Help: "Total number of access events appended, by movement",
		},
		[]string{"movement"},
	)

	AppendRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parking_append_rejected_total",
			Help: "Total number of rejected appends, by error code",
		},
		[]string{"code"},
	)

	LedgerInconsistencyTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parking_ledger_inconsistency_total",
			Help: "Vehicles found open without a matching entry event",
		},
	)

	StayDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parking_stay_duration_seconds",
			Help:    "Stay duration computed for exit events",
			Buckets: []float64{60, 300, 900, 1800, 3600, 2 * 3600, 4 * 3600, 8 * 3600, 24 * 3600},
		},
	)

	RegistrySyncedVehiclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parking_registry_synced_vehicles_total",
			Help: "Total number of vehicles upserted by the registry sync",
		},
	)

	PushSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parking_push_sent_total",
			Help: "Web push deliveries, by result",
		},
		[]string{"result"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parking_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parking_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

var registerOnce sync.Once

// Register registers all Prometheus metrics with the default registry.
// Repeated calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(EventsAppendedTotal)
		prometheus.MustRegister(AppendRejectedTotal)
		prometheus.MustRegister(LedgerInconsistencyTotal)
		prometheus.MustRegister(StayDurationSeconds)
		prometheus.MustRegister(RegistrySyncedVehiclesTotal)
		prometheus.MustRegister(PushSentTotal)
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
	})
}
