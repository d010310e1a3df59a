package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the relay
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Connections tracks currently open relay connections
	Connections = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "relay_connections", Help: "Currently open relay connections."},
	)
	// Messages counts inbound relay messages by type
	Messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_messages_total", Help: "Inbound relay messages by type."},
		[]string{"type"},
	)
	// Broadcasts counts fan-out deliveries by outcome
	Broadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_broadcast_deliveries_total", Help: "Broadcast deliveries by outcome."},
		[]string{"outcome"},
	)
	// LocationReports counts ingest outcomes
	LocationReports = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "location_reports_total", Help: "Location ingest reports by status."},
		[]string{"status"},
	)
	// ChangeEvents counts change-feed events relayed per organization
	ChangeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_change_events_total", Help: "Change-feed events relayed."},
		[]string{"table"},
	)
)

// RegisterDefault registers collectors to the relay registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Connections)
		Registry.MustRegister(Messages)
		Registry.MustRegister(Broadcasts)
		Registry.MustRegister(LocationReports)
		Registry.MustRegister(ChangeEvents)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
