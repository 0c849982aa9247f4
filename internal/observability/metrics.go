package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "medride", Name: "ws_connections_open", Help: "Currently open websocket connections"})

	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "medride", Name: "events_emitted_total", Help: "Events fanned out, by event type"},
		[]string{"event"},
	)
	EventsDropped    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "medride", Name: "events_dropped_total", Help: "Events submitted before the broadcaster was ready"})
	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "medride", Name: "delivery_failures_total", Help: "Per-connection delivery failures treated as implicit disconnects"})

	SamplesAccepted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "medride", Name: "location_samples_accepted_total", Help: "Driver location samples accepted"})
	SamplesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "medride", Name: "location_samples_rejected_total", Help: "Driver location samples rejected, by reason"},
		[]string{"reason"},
	)
	RouteLookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "medride",
		Name:      "route_lookup_duration_seconds",
		Help:      "Routing collaborator latency",
		Buckets:   prometheus.DefBuckets,
	})
	RouteLookupErrors = promauto.NewCounter(prometheus.CounterOpts{Namespace: "medride", Name: "route_lookup_errors_total", Help: "Routing collaborator failures"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "medride", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medride",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
