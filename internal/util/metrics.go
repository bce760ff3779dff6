package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BreakdownValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "breakdown_validations_total",
		Help: "Total number of breakdown validations by outcome",
	}, []string{"outcome"})

	CatalogLoadLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_load_latency_seconds",
		Help:    "Latency of loading a category configuration from storage",
		Buckets: prometheus.DefBuckets,
	})

	CatalogCacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_requests_total",
		Help: "Catalog cache lookups by result",
	}, []string{"result"})

	InventoryReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_reserve_latency_seconds",
		Help:    "Latency of inventory reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	InventoryReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_total",
		Help: "Total number of inventory reservation attempts by outcome",
	}, []string{"outcome"})

	ReservationsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reservations_purged_total",
		Help: "Total number of expired reservation rows removed",
	})

	SessionOrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_orders_created_total",
		Help: "Total number of session orders created or found",
	})

	CheckoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_total",
		Help: "Total number of configuration checkouts by outcome",
	}, []string{"outcome"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Total number of domain events published by type and result",
	}, []string{"event_type", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
