package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCommittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sales_committed_total",
		Help: "Total number of committed sales",
	}, []string{"method"})

	CheckoutRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_checkout_rejections_total",
		Help: "Checkout attempts rejected before any write",
	}, []string{"reason"})

	CheckoutFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_checkout_failures_total",
		Help: "Checkout attempts that failed while persisting",
	}, []string{"step"})

	SagaStepLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_saga_step_latency_seconds",
		Help:    "Latency of each checkout persistence step",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})

	CompensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_saga_compensations_total",
		Help: "Compensating actions run after a failed checkout",
	}, []string{"step", "outcome"})

	StockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_stock_conflicts_total",
		Help: "Stock compare-and-set attempts that lost to a concurrent writer",
	})

	LoyaltyPointsAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_loyalty_points_awarded_total",
		Help: "Loyalty points credited to customers",
	})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_events_published_total",
		Help: "Sale events published, by type and result",
	}, []string{"type", "result"})

	CatalogCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_catalog_cache_requests_total",
		Help: "Catalog cache lookups by result",
	}, []string{"result"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_active_sessions",
		Help: "Open checkout sessions",
	})

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
