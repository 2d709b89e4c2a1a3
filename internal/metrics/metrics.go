package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "market_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "route"})
)

// Broadcast metrics
var (
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "market_ws_subscribers",
		Help: "Number of live subscriptions",
	})

	EventsDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_events_delivered_total",
		Help: "Total number of events queued to subscriptions",
	}, []string{"type"})

	SlowConsumersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_slow_consumers_total",
		Help: "Subscriptions dropped because their queue was full",
	})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_ws_requests_total",
		Help: "Total number of client requests by type and outcome",
	}, []string{"type", "outcome"})
)

// Cache metrics
var (
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_cache_hits_total",
		Help: "Entity cache hits",
	}, []string{"kind"})

	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_cache_misses_total",
		Help: "Entity cache misses",
	}, []string{"kind"})
)

// Moderation and quota metrics
var (
	ModerationTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_moderation_transitions_total",
		Help: "Post status transitions",
	}, []string{"to"})

	ReportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_reports_total",
		Help: "Accepted complaints",
	})

	QuotaRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_quota_rejections_total",
		Help: "Create attempts refused by the daily quota",
	})

	WindowRestrictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_window_restrictions_total",
		Help: "Group members restricted for overflowing the message window",
	})

	WindowEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "market_window_entries",
		Help: "Tracked chat activity windows",
	})

	GroupComplaintDeletionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_group_complaint_deletions_total",
		Help: "Group messages deleted after reaching the complaint threshold",
	})
)
