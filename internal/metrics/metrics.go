package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recallbox_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recallbox_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AccessDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recallbox_access_decisions_total",
			Help: "Access gate decisions by reason.",
		},
		[]string{"reason"},
	)

	UsageIncrementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recallbox_usage_increments_total",
			Help: "Usage counter increments by path (atomic or fallback).",
		},
		[]string{"path"},
	)

	UsageFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recallbox_usage_fallbacks_total",
			Help: "Usage operations that fell back past the atomic procedure.",
		},
		[]string{"op"},
	)

	EntitlementResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recallbox_entitlement_resolutions_total",
			Help: "Entitlement resolutions by the path that produced the answer (rest, query, none).",
		},
		[]string{"path"},
	)

	AdminRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recallbox_admin_rate_limited_total",
			Help: "Privileged administrative operations denied by the rate ceiling.",
		},
	)

	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recallbox_generations_total",
			Help: "AI generations by outcome.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AccessDecisionsTotal,
		UsageIncrementsTotal,
		UsageFallbacksTotal,
		EntitlementResolutionsTotal,
		AdminRateLimitedTotal,
		GenerationsTotal,
	)
}
