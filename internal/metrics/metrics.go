package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SolveRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solve_requests_total",
		Help: "Total number of /api/solve requests received.",
	})

	QuotaRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quota_rejected_total",
		Help: "Solve requests rejected by the free-tier quota.",
	})

	ProviderErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "provider_errors_total",
		Help: "Generation calls that failed upstream.",
	})

	ProviderDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "provider_duration_seconds",
		Help:    "Duration of a single provider chat-completion call.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
	})

	SolutionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solutions_created_total",
		Help: "Solution pages persisted.",
	})

	RateLimitDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_dropped_total",
		Help: "Requests rejected by the per-user burst limiter.",
	})
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		SolveRequestsTotal,
		QuotaRejectedTotal,
		ProviderErrorsTotal,
		ProviderDurationSeconds,
		SolutionsCreatedTotal,
		RateLimitDroppedTotal,
	)
}
