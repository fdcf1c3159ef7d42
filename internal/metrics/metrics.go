// Package metrics registers the process-wide Prometheus collectors shared
// by the rate governor, cache tiers, and provider adapters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registry holds every FinScope collector. Callers embedding FinScope
	// into a larger process can expose it however they like; the core
	// itself serves no metrics endpoint.
	Registry = prometheus.NewRegistry()

	RateLimitAdmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finscope",
		Subsystem: "ratelimit",
		Name:      "admitted_total",
		Help:      "Requests admitted through the sliding-window governor",
	}, []string{"limiter"})

	RateLimitThrottled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finscope",
		Subsystem: "ratelimit",
		Name:      "throttled_total",
		Help:      "Admissions that had to wait for a window slot",
	}, []string{"limiter"})

	RateLimitWaitSeconds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finscope",
		Subsystem: "ratelimit",
		Name:      "wait_seconds_total",
		Help:      "Cumulative time spent waiting for window slots",
	}, []string{"limiter"})

	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finscope",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Cache hits by tier (remote, local)",
	}, []string{"tier"})

	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "finscope",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Lookups that missed both tiers",
	})

	CacheRemoteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "finscope",
		Subsystem: "cache",
		Name:      "remote_errors_total",
		Help:      "Remote tier failures absorbed by local fallback",
	})

	ProviderRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finscope",
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Upstream requests by provider",
	}, []string{"provider"})

	ProviderErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finscope",
		Subsystem: "provider",
		Name:      "errors_total",
		Help:      "Upstream failures by provider and kind",
	}, []string{"provider", "kind"})
)

func init() {
	Registry.MustRegister(
		RateLimitAdmitted,
		RateLimitThrottled,
		RateLimitWaitSeconds,
		CacheHits,
		CacheMisses,
		CacheRemoteErrors,
		ProviderRequests,
		ProviderErrors,
	)
}
