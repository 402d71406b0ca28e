// Package metrics exposes the process-wide Prometheus instruments: collector
// attempt outcomes, retry and breaker activity, sync run outcomes, and HTTP
// request durations. Instruments register on the default registry so callers
// record without wiring.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	collectorAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brewsignal",
		Subsystem: "collector",
		Name:      "attempts_total",
		Help:      "Collector fetch attempts by source and outcome.",
	}, []string{"source", "outcome"})

	collectorRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brewsignal",
		Subsystem: "collector",
		Name:      "retries_total",
		Help:      "Collector fetch retries by source.",
	}, []string{"source"})

	breakerOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brewsignal",
		Subsystem: "collector",
		Name:      "breaker_open_total",
		Help:      "Fetches rejected by an open circuit breaker, by source.",
	}, []string{"source"})

	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brewsignal",
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Sync service runs by source and run status.",
	}, []string{"source", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "brewsignal",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request durations by method, route, and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// CollectorAttempt records one finished fetch attempt. Outcome is "success"
// or an error kind.
func CollectorAttempt(source, outcome string) {
	collectorAttempts.WithLabelValues(source, outcome).Inc()
}

// CollectorRetry records one retry of a fetch.
func CollectorRetry(source string) {
	collectorRetries.WithLabelValues(source).Inc()
}

// BreakerOpen records a fetch rejected because the source breaker is open.
func BreakerOpen(source string) {
	breakerOpens.WithLabelValues(source).Inc()
}

// SyncRun records one sync service pass with its run status (ok|warn|down).
func SyncRun(source, status string) {
	syncRuns.WithLabelValues(source, status).Inc()
}

// ObserveHTTP records one served HTTP request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
