// Package metrics provides Prometheus instrumentation for claimrisk.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claimrisk",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status class.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "claimrisk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AnalysesTotal counts freshly computed analyses by risk level.
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claimrisk",
			Name:      "analyses_total",
			Help:      "Total claim analyses computed, by risk level.",
		},
		[]string{"risk_level"},
	)

	// AnalysisDuration observes pipeline latency for fresh analyses.
	AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "claimrisk",
			Name:      "analysis_duration_seconds",
			Help:      "Time to compute one claim analysis.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// AnalysisFailuresTotal counts analyses that returned an error, by stage.
	AnalysisFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claimrisk",
			Name:      "analysis_failures_total",
			Help:      "Total failed analyses by pipeline stage.",
		},
		[]string{"stage"},
	)

	// CacheRequestsTotal counts analysis cache lookups by result (hit or miss).
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claimrisk",
			Name:      "cache_requests_total",
			Help:      "Analysis cache lookups by result.",
		},
		[]string{"result"},
	)

	// RuleFlagsTotal counts raised rule flags by rule id.
	RuleFlagsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claimrisk",
			Name:      "rule_flags_total",
			Help:      "Rule flags raised, by rule id.",
		},
		[]string{"rule_id"},
	)

	// BenfordAnomaliesTotal counts analyses whose amounts deviated from Benford's law.
	BenfordAnomaliesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "claimrisk",
		Name:      "benford_anomalies_total",
		Help:      "Analyses with an anomalous first-digit distribution.",
	})

	// AlertsPublishedTotal counts alert events sent for high and critical claims.
	AlertsPublishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "claimrisk",
		Name:      "alerts_published_total",
		Help:      "Alert events published for high and critical claims.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AnalysesTotal,
		AnalysisDuration,
		AnalysisFailuresTotal,
		CacheRequestsTotal,
		RuleFlagsTotal,
		BenfordAnomaliesTotal,
		AlertsPublishedTotal,
	)
}

// ObserveAnalysis records a freshly computed result.
func ObserveAnalysis(result *domain.AnalysisResult, elapsed time.Duration) {
	AnalysesTotal.WithLabelValues(string(result.RiskScore.RiskLevel)).Inc()
	AnalysisDuration.Observe(elapsed.Seconds())
	for _, flag := range result.RuleBasedFlags {
		RuleFlagsTotal.WithLabelValues(flag.RuleID).Inc()
	}
	if result.BenfordAnalysis.IsAnomalous {
		BenfordAnomaliesTotal.Inc()
	}
}

// ObserveCache records a cache lookup.
func ObserveCache(hit bool) {
	if hit {
		CacheRequestsTotal.WithLabelValues("hit").Inc()
		return
	}
	CacheRequestsTotal.WithLabelValues("miss").Inc()
}

// Middleware records request metrics labelled with the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, statusBucket(status)).Inc()
	})
}

// Handler returns the Prometheus metrics HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusBucket groups HTTP status codes into classes.
func statusBucket(code int) string {
	if code < 100 || code > 599 {
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code/100) + "xx"
}
