// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"method", "route", "status"},
	)

	validationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordinate_validation_failures_total",
			Help: "Rejected building coordinates by reason.",
		},
		[]string{"reason"},
	)

	nearbyResolveSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nearby_resolve_seconds",
			Help:    "Time spent resolving nearby points of interest for one location.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	nearbyCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nearby_cache_results_total",
			Help: "Nearby-POI cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	storeReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geo_store_reloads_total",
			Help: "Reference data reloads by outcome.",
		},
		[]string{"outcome"},
	)

	storeFeatures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geo_store_features",
			Help: "Features in the current geometry snapshot.",
		},
		[]string{"kind"},
	)
)

func Handler() http.Handler { return promhttp.Handler() }

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ObserveHTTP(r.Method, route, status, time.Since(start).Seconds())
	})
}

func ValidationFailure(reason string) { validationFailures.WithLabelValues(reason).Inc() }

func ObserveResolve(d time.Duration) { nearbyResolveSeconds.Observe(d.Seconds()) }

func CacheResult(outcome string) { nearbyCacheResults.WithLabelValues(outcome).Inc() }

func StoreReload(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	storeReloads.WithLabelValues(outcome).Inc()
}

func SetStoreFeatures(kind string, n int) { storeFeatures.WithLabelValues(kind).Set(float64(n)) }
