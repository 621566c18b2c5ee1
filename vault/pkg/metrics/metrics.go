package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokenvault_build_info",
			Help: "Build information of the token vault",
		},
		[]string{"version", "commit", "date"},
	)

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenvault_transitions_total",
			Help: "Total number of vault transitions by operation and outcome",
		},
		[]string{"op", "status"},
	)

	TransitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenvault_transition_duration_seconds",
			Help:    "Duration of vault transitions",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100µs to ~410ms
		},
		[]string{"op"},
	)

	VaultCustodyLamports = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tokenvault_custody_lamports",
			Help: "Spendable lamports held by the vault",
		},
	)

	VaultRevenueLamports = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tokenvault_revenue_lamports",
			Help: "Total lamports ever deposited into the vault",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenvault_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenvault_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenvault_rpc_requests_total",
			Help: "Total number of Solana RPC requests made by the chain reader",
		},
		[]string{"method", "status"},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordTransition records the outcome of a vault transition. status is the error
// kind name, "success", or "error" for failures outside the program taxonomy.
func RecordTransition(op, status string, duration time.Duration) {
	TransitionsTotal.WithLabelValues(op, status).Inc()
	TransitionDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordRPCRequest records a chain reader RPC call.
func RecordRPCRequest(method string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RPCRequestsTotal.WithLabelValues(method, status).Inc()
}
