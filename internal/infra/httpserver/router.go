package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bryanwahyu/compliance-pulse/internal/metrics"
	"github.com/bryanwahyu/compliance-pulse/internal/middleware"
)

// Options wires the ops endpoints.
type Options struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Checkers  map[string]middleware.HealthChecker
	Readiness *middleware.Readiness
	// Token protects /health and /metrics when set.
	Token string
}

// NewRouter returns the ops router: /health, /ready, /live and /metrics.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Logging(logger))
	mux.Use(middleware.Metrics(opts.Metrics))
	mux.Use(middleware.BearerToken(opts.Token, "/live", "/ready"))

	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/ready", middleware.ReadinessHandler(opts.Readiness))
	mux.Get("/health", middleware.HealthHandler(opts.Checkers))
	mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}
