package routes

import (
	"net/http"

	"github.com/Brownie44l1/classify-api/internal/config"
	"github.com/Brownie44l1/classify-api/internal/handlers"
	"github.com/Brownie44l1/classify-api/internal/metrics"
	"github.com/Brownie44l1/classify-api/internal/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// New registers the API endpoints and wraps them with request id, access
// logging and CORS middleware.
func New(h *handlers.Handler, cfg *config.Config, logger *log.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/predict", h.Predict).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	logging := middleware.Logging(logger, m)
	r.Use(middleware.RequestID, logging, middleware.CORS(cfg.CORSOrigin))

	// The router does not run Use middleware for unmatched requests.
	r.NotFoundHandler = middleware.RequestID(logging(http.HandlerFunc(h.NotFound)))
	r.MethodNotAllowedHandler = middleware.RequestID(logging(http.HandlerFunc(h.MethodNotAllowed)))

	return r
}
