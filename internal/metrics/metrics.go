package metrics

import (
	"github.com/Brownie44l1/classify-api/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	RequestCount      *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	InferenceDuration prometheus.Histogram
	Predictions       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			}, []string{"path", "method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"path"},
		),
		InferenceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "inference_duration_seconds",
				Help:    "Time from decode start to model output for successful predictions",
				Buckets: prometheus.DefBuckets,
			},
		),
		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictions_total",
				Help: "Prediction requests by outcome",
			}, []string{"outcome"},
		),
	}

	reg.MustRegister(m.RequestCount, m.RequestDuration, m.InferenceDuration, m.Predictions)
	return m
}

// RegisterPool exposes session pool usage read from stats at scrape time.
func RegisterPool(reg prometheus.Registerer, stats func() model.PoolStats) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "model_sessions",
			Help: "Number of model sessions in the pool",
		}, func() float64 { return float64(stats().Size) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "model_sessions_in_use",
			Help: "Number of model sessions currently running a prediction",
		}, func() float64 { return float64(stats().InUse) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "model_session_acquire_failures_total",
			Help: "Predictions that could not get a model session",
		}, func() float64 { return float64(stats().AcquireFailures) }),
	)
}
