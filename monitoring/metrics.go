package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标收集器
type Metrics struct {
	registry *prometheus.Registry

	predictions        *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	builds             *prometheus.CounterVec
	buildDuration      *prometheus.HistogramVec
	modelRecords       *prometheus.GaugeVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	wsClients          prometheus.Gauge
}

// NewMetrics 创建指标收集器, 每个实例使用独立的 registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "counsellor_predictions_total",
			Help: "Predictions served, by dataset and how the label was obtained",
		}, []string{"dataset", "source"}),
		validationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "counsellor_validation_failures_total",
			Help: "Input records rejected by validation",
		}, []string{"dataset"}),
		builds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "counsellor_model_builds_total",
			Help: "Model builds by dataset and result",
		}, []string{"dataset", "result"}),
		buildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "counsellor_model_build_duration_seconds",
			Help:    "Time spent growing a decision tree",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"dataset"}),
		modelRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "counsellor_model_training_records",
			Help: "Training records behind the published model",
		}, []string{"dataset"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "counsellor_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "counsellor_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		wsClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "counsellor_ws_clients",
			Help: "Connected model event subscribers",
		}),
	}
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ModelBuilt, BuildFailed, Predicted and ValidationFailed implement registry.Observer.

func (m *Metrics) ModelBuilt(dataset string, records int, took time.Duration) {
	m.builds.WithLabelValues(dataset, "ok").Inc()
	m.buildDuration.WithLabelValues(dataset).Observe(took.Seconds())
	m.modelRecords.WithLabelValues(dataset).Set(float64(records))
}

func (m *Metrics) BuildFailed(dataset string) {
	m.builds.WithLabelValues(dataset, "error").Inc()
}

func (m *Metrics) Predicted(dataset string, cached, fallback bool) {
	source := "tree"
	switch {
	case cached:
		source = "cache"
	case fallback:
		source = "fallback"
	}
	m.predictions.WithLabelValues(dataset, source).Inc()
}

func (m *Metrics) ValidationFailed(dataset string) {
	m.validationFailures.WithLabelValues(dataset).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, took time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
