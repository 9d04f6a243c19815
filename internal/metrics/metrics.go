package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	backendReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medgateway",
			Name:      "backend_requests_total",
			Help:      "Total backend calls by backend, route and result",
		},
		[]string{"backend", "route", "result"},
	)

	backendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medgateway",
			Name:      "backend_request_duration_seconds",
			Help:      "Duration of backend calls by backend and route",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"backend", "route"},
	)

	fallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medgateway",
			Name:      "vision_fallbacks_total",
			Help:      "Image requests served by the text-only path, by reason (unavailable, vision_error, timeout)",
		},
		[]string{"reason"},
	)

	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medgateway",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path and status code",
		},
		[]string{"method", "path", "status"},
	)

	inputChars = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medgateway",
			Name:      "prompt_payload_chars",
			Help:      "Characters of prompts sent to the text backend, by route",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000},
		},
		[]string{"route"},
	)

	visionAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "medgateway",
			Name:      "vision_available",
			Help:      "Whether the vision backend initialized (1) or not (0)",
		},
	)

	visionInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "medgateway",
			Name:      "vision_inflight",
			Help:      "Vision forward passes currently holding the inference gate",
		},
	)

	registerOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(backendReqs, backendLatency, fallbacks, httpReqs, inputChars, visionAvailable, visionInflight)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveBackend(backend, route, result string, dur time.Duration) {
	backendReqs.WithLabelValues(backend, route, result).Inc()
	backendLatency.WithLabelValues(backend, route).Observe(dur.Seconds())
}

func IncFallback(reason string) { fallbacks.WithLabelValues(reason).Inc() }

func ObserveHTTP(method, path, status string) { httpReqs.WithLabelValues(method, path, status).Inc() }

func ObservePayload(route string, chars int) {
	inputChars.WithLabelValues(route).Observe(float64(chars))
}

func SetVisionAvailable(ok bool) {
	if ok {
		visionAvailable.Set(1)
		return
	}
	visionAvailable.Set(0)
}

func SetVisionInflight(n int) { visionInflight.Set(float64(n)) }
