package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	sightingTotal    *prometheus.CounterVec
	sightingDuration *prometheus.HistogramVec
	sightingInFlight prometheus.Gauge
	eventLag         *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	sightingTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pf",
			Subsystem: "worker",
			Name:      "sighting_process_total",
			Help:      "Total processed match events by status.",
		},
		[]string{"service", "status"},
	)
	sightingDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pf",
			Subsystem: "worker",
			Name:      "sighting_process_duration_seconds",
			Help:      "Match event processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	sightingInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pf",
			Subsystem: "worker",
			Name:      "sighting_process_in_flight",
			Help:      "Number of in-flight match event handlers.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pf",
			Subsystem: "worker",
			Name:      "event_lag_seconds",
			Help:      "Delay between match emission and worker processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service"},
	)

	registry.MustRegister(sightingTotal, sightingDuration, sightingInFlight, eventLag)

	return &WorkerMetrics{
		registry:         registry,
		sightingTotal:    sightingTotal,
		sightingDuration: sightingDuration,
		sightingInFlight: sightingInFlight,
		eventLag:         eventLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartEvent() {
	m.sightingInFlight.Inc()
}

func (m *WorkerMetrics) FinishEvent(service string, duration time.Duration, err error) {
	m.sightingInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.sightingTotal.WithLabelValues(service, status).Inc()
	m.sightingDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveEventLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.eventLag.WithLabelValues(service).Observe(lag.Seconds())
}
