package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	framesProcessedTotal  *prometheus.CounterVec
	personsDetected       *prometheus.HistogramVec
	matchesEmittedTotal   *prometheus.CounterVec
	matchesThrottledTotal *prometheus.CounterVec
	activeStreamSessions  prometheus.Gauge
	faceUploadsTotal      *prometheus.CounterVec
	inferenceDuration     *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pf",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pf",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pf",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	framesProcessedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pf",
			Subsystem: "pipeline",
			Name:      "frames_processed_total",
			Help:      "Total frames run through the matching pipeline.",
		},
		[]string{"service", "source"},
	)
	personsDetected := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pf",
			Subsystem: "pipeline",
			Name:      "persons_detected",
			Help:      "Distribution of detected persons per frame.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "source"},
	)
	matchesEmittedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pf",
			Subsystem: "pipeline",
			Name:      "matches_emitted_total",
			Help:      "Total match events delivered to stream clients.",
		},
		[]string{"service"},
	)
	matchesThrottledTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pf",
			Subsystem: "pipeline",
			Name:      "matches_throttled_total",
			Help:      "Total match events suppressed by the dedupe window.",
		},
		[]string{"service"},
	)
	activeStreamSessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pf",
			Subsystem: "stream",
			Name:      "active_sessions",
			Help:      "Number of connected video stream sessions.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	faceUploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pf",
			Subsystem: "gallery",
			Name:      "face_uploads_total",
			Help:      "Total missing person uploads by outcome.",
		},
		[]string{"service", "status"},
	)
	inferenceDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pf",
			Subsystem: "pipeline",
			Name:      "inference_duration_seconds",
			Help:      "Model inference duration in seconds by stage.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"service", "stage"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		framesProcessedTotal,
		personsDetected,
		matchesEmittedTotal,
		matchesThrottledTotal,
		activeStreamSessions,
		faceUploadsTotal,
		inferenceDuration,
	)

	return &HTTPServerMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		framesProcessedTotal:  framesProcessedTotal,
		personsDetected:       personsDetected,
		matchesEmittedTotal:   matchesEmittedTotal,
		matchesThrottledTotal: matchesThrottledTotal,
		activeStreamSessions:  activeStreamSessions,
		faceUploadsTotal:      faceUploadsTotal,
		inferenceDuration:     inferenceDuration,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/face/case/") && strings.HasSuffix(path, "/sightings"):
		return "/api/face/case/{person_id}/sightings"
	case strings.HasPrefix(path, "/api/face/case/"):
		return "/api/face/case/{person_id}/status"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordFrame(service, source string, detected int) {
	m.framesProcessedTotal.WithLabelValues(service, source).Inc()
	m.personsDetected.WithLabelValues(service, source).Observe(float64(detected))
}

func (m *HTTPServerMetrics) RecordMatchEmitted(service string) {
	m.matchesEmittedTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordMatchThrottled(service string) {
	m.matchesThrottledTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) SessionStarted() {
	m.activeStreamSessions.Inc()
}

func (m *HTTPServerMetrics) SessionEnded() {
	m.activeStreamSessions.Dec()
}

func (m *HTTPServerMetrics) RecordFaceUpload(service string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.faceUploadsTotal.WithLabelValues(service, status).Inc()
}

func (m *HTTPServerMetrics) ObserveInference(service, stage string, duration time.Duration) {
	m.inferenceDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
