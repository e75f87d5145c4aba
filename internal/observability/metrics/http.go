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

	matchRequestsTotal  *prometheus.CounterVec
	matchUnmatchedItems *prometheus.HistogramVec
	ledgerPreviewsTotal *prometheus.CounterVec
	ledgerCommitsTotal  *prometheus.CounterVec
	ledgerEntriesTotal  *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mida",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mida",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mida",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	matchRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mida",
			Subsystem: "match",
			Name:      "requests_total",
			Help:      "Total invoice match requests by mode.",
		},
		[]string{"service", "mode"},
	)
	matchUnmatchedItems := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mida",
			Subsystem: "match",
			Name:      "unmatched_items",
			Help:      "Distribution of unmatched invoice lines per request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	ledgerPreviewsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mida",
			Subsystem: "ledger",
			Name:      "previews_total",
			Help:      "Total deduction batch previews.",
		},
		[]string{"service"},
	)
	ledgerCommitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mida",
			Subsystem: "ledger",
			Name:      "commits_total",
			Help:      "Total deduction batch commits by outcome.",
		},
		[]string{"service", "status"},
	)
	ledgerEntriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mida",
			Subsystem: "ledger",
			Name:      "entries_written_total",
			Help:      "Total ledger entries written by commits.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		matchRequestsTotal,
		matchUnmatchedItems,
		ledgerPreviewsTotal,
		ledgerCommitsTotal,
		ledgerEntriesTotal,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		matchRequestsTotal:  matchRequestsTotal,
		matchUnmatchedItems: matchUnmatchedItems,
		ledgerPreviewsTotal: ledgerPreviewsTotal,
		ledgerCommitsTotal:  ledgerCommitsTotal,
		ledgerEntriesTotal:  ledgerEntriesTotal,
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
	case strings.HasPrefix(path, "/v1/certificates/"):
		return "/v1/certificates/{certificate_id}"
	case strings.HasPrefix(path, "/v1/ledger/entries/"):
		return "/v1/ledger/entries/{entry_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordMatchRequest(service, mode string, unmatched int) {
	if mode == "" {
		mode = "unknown"
	}
	m.matchRequestsTotal.WithLabelValues(service, mode).Inc()
	m.matchUnmatchedItems.WithLabelValues(service).Observe(float64(unmatched))
}

func (m *HTTPServerMetrics) RecordLedgerPreview(service string) {
	m.ledgerPreviewsTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordLedgerCommit(service string, entriesWritten int, err error) {
	status := "committed"
	if err != nil {
		status = "rejected"
	}
	m.ledgerCommitsTotal.WithLabelValues(service, status).Inc()
	if entriesWritten > 0 {
		m.ledgerEntriesTotal.WithLabelValues(service).Add(float64(entriesWritten))
	}
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
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
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
