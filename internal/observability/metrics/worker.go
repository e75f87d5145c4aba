package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal     *prometheus.CounterVec
	processDuration  *prometheus.HistogramVec
	processInFlight  prometheus.Gauge
	queueLag         *prometheus.HistogramVec
	parsingModeTotal *prometheus.CounterVec
	expiredTotal     *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mida",
			Subsystem: "worker",
			Name:      "certificate_process_total",
			Help:      "Total processed certificates by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mida",
			Subsystem: "worker",
			Name:      "certificate_process_duration_seconds",
			Help:      "Certificate processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mida",
			Subsystem: "worker",
			Name:      "certificate_process_in_flight",
			Help:      "Number of in-flight certificate extractions.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mida",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between certificate upload and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	parsingModeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mida",
			Subsystem: "worker",
			Name:      "parsing_mode_total",
			Help:      "Extractions by the parsing mode that produced items.",
		},
		[]string{"service", "mode"},
	)
	expiredTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mida",
			Subsystem: "worker",
			Name:      "certificates_expired_total",
			Help:      "Certificates marked expired by the sweep.",
		},
		[]string{"service"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, parsingModeTotal, expiredTotal)

	return &WorkerMetrics{
		registry:         registry,
		processTotal:     processTotal,
		processDuration:  processDuration,
		processInFlight:  processInFlight,
		queueLag:         queueLag,
		parsingModeTotal: parsingModeTotal,
		expiredTotal:     expiredTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartCertificate() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishCertificate(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordParsingMode(service, mode string) {
	if mode == "" {
		mode = "none"
	}
	m.parsingModeTotal.WithLabelValues(service, mode).Inc()
}

func (m *WorkerMetrics) RecordExpired(service string, count int) {
	if count <= 0 {
		return
	}
	m.expiredTotal.WithLabelValues(service).Add(float64(count))
}
