package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Pipeline
	FramesProcessed   prometheus.Counter
	DetectionFailures prometheus.Counter
	SourceErrors      prometheus.Counter
	ActiveStreams     prometheus.Gauge

	// Alerting
	AlertsAccepted      *prometheus.CounterVec
	AlertsSuppressed    *prometheus.CounterVec
	SnapshotFailures    prometheus.Counter
	LedgerPersistErrors prometheus.Counter

	// Delivery
	Deliveries      *prometheus.CounterVec
	DispatchDropped prometheus.Counter

	registry *prometheus.Registry
}

// New creates a new Metrics instance backed by its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.FramesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shopwatch_frames_processed_total",
		Help: "Images run through the pipeline",
	})
	m.DetectionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shopwatch_detection_failures_total",
		Help: "Detector calls that failed or timed out",
	})
	m.SourceErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shopwatch_source_errors_total",
		Help: "Frame read errors from the live source",
	})
	m.ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shopwatch_active_streams",
		Help: "Live streams currently being served",
	})
	m.AlertsAccepted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopwatch_alerts_accepted_total",
		Help: "Alerts that passed the cooldown gate",
	}, []string{"origin"})
	m.AlertsSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopwatch_alerts_suppressed_total",
		Help: "Person detections that did not raise an alert",
	}, []string{"reason"})
	m.SnapshotFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shopwatch_snapshot_failures_total",
		Help: "Alert snapshots that could not be written",
	})
	m.LedgerPersistErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shopwatch_ledger_persist_errors_total",
		Help: "Alert entries kept in memory only",
	})
	m.Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopwatch_notifications_total",
		Help: "Notification attempts by channel and result",
	}, []string{"channel", "result"})
	m.DispatchDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shopwatch_dispatch_dropped_total",
		Help: "Alert jobs dropped because the queue was full",
	})

	m.registry.MustRegister(
		m.FramesProcessed,
		m.DetectionFailures,
		m.SourceErrors,
		m.ActiveStreams,
		m.AlertsAccepted,
		m.AlertsSuppressed,
		m.SnapshotFailures,
		m.LedgerPersistErrors,
		m.Deliveries,
		m.DispatchDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
