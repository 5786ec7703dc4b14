// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/azure/social-mentions-monitor/internal/ingestion"
	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mentions"

// Metrics holds all Prometheus collectors for the monitor
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion
	Fetched       *prometheus.CounterVec
	Saved         *prometheus.CounterVec
	Duplicates    *prometheus.CounterVec
	AdapterErrors *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec

	// Classification
	Classifications        *prometheus.CounterVec
	ClassificationDuration prometheus.Histogram

	// Notifications
	AlertsSent *prometheus.CounterVec
}

var _ ingestion.Observer = (*Metrics)(nil)

// New creates the collectors on a private registry, along with the Go
// runtime and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Fetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "items_fetched_total",
			Help:      "Items returned by platform adapters",
		}, []string{"platform"}),
		Saved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "items_saved_total",
			Help:      "New items persisted",
		}, []string{"platform"}),
		Duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "items_duplicate_total",
			Help:      "Fetched items that were already stored",
		}, []string{"platform"}),
		AdapterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "adapter_errors_total",
			Help:      "Adapter calls that returned an error",
		}, []string{"platform"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of one adapter fetch",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
		}, []string{"platform"}),

		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "classifications_total",
			Help:      "Classifier results by outcome",
		}, []string{"outcome"}),
		ClassificationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "duration_seconds",
			Help:      "Duration of one item classification",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),

		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "alerts_total",
			Help:      "Urgent alerts by delivery status",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Fetched,
		m.Saved,
		m.Duplicates,
		m.AdapterErrors,
		m.FetchDuration,
		m.Classifications,
		m.ClassificationDuration,
		m.AlertsSent,
	)

	return m
}

// FetchCompleted records one adapter call
func (m *Metrics) FetchCompleted(platform models.Platform, items int, err error, elapsed time.Duration) {
	p := string(platform)
	m.Fetched.WithLabelValues(p).Add(float64(items))
	m.FetchDuration.WithLabelValues(p).Observe(elapsed.Seconds())
	if err != nil {
		m.AdapterErrors.WithLabelValues(p).Inc()
	}
}

// ItemPersisted records the gate's decision for one item
func (m *Metrics) ItemPersisted(platform models.Platform, saved bool) {
	if saved {
		m.Saved.WithLabelValues(string(platform)).Inc()
		return
	}
	m.Duplicates.WithLabelValues(string(platform)).Inc()
}

// ObserveClassification matches sentiment.Options.Observe
func (m *Metrics) ObserveClassification(outcome string, elapsed time.Duration) {
	m.Classifications.WithLabelValues(outcome).Inc()
	m.ClassificationDuration.Observe(elapsed.Seconds())
}

// AlertDelivered records whether an alert reached the notification channels
func (m *Metrics) AlertDelivered(err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.AlertsSent.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
