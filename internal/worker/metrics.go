package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	jobsTotal            *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	activeJobs           prometheus.Gauge
	fallbacksTotal       *prometheus.CounterVec
	webhookFailuresTotal prometheus.Counter
	pixelsProcessedTotal prometheus.Counter
	bytesSavedTotal      prometheus.Counter
	computeTimeMSTotal   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventdesk_worker_uploads_total",
			Help: "Upload jobs handled by the worker, by folder and outcome.",
		}, []string{"folder", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventdesk_worker_upload_duration_seconds",
			Help:    "Time from pickup to completion for each upload job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"folder", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventdesk_worker_active_uploads",
			Help: "Upload jobs currently holding a worker slot.",
		}),
		fallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventdesk_normalize_fallbacks_total",
			Help: "Images uploaded as originals because normalization failed.",
		}, []string{"folder"}),
		webhookFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventdesk_worker_webhook_failures_total",
			Help: "Webhook deliveries that exhausted their retries.",
		}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventdesk_usage_pixels_processed_total",
			Help: "Pixels written by the normalizer across successful uploads.",
		}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventdesk_usage_bytes_saved_total",
			Help: "Bytes saved by normalization across successful uploads.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventdesk_usage_compute_time_ms_total",
			Help: "Milliseconds spent on successful uploads.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.fallbacksTotal,
		m.webhookFailuresTotal,
		m.pixelsProcessedTotal,
		m.bytesSavedTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
