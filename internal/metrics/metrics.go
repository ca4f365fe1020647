// Package metrics exposes lane and delivery counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"facelane/internal/jobs"
)

// Registry owns the facelane collectors.
type Registry struct {
	reg        *prometheus.Registry
	submitted  *prometheus.CounterVec
	started    *prometheus.CounterVec
	finished   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	queueDepth *prometheus.GaugeVec
	active     *prometheus.GaugeVec
	webhooks   *prometheus.CounterVec
}

// New registers the collectors on a private registry.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facelane",
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted into a lane.",
		}, []string{"lane"}),
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facelane",
			Name:      "jobs_started_total",
			Help:      "Jobs handed to the engine.",
		}, []string{"lane"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facelane",
			Name:      "jobs_finished_total",
			Help:      "Jobs that left a lane, by final status.",
		}, []string{"lane", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "facelane",
			Name:      "job_duration_seconds",
			Help:      "Wall time a lane spent on one job.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"lane"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "facelane",
			Name:      "lane_queue_depth",
			Help:      "Job ids waiting in a lane.",
		}, []string{"lane"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "facelane",
			Name:      "lane_active",
			Help:      "1 while a lane runs a job.",
		}, []string{"lane"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facelane",
			Name:      "webhook_deliveries_total",
			Help:      "Webhook delivery attempts by event and result.",
		}, []string{"event", "result"}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.submitted, r.started, r.finished, r.duration, r.queueDepth, r.active, r.webhooks,
	)
	for _, kind := range jobs.Kinds() {
		r.queueDepth.WithLabelValues(string(kind)).Set(0)
		r.active.WithLabelValues(string(kind)).Set(0)
	}
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// JobSubmitted counts a job entering a lane.
func (r *Registry) JobSubmitted(kind jobs.TargetKind) {
	r.submitted.WithLabelValues(string(kind)).Inc()
}

// QueueDepth records the waiting ids in a lane.
func (r *Registry) QueueDepth(kind jobs.TargetKind, depth int) {
	r.queueDepth.WithLabelValues(string(kind)).Set(float64(depth))
}

// JobStarted marks a lane busy.
func (r *Registry) JobStarted(kind jobs.TargetKind) {
	r.started.WithLabelValues(string(kind)).Inc()
	r.active.WithLabelValues(string(kind)).Set(1)
}

// JobFinished records the outcome of one dequeued job.
func (r *Registry) JobFinished(kind jobs.TargetKind, status jobs.Status, elapsed time.Duration) {
	r.finished.WithLabelValues(string(kind), string(status)).Inc()
	r.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	r.active.WithLabelValues(string(kind)).Set(0)
}

// WebhookDelivered counts a webhook attempt.
func (r *Registry) WebhookDelivered(event jobs.Event, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	r.webhooks.WithLabelValues(string(event), result).Inc()
}
