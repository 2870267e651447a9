// Package metrics exposes scheduler activity as Prometheus metrics and
// serves them, with health and status endpoints, over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cronkeep/internal/runner"
)

const namespace = "cronkeep"

// Collector implements scheduler.Recorder. Each Collector owns its registry
// so tests and multiple instances never collide on the default one.
type Collector struct {
	reg *prometheus.Registry

	ticks       *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	markerFails *prometheus.CounterVec
	storeErrors *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Scheduler ticks, by skip reason (empty when the tick ran).",
		}, []string{"skipped"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Gate evaluations by job and reason.",
		}, []string{"job", "reason"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Job attempts by outcome (succeeded, failed, skipped, error).",
		}, []string{"job", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of job attempts.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"job"}),
		markerFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marker_write_failures_total",
			Help:      "Runs whose period marker could not be persisted.",
		}, []string{"job"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Marker store failures seen while gating or recording a job.",
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful attempt.",
		}, []string{"job"}),
	}
	c.reg.MustRegister(
		c.ticks, c.decisions, c.runs, c.runDuration, c.markerFails, c.storeErrors, c.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

func (c *Collector) TickObserved(skipped string) {
	c.ticks.WithLabelValues(skipped).Inc()
}

func (c *Collector) DecisionObserved(jobID, reason string) {
	c.decisions.WithLabelValues(jobID, reason).Inc()
}

func (c *Collector) StoreErrorObserved(jobID string) {
	c.storeErrors.WithLabelValues(jobID).Inc()
}

func (c *Collector) ResultObserved(res runner.Result) {
	outcome := "error"
	switch {
	case res.Skipped != "":
		outcome = "skipped"
	case res.Ran && res.Succeeded:
		outcome = "succeeded"
	case res.Ran:
		outcome = "failed"
	}
	c.runs.WithLabelValues(res.JobID, outcome).Inc()
	if res.Ran {
		c.runDuration.WithLabelValues(res.JobID).Observe(res.Duration.Seconds())
	}
	if res.Ran && res.Succeeded {
		c.lastSuccess.WithLabelValues(res.JobID).Set(float64(res.Started.Unix()))
	}
	if res.Ran && res.Err != nil {
		c.markerFails.WithLabelValues(res.JobID).Inc()
	}
}
