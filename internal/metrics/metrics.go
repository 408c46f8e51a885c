// Package metrics records run outcomes as Prometheus metrics.
//
// Metric naming follows Prometheus conventions:
//   - alertsync_ prefix for all metrics
//   - _total suffix for counters
//   - _seconds suffix for durations and timestamps
//
// The registry is served on /metrics in serve mode and can also be written
// to a node_exporter textfile after every run.
package metrics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alertsync/alertsync/internal/pipeline"
)

// Recorder is a pipeline.Observer that updates a private registry.
type Recorder struct {
	reg      *prometheus.Registry
	textfile string

	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	routes          prometheus.Gauge
	fetchAttempts   prometheus.Gauge
	alertFiles      *prometheus.GaugeVec
	collisions      prometheus.Gauge
	prunedTotal     prometheus.Counter
	commitsTotal    prometheus.Counter
	publishAttempts prometheus.Counter
	publishFailures prometheus.Counter
	lastRun         prometheus.Gauge
	lastSuccess     prometheus.Gauge
}

// NewRecorder creates a Recorder. When textfile is non-empty the registry is
// written there after every observed run.
func NewRecorder(textfile string) *Recorder {
	r := &Recorder{
		reg:      prometheus.NewRegistry(),
		textfile: textfile,

		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertsync_runs_total",
			Help: "Total pipeline runs by final status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertsync_run_duration_seconds",
			Help:    "Duration of pipeline runs in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		routes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alertsync_routes",
			Help: "Routes discovered by the last run.",
		}),
		fetchAttempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alertsync_fetch_attempts",
			Help: "HTTP attempts made by the last inventory fetch.",
		}),
		alertFiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alertsync_alert_files",
			Help: "Alert files written by the last run, by change.",
		}, []string{"change"}),
		collisions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alertsync_key_collisions",
			Help: "File keys shared by more than one route in the last run.",
		}),
		prunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertsync_pruned_files_total",
			Help: "Orphaned alert files removed.",
		}),
		commitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertsync_commits_total",
			Help: "Commits created on the alert branch.",
		}),
		publishAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertsync_publish_attempts_total",
			Help: "Push attempts, including retries.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertsync_publish_failures_total",
			Help: "Runs whose publish gave up.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alertsync_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alertsync_last_success_timestamp_seconds",
			Help: "Unix time the last successful run finished.",
		}),
	}

	r.reg.MustRegister(
		r.runsTotal, r.runDuration, r.routes, r.fetchAttempts, r.alertFiles,
		r.collisions, r.prunedTotal, r.commitsTotal, r.publishAttempts,
		r.publishFailures, r.lastRun, r.lastSuccess,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Observe implements pipeline.Observer.
func (r *Recorder) Observe(_ context.Context, res *pipeline.Result) {
	r.runsTotal.WithLabelValues(string(res.Status)).Inc()
	r.runDuration.Observe(res.Duration().Seconds())
	r.lastRun.Set(float64(res.FinishedAt.Unix()))

	if res.Status != pipeline.StatusFailed {
		r.routes.Set(float64(res.Routes))
		r.fetchAttempts.Set(float64(res.FetchAttempts))
		r.alertFiles.WithLabelValues("created").Set(float64(res.FilesCreated))
		r.alertFiles.WithLabelValues("updated").Set(float64(res.FilesUpdated))
		r.alertFiles.WithLabelValues("unchanged").Set(float64(res.FilesUnchanged))
		r.collisions.Set(float64(res.Collisions))
	}
	r.prunedTotal.Add(float64(len(res.Pruned)))
	if res.Committed {
		r.commitsTotal.Inc()
	}
	r.publishAttempts.Add(float64(res.PublishAttempts))
	if res.PublishErr != nil {
		r.publishFailures.Inc()
	}
	if res.Status == pipeline.StatusSuccess {
		r.lastSuccess.Set(float64(res.FinishedAt.Unix()))
	}

	if r.textfile == "" {
		return
	}
	if err := WriteTextfile(r.reg, r.textfile); err != nil {
		slog.Error("metrics: write textfile failed", "path", r.textfile, "err", err)
	}
}
