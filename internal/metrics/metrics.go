// Package metrics records per-run job metrics for Prometheus. A batch job
// has no scrape endpoint, so metrics are flushed to a node_exporter textfile
// and/or a Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/TobiSchelling/pulso/internal/normalize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "pulso"

// Recorder holds the metrics of one job invocation.
type Recorder struct {
	job  string
	task string
	reg  *prometheus.Registry

	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
	lastFailure prometheus.Gauge
	sources     *prometheus.GaugeVec
	rows        prometheus.Gauge
}

// New creates a recorder for task ("normalize" or "aggregate") of job.
func New(job, task string) *Recorder {
	r := &Recorder{job: job, task: task, reg: prometheus.NewRegistry()}

	r.duration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of the last run",
	})
	r.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run",
	})
	r.lastFailure = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_failure_timestamp_seconds",
		Help:      "Unix time of the last failed run",
	})
	r.sources = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sources",
		Help:      "Sources seen by the last normalization run, by outcome",
	}, []string{"outcome"})
	r.rows = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rows_normalized",
		Help:      "Rows normalized by the last run",
	})

	r.reg.MustRegister(r.duration, r.lastSuccess, r.lastFailure, r.sources, r.rows)
	return r
}

// ObserveRun records the timing and outcome of any run.
func (r *Recorder) ObserveRun(started time.Time, err error) {
	now := time.Now()
	r.duration.Set(now.Sub(started).Seconds())
	if err != nil {
		r.lastFailure.Set(float64(now.Unix()))
		return
	}
	r.lastSuccess.Set(float64(now.Unix()))
}

// ObserveNormalize records the per-source outcome of a normalization run.
func (r *Recorder) ObserveNormalize(res *normalize.Result) {
	if res == nil {
		return
	}
	processed := len(res.Sources) - res.Skipped()
	r.sources.WithLabelValues("normalized").Set(float64(processed))
	r.sources.WithLabelValues("skipped").Set(float64(res.Skipped()))
	r.rows.Set(float64(res.Normalized()))
}

// Flush writes the metrics to textfile and pushes them to pushURL; either may be empty.
func (r *Recorder) Flush(ctx context.Context, textfile, pushURL string) error {
	if textfile != "" {
		if err := prometheus.WriteToTextfile(textfile, r.reg); err != nil {
			return fmt.Errorf("writing metrics textfile: %w", err)
		}
	}
	if pushURL != "" {
		err := push.New(pushURL, r.job).
			Grouping("task", r.task).
			Gatherer(r.reg).
			PushContext(ctx)
		if err != nil {
			return fmt.Errorf("pushing metrics: %w", err)
		}
	}
	return nil
}
