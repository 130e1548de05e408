// Package metrics exports backup and restore outcomes to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quill/internal/quill"
)

// Collector records backup and restore results. It implements
// quill.Observer.
type Collector struct {
	registry *prometheus.Registry

	backupsTotal     *prometheus.CounterVec
	backupDuration   *prometheus.HistogramVec
	artifactBytes    *prometheus.GaugeVec
	lastSuccess      *prometheus.GaugeVec
	restoresTotal    *prometheus.CounterVec
	chaptersRestored prometheus.Counter
}

var _ quill.Observer = (*Collector)(nil)

// NewCollector registers the quill metrics on a private registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		// backupsTotal counts finished backup runs by kind and outcome.
		backupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_backups_total",
			Help: "Total number of backup runs by kind and result",
		}, []string{"kind", "result"}),

		backupDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quill_backup_duration_seconds",
			Help:    "Backup run duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		artifactBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quill_backup_artifact_bytes",
			Help: "Size of the most recent artifact of each kind",
		}, []string{"kind"}),

		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quill_backup_last_success_timestamp_seconds",
			Help: "Unix time of the last backup that wrote an artifact",
		}, []string{"kind"}),

		restoresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_restores_total",
			Help: "Total number of restores by result and rollback status",
		}, []string{"result", "rollback"}),

		chaptersRestored: factory.NewCounter(prometheus.CounterOpts{
			Name: "quill_chapters_restored_total",
			Help: "Total number of chapters written by restores",
		}),
	}
}

// BackupFinished implements quill.Observer.
func (c *Collector) BackupFinished(res quill.Result) {
	kind := res.Kind.String()
	c.backupsTotal.WithLabelValues(kind, backupOutcome(res)).Inc()
	if res.Duration > 0 {
		c.backupDuration.WithLabelValues(kind).Observe(res.Duration.Seconds())
	}
	if res.Success && res.Filename != "" {
		c.artifactBytes.WithLabelValues(kind).Set(float64(res.Size))
		c.lastSuccess.WithLabelValues(kind).SetToCurrentTime()
	}
}

// RestoreFinished implements quill.Observer.
func (c *Collector) RestoreFinished(res quill.RestoreResult) {
	result := "failure"
	if res.Success {
		result = "success"
	}
	rollback := string(res.Rollback)
	if rollback == "" {
		rollback = string(quill.RollbackNone)
	}
	c.restoresTotal.WithLabelValues(result, rollback).Inc()
	c.chaptersRestored.Add(float64(res.ChaptersRestored))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func backupOutcome(res quill.Result) string {
	switch {
	case !res.Success:
		return "failure"
	case res.Skipped:
		return "skipped"
	default:
		return "success"
	}
}
