// Package metrics exports the outcome of backup runs in the node_exporter
// textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"zbackup/internal/model"
	"zbackup/internal/zb"
)

const namespace = "zbackup"

var (
	phases   = []zb.Phase{zb.PhaseExpire, zb.PhaseCap, zb.PhaseReclaim}
	statuses = []string{model.RunStatusSuccess, model.RunStatusNothing, model.RunStatusFailed}
)

// RunMetrics holds the gauges describing the last run.
type RunMetrics struct {
	LastRunGauge         prometheus.Gauge
	LastSuccessGauge     prometheus.Gauge
	ArchiveSizeGauge     prometheus.Gauge
	DestinationFreeGauge prometheus.Gauge

	// EvictedGauge counts archives deleted by the last run.
	// Labels: phase (expire, cap, reclaim)
	EvictedGauge *prometheus.GaugeVec

	// StatusGauge is 1 for the status of the last run and 0 for the others.
	// Labels: status (success, nothing, failed)
	StatusGauge *prometheus.GaugeVec

	registry *prometheus.Registry
}

// RunSummary is what a finished run reports.
type RunSummary struct {
	Run         *model.Run
	Report      *zb.EvictionReport // nil when the engine did not run
	LastSuccess time.Time          // zero when no run ever succeeded
}

// NewRunMetrics creates run metrics registered with a private registry.
func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		LastRunGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		LastSuccessGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that wrote an archive.",
		}),
		ArchiveSizeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_size_bytes",
			Help:      "Size of the archive written by the last run.",
		}),
		DestinationFreeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "destination_free_bytes",
			Help:      "Free space on the destination volume after eviction.",
		}),
		EvictedGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archives_evicted",
			Help:      "Archives deleted by the last run.",
		}, []string{"phase"}),
		StatusGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_status",
			Help:      "Status of the last run, 1 for the current status.",
		}, []string{"status"}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.LastRunGauge,
		m.LastSuccessGauge,
		m.ArchiveSizeGauge,
		m.DestinationFreeGauge,
		m.EvictedGauge,
		m.StatusGauge,
	)
	return m
}

// Registry returns the registry holding the run metrics.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe sets every gauge from a finished run.
func (m *RunMetrics) Observe(s RunSummary) {
	if s.Run != nil {
		finished := s.Run.StartedAt
		if s.Run.FinishedAt != nil {
			finished = *s.Run.FinishedAt
		}
		m.LastRunGauge.Set(float64(finished.Unix()))
		m.ArchiveSizeGauge.Set(float64(s.Run.ArchiveSize))

		for _, status := range statuses {
			v := 0.0
			if status == s.Run.Status {
				v = 1
			}
			m.StatusGauge.WithLabelValues(status).Set(v)
		}
	}

	if !s.LastSuccess.IsZero() {
		m.LastSuccessGauge.Set(float64(s.LastSuccess.Unix()))
	}

	for _, phase := range phases {
		n := 0
		if s.Report != nil {
			n = len(s.Report.Evicted(phase))
		}
		m.EvictedGauge.WithLabelValues(string(phase)).Set(float64(n))
	}
	if s.Report != nil {
		m.DestinationFreeGauge.Set(float64(s.Report.FreeBytes))
	}
}

// WriteTextfile writes the metrics atomically to path.
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
