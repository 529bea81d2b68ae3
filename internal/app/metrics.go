package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/tapgdc/internal/domain"
)

// Metrics counts ingestion outcomes. It implements ResultEmitter and can be
// dumped in the node exporter textfile format.
type Metrics struct {
	registry *prometheus.Registry

	files    *prometheus.CounterVec
	rows     prometheus.Counter
	channels prometheus.Counter
	duration prometheus.Histogram
}

// NewMetrics creates a Metrics with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapgdc",
			Name:      "files_total",
			Help:      "Capture files processed, by status.",
		}, []string{"status"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tapgdc",
			Name:      "rows_total",
			Help:      "Canonical rows written.",
		}),
		channels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tapgdc",
			Name:      "channels_total",
			Help:      "Signal channels ingested.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tapgdc",
			Name:      "file_duration_seconds",
			Help:      "Time to ingest and persist one capture file.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	m.registry.MustRegister(m.files, m.rows, m.channels, m.duration)
	return m
}

// OnFileDone records one file result.
func (m *Metrics) OnFileDone(r domain.FileResult) {
	m.files.WithLabelValues(string(r.Status)).Inc()
	m.rows.Add(float64(r.Rows))
	m.channels.Add(float64(r.Channels))
	m.duration.Observe(r.Duration.Seconds())
}

// WriteTextfile writes the metrics to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
