package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cmorph_ingest"

// Metrics holds the Prometheus counters, histograms, and gauges for an ingest run.
type Metrics struct {
	FilesDecoded    prometheus.Counter
	DecodeErrors    prometheus.Counter
	MissingDays     prometheus.Counter
	StepsWritten    *prometheus.CounterVec // labels: aggregation={daily,monthly}
	PipelineRunning prometheus.Gauge

	StepDuration prometheus.Histogram

	// Download metrics.
	Downloads        *prometheus.CounterVec // labels: outcome={success,not_found,error}
	DownloadRetries  prometheus.Counter
	DownloadDuration prometheus.Histogram
}

// NewMetrics creates and registers all ingest metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FilesDecoded,
		m.DecodeErrors,
		m.MissingDays,
		m.StepsWritten,
		m.PipelineRunning,
		m.StepDuration,
		m.Downloads,
		m.DownloadRetries,
		m.DownloadDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_decoded_total",
			Help:      "Total CMORPH daily files decoded.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total CMORPH files that failed to decode.",
		}),
		MissingDays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_days_total",
			Help:      "Days skipped during monthly aggregation because no file was available.",
		}),
		StepsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_written_total",
			Help:      "Time-steps appended to the output NetCDF file.",
		}, []string{"aggregation"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while an ingest run is active, 0 otherwise.",
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of decoding, aggregating and writing one time-step.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Archive downloads by outcome.",
		}, []string{"outcome"}),
		DownloadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_retries_total",
			Help:      "Download attempts retried after a transient failure.",
		}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Duration of a single archive download including retries.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}
