package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nxtensor"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// extraction and assembly pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	PhaseDuration   *prometheus.HistogramVec // labels: phase={preprocess,extract,assemble}

	// Extraction metrics.
	UnitsProcessed   prometheus.Counter
	EventsExtracted  prometheus.Counter
	BlocksWritten    prometheus.Counter
	ExtractionErrors prometheus.Counter
	UnitDuration     prometheus.Histogram
	DatasetOpens     *prometheus.CounterVec // labels: variable
	AxisCache        *prometheus.CounterVec // labels: result={hit,miss}

	// Assembly metrics.
	ChannelsBuilt  prometheus.Counter
	TensorsStacked prometheus.Counter
	AssemblyErrors prometheus.Counter

	// Notification metrics.
	ArtifactsPublished prometheus.Counter
	PublishErrors      prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of a complete pipeline phase.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"phase"}),
		UnitsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_processed_total",
			Help:      "Total work units extracted.",
		}),
		EventsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_extracted_total",
			Help:      "Total event windows extracted.",
		}),
		BlocksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_written_total",
			Help:      "Total extraction blocks persisted.",
		}),
		ExtractionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_errors_total",
			Help:      "Total variables whose extraction failed.",
		}),
		UnitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Duration of the extraction of one work unit.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		DatasetOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_opens_total",
			Help:      "Gridded dataset opens by variable.",
		}, []string{"variable"}),
		AxisCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "axis_cache_total",
			Help:      "Coordinate axis cache lookups by result.",
		}, []string{"result"}),
		ChannelsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_built_total",
			Help:      "Total channel splits written.",
		}),
		TensorsStacked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tensors_stacked_total",
			Help:      "Total tensor splits written.",
		}),
		AssemblyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assembly_errors_total",
			Help:      "Total channel or tensor assembly failures.",
		}),
		ArtifactsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_published_total",
			Help:      "Total artifact notifications written to the broker.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Total artifact notifications that could not be written.",
		}),
	}

	prometheus.MustRegister(
		m.PipelineRunning,
		m.PhaseDuration,
		m.UnitsProcessed,
		m.EventsExtracted,
		m.BlocksWritten,
		m.ExtractionErrors,
		m.UnitDuration,
		m.DatasetOpens,
		m.AxisCache,
		m.ChannelsBuilt,
		m.TensorsStacked,
		m.AssemblyErrors,
		m.ArtifactsPublished,
		m.PublishErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		PipelineRunning:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_running"}),
		PhaseDuration:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "phase_duration_seconds"}, []string{"phase"}),
		UnitsProcessed:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "units_processed_total"}),
		EventsExtracted:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "events_extracted_total"}),
		BlocksWritten:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "blocks_written_total"}),
		ExtractionErrors:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "extraction_errors_total"}),
		UnitDuration:       prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "unit_duration_seconds"}),
		DatasetOpens:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "dataset_opens_total"}, []string{"variable"}),
		AxisCache:          prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "axis_cache_total"}, []string{"result"}),
		ChannelsBuilt:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "channels_built_total"}),
		TensorsStacked:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "tensors_stacked_total"}),
		AssemblyErrors:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "assembly_errors_total"}),
		ArtifactsPublished: prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "artifacts_published_total"}),
		PublishErrors:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "publish_errors_total"}),
	}
}
