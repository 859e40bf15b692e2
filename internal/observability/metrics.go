package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "urban_risk"

// Metrics holds the Prometheus counters, histograms, and gauges for the risk pipeline.
type Metrics struct {
	Refreshes       *prometheus.CounterVec // labels: outcome={success,empty,error,busy}
	RecordsIngested prometheus.Counter
	RecordsDropped  *prometheus.CounterVec // labels: reason
	PublishedTotal  prometheus.Counter
	PublishErrors   prometheus.Counter
	PipelineRunning prometheus.Gauge
	SinkEnabled     prometheus.Gauge

	// Refresh metrics.
	BatchSize       prometheus.Histogram
	RefreshDuration prometheus.Histogram
	RiskLevels      *prometheus.GaugeVec // labels: level

	// Remote fetch metrics.
	FetchRequests    *prometheus.CounterVec // labels: outcome={success,error}
	FetchCache       *prometheus.CounterVec // labels: result={hit,miss}
	FetchAPIDuration prometheus.Histogram

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,empty,error}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Refresh cycles by outcome.",
		}, []string{"outcome"}),
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "Total records scored into a snapshot.",
		}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records excluded from scoring by reason.",
		}, []string{"reason"}),
		PublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      "Total scored records written to the sink topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Total failed publish attempts.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the refresh loop is active, 0 when shut down.",
		}),
		SinkEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sink_enabled",
			Help:      "1 when scored batches are published to Kafka, 0 otherwise.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of records per refresh after sanitization.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete fetch-score-publish cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		RiskLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_by_risk_level",
			Help:      "Records per risk level in the current snapshot.",
		}, []string{"level"}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Remote data source requests by outcome.",
		}, []string{"outcome"}),
		FetchCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_cache_total",
			Help:      "Remote fetch cache lookups by result.",
		}, []string{"result"}),
		FetchAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_api_duration_seconds",
			Help:      "Remote data source request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Mapbox forward geocoding requests by outcome.",
		}, []string{"outcome"}),
	}

	prometheus.MustRegister(
		m.Refreshes,
		m.RecordsIngested,
		m.RecordsDropped,
		m.PublishedTotal,
		m.PublishErrors,
		m.PipelineRunning,
		m.SinkEnabled,
		m.BatchSize,
		m.RefreshDuration,
		m.RiskLevels,
		m.FetchRequests,
		m.FetchCache,
		m.FetchAPIDuration,
		m.GeocodeRequests,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		Refreshes:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "refreshes_total"}, []string{"outcome"}),
		RecordsIngested:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "records_ingested_total"}),
		RecordsDropped:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "records_dropped_total"}, []string{"reason"}),
		PublishedTotal:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "records_published_total"}),
		PublishErrors:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "publish_errors_total"}),
		PipelineRunning:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_running"}),
		SinkEnabled:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "sink_enabled"}),
		BatchSize:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_size"}),
		RefreshDuration:  prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "refresh_duration_seconds"}),
		RiskLevels:       prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "records_by_risk_level"}, []string{"level"}),
		FetchRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "fetch_requests_total"}, []string{"outcome"}),
		FetchCache:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "fetch_cache_total"}, []string{"result"}),
		FetchAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "fetch_api_duration_seconds"}),
		GeocodeRequests:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "geocode_requests_total"}, []string{"outcome"}),
	}
}
