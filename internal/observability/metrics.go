// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Download outcomes used as the "status" label.
const (
	StatusOK          = "ok"
	StatusAuth        = "auth"
	StatusNotFound    = "not_found"
	StatusFailed      = "failed"
	StatusUnavailable = "unavailable"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Transport metrics
	Downloads        *prometheus.CounterVec
	DownloadBytes    *prometheus.CounterVec
	DownloadDuration *prometheus.HistogramVec
	DownloadRetries  *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	LockWait         prometheus.Histogram

	// Reader metrics
	RowsRead        *prometheus.CounterVec
	CorruptDatasets *prometheus.CounterVec

	// Universe metrics
	UniverseBuilds  *prometheus.CounterVec
	UniversePairs   *prometheus.GaugeVec
	UniverseSamples *prometheus.GaugeVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	RowsExported    *prometheus.CounterVec

	// Health metrics
	LastSuccessfulDownload prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered on reg.
// A nil reg uses the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "dex_market_data"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Transport metrics
		Downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "downloads_total",
			Help:      "Total number of dataset downloads by dataset and status",
		}, []string{"dataset", "status"}),
		DownloadBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "download_bytes_total",
			Help:      "Total bytes written to the cache by dataset",
		}, []string{"dataset"}),
		DownloadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "download_duration_seconds",
			Help:      "Dataset download duration in seconds, retries included",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"dataset"}),
		DownloadRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "download_retries_total",
			Help:      "Total number of retried requests by dataset",
		}, []string{"dataset"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "cache_lookups_total",
			Help:      "Total number of cache lookups by dataset and result",
		}, []string{"dataset", "result"}),
		LockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for another writer of the same cache file",
			Buckets:   prometheus.DefBuckets,
		}),

		// Reader metrics
		RowsRead: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "rows_read_total",
			Help:      "Total number of rows decoded by dataset",
		}, []string{"dataset"}),
		CorruptDatasets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "corrupt_datasets_total",
			Help:      "Total number of cache files that failed to decode",
		}, []string{"dataset"}),

		// Universe metrics
		UniverseBuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "universe",
			Name:      "builds_total",
			Help:      "Total number of grouped universe builds by kind",
		}, []string{"kind"}),
		UniversePairs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "universe",
			Name:      "pairs",
			Help:      "Number of pairs in the last built universe",
		}, []string{"kind"}),
		UniverseSamples: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "universe",
			Name:      "samples",
			Help:      "Number of samples in the last built universe",
		}, []string{"kind"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
		RowsExported: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "rows_exported_total",
			Help:      "Total number of rows written to analytic stores by table",
		}, []string{"table"}),

		// Health metrics
		LastSuccessfulDownload: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_download_timestamp",
			Help:      "Unix timestamp of last successful dataset download",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a /metrics handler serving reg.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordDownload records a finished download attempt sequence.
func (m *Metrics) RecordDownload(dataset, status string, bytes int64, d time.Duration) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(dataset, status).Inc()
	m.DownloadDuration.WithLabelValues(dataset).Observe(d.Seconds())
	if status == StatusOK {
		m.DownloadBytes.WithLabelValues(dataset).Add(float64(bytes))
		m.LastSuccessfulDownload.SetToCurrentTime()
	}
}

// RecordRetry increments the retry counter.
func (m *Metrics) RecordRetry(dataset string) {
	if m == nil {
		return
	}
	m.DownloadRetries.WithLabelValues(dataset).Inc()
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(dataset string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(dataset, result).Inc()
}

// RecordLockWait records how long a writer waited for the file lock.
func (m *Metrics) RecordLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWait.Observe(d.Seconds())
}

// RecordRowsRead adds decoded rows.
func (m *Metrics) RecordRowsRead(dataset string, n int) {
	if m == nil {
		return
	}
	m.RowsRead.WithLabelValues(dataset).Add(float64(n))
}

// RecordCorrupt increments the corrupt dataset counter.
func (m *Metrics) RecordCorrupt(dataset string) {
	if m == nil {
		return
	}
	m.CorruptDatasets.WithLabelValues(dataset).Inc()
}

// RecordUniverseBuild records the size of a freshly built universe.
func (m *Metrics) RecordUniverseBuild(kind string, pairs, samples int) {
	if m == nil {
		return
	}
	m.UniverseBuilds.WithLabelValues(kind).Inc()
	m.UniversePairs.WithLabelValues(kind).Set(float64(pairs))
	m.UniverseSamples.WithLabelValues(kind).Set(float64(samples))
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(d.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordExported adds rows written to an analytic store table.
func (m *Metrics) RecordExported(table string, n int) {
	if m == nil {
		return
	}
	m.RowsExported.WithLabelValues(table).Add(float64(n))
}
