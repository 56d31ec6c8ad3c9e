package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transaction metrics
	TransactionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docstore_transactions_active",
			Help: "Number of transactions currently in the ONGOING state",
		},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_transactions_total",
			Help: "Total number of transactions by outcome",
		},
		[]string{"outcome"}, // committed, rolled_back
	)

	TransactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docstore_transaction_duration_seconds",
			Help:    "Time between begin and commit/rollback",
			Buckets: prometheus.DefBuckets,
		},
	)

	SubTransactionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docstore_subtransactions_total",
			Help: "Total number of nested subtransactions begun",
		},
	)

	// Write-conflict metrics
	WriteConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_write_conflicts_total",
			Help: "Total number of write-write conflicts detected by collection",
		},
		[]string{"collection"},
	)

	UniqueConstraintViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_unique_constraint_violations_total",
			Help: "Total number of unique-index constraint violations by index type",
		},
		[]string{"index_type"},
	)

	// Index metrics
	IndexEntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docstore_index_entries_total",
			Help: "Memory estimate reported by an index when it was added to a collection (not an entry count)",
		},
		[]string{"collection", "index_type"},
	)

	IndexBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstore_index_build_duration_seconds",
			Help:    "Time taken to fill an index over existing documents",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"index_type"},
	)

	CapConstraintEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_cap_constraint_evictions_total",
			Help: "Total number of documents evicted by a cap constraint",
		},
		[]string{"collection"},
	)

	// Masterpointer pool metrics
	MasterpointersActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docstore_masterpointers_active",
			Help: "Number of masterpointers currently published",
		},
		[]string{"collection"},
	)

	MasterpointerBlocksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docstore_masterpointer_blocks_total",
			Help: "Number of masterpointer arena blocks allocated",
		},
		[]string{"collection"},
	)

	// WAL metrics
	WALMarkersAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_wal_markers_appended_total",
			Help: "Total number of markers appended to the WAL by kind",
		},
		[]string{"kind"},
	)

	WALThrottled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docstore_wal_throttled",
			Help: "Whether the WAL is currently signalling back-pressure (1 = throttled)",
		},
	)

	WALPendingBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docstore_wal_pending_bytes",
			Help: "Current tracked WAL backlog in bytes",
		},
	)

	// OpenIterator / replay metrics
	ReplayDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docstore_replay_duration_seconds",
			Help:    "Time taken to replay a collection's datafiles on open",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReplayMarkersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docstore_replay_markers_total",
			Help: "Total number of markers replayed across all opens",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TransactionsActive,
		TransactionsTotal,
		TransactionDuration,
		SubTransactionsTotal,
		WriteConflictsTotal,
		UniqueConstraintViolationsTotal,
		IndexEntriesTotal,
		IndexBuildDuration,
		CapConstraintEvictionsTotal,
		MasterpointersActive,
		MasterpointerBlocksTotal,
		WALMarkersAppendedTotal,
		WALThrottled,
		WALPendingBytes,
		ReplayDuration,
		ReplayMarkersTotal,
	)
}

// Handler returns the Prometheus HTTP handler for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations and recording them to a
// histogram once the operation completes.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
