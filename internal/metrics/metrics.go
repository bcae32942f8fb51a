// Package metrics exposes loglite's Prometheus instrumentation and a
// plain-struct Snapshot for the CLI's `stats` command.
//
// The Python original tracked equivalent counters in utils.py's
// StatsTracker (records_written, records_rejected, batches, backlog_depth)
// but exposed them only via an internal dict. Recovering them as real
// Prometheus metrics, built on prometheus/client_golang, is this port's
// upgrade: a counter-only internal dict has no natural fit outside a
// scrape endpoint.
package metrics

import (
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder collects every counter/gauge loglite's components report to.
type Recorder struct {
	BatchesWritten   prometheus.Counter
	RecordsInserted  prometheus.Counter
	RecordsRejected  prometheus.Counter
	BatchDuration    prometheus.Histogram
	BacklogDepth     prometheus.Gauge
	BacklogDropped   prometheus.Counter
	DictionarySize   prometheus.Gauge
	VacuumRunsTotal  prometheus.Counter
	VacuumRowsPurged prometheus.Counter
	SSEConnections   prometheus.Gauge
	HTTPRequests     *prometheus.CounterVec
}

// New registers every metric against reg (typically
// prometheus.NewRegistry(), not the global DefaultRegisterer, so tests can
// construct independent Recorders without collector-already-registered
// panics).
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		BatchesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loglite_writer_batches_total",
			Help: "Number of write-batches committed.",
		}),
		RecordsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loglite_writer_records_inserted_total",
			Help: "Number of log records successfully inserted.",
		}),
		RecordsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loglite_writer_records_rejected_total",
			Help: "Number of log records dropped from a batch (invalid or failed dictionary lookup).",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "loglite_writer_batch_duration_seconds",
			Help:    "Time to insert one write batch.",
			Buckets: prometheus.DefBuckets,
		}),
		BacklogDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loglite_backlog_depth",
			Help: "Current number of records queued in the backlog.",
		}),
		BacklogDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loglite_backlog_dropped_total",
			Help: "Number of records dropped by a non-blocking TryAdd.",
		}),
		DictionarySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loglite_dictionary_entries",
			Help: "Number of interned column-dictionary entries.",
		}),
		VacuumRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loglite_vacuum_runs_total",
			Help: "Number of retention/vacuum passes completed.",
		}),
		VacuumRowsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loglite_vacuum_rows_purged_total",
			Help: "Number of log rows removed by retention.",
		}),
		SSEConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loglite_sse_connections",
			Help: "Current number of open /logs/stream connections.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loglite_http_requests_total",
			Help: "HTTP requests handled, by route and status class.",
		}, []string{"route", "status"}),
	}

	reg.MustRegister(
		r.BatchesWritten, r.RecordsInserted, r.RecordsRejected, r.BatchDuration,
		r.BacklogDepth, r.BacklogDropped, r.DictionarySize,
		r.VacuumRunsTotal, r.VacuumRowsPurged, r.SSEConnections, r.HTTPRequests,
	)
	return r
}

// ObserveBatch implements writer.Metrics.
func (r *Recorder) ObserveBatch(inserted, rejected int, duration time.Duration) {
	r.BatchesWritten.Inc()
	r.RecordsInserted.Add(float64(inserted))
	r.RecordsRejected.Add(float64(rejected))
	r.BatchDuration.Observe(duration.Seconds())
}

// ObserveBacklogDepth implements writer.Metrics.
func (r *Recorder) ObserveBacklogDepth(depth int) {
	r.BacklogDepth.Set(float64(depth))
}

// ObserveVacuum records one completed retention pass.
func (r *Recorder) ObserveVacuum(rowsPurged int64) {
	r.VacuumRunsTotal.Inc()
	r.VacuumRowsPurged.Add(float64(rowsPurged))
}

// Snapshot is a point-in-time summary suitable for the CLI's `stats`
// command and the /health response, recovering the shape of the Python
// original's StatsTracker.snapshot().
type Snapshot struct {
	BatchesWritten   float64 `json:"batches_written"`
	RecordsInserted  float64 `json:"records_inserted"`
	RecordsRejected  float64 `json:"records_rejected"`
	BacklogDepth     float64 `json:"backlog_depth"`
	BacklogDropped   float64 `json:"backlog_dropped"`
	DictionarySize   float64 `json:"dictionary_entries"`
	VacuumRuns       float64 `json:"vacuum_runs"`
	VacuumRowsPurged float64 `json:"vacuum_rows_purged"`
	SSEConnections   float64 `json:"sse_connections"`
}

// Collect reads the current value of every gauge/counter into a Snapshot.
func (r *Recorder) Collect() Snapshot {
	return Snapshot{
		BatchesWritten:   readCounter(r.BatchesWritten),
		RecordsInserted:  readCounter(r.RecordsInserted),
		RecordsRejected:  readCounter(r.RecordsRejected),
		BacklogDepth:     readGauge(r.BacklogDepth),
		BacklogDropped:   readCounter(r.BacklogDropped),
		DictionarySize:   readGauge(r.DictionarySize),
		VacuumRuns:       readCounter(r.VacuumRunsTotal),
		VacuumRowsPurged: readCounter(r.VacuumRowsPurged),
		SSEConnections:   readGauge(r.SSEConnections),
	}
}

func readCounter(c prometheus.Counter) float64 {
	var m dto.Metric
	_ = c.Write(&m)
	return m.GetCounter().GetValue()
}

func readGauge(g prometheus.Gauge) float64 {
	var m dto.Metric
	_ = g.Write(&m)
	return m.GetGauge().GetValue()
}
