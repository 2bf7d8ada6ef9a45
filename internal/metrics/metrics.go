// Package metrics exposes Prometheus instrumentation for the write path:
// append and delete outcomes, log writer group commits, storage latencies
// and the last durable log position.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "esdb"

// Recorder holds every esdb collector on its own registry. It implements the
// observer hooks of the storage layer, the log writer and the streams service.
type Recorder struct {
	registry *prometheus.Registry

	appendsTotal   *prometheus.CounterVec
	appendEvents   prometheus.Counter
	appendDuration *prometheus.HistogramVec
	deletesTotal   *prometheus.CounterVec

	groupRequests prometheus.Histogram
	groupRecords  prometheus.Histogram
	groupDuration prometheus.Histogram
	lastPosition  prometheus.Gauge

	storageOps    prometheus.Histogram
	storageRead   prometheus.Histogram
	storageCommit prometheus.Histogram
	storageBytes  *prometheus.CounterVec
}

// New returns a Recorder registered on a fresh registry that also carries
// the Go runtime and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		appendsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appends_total",
			Help:      "Append requests by outcome.",
		}, []string{"outcome"}),
		appendEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appended_events_total",
			Help:      "Events durably appended.",
		}),
		appendDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "append_duration_seconds",
			Help:      "Append latency from lock acquisition to result.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"outcome"}),
		deletesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletes_total",
			Help:      "Delete requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		groupRequests: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "group_requests",
			Help:      "Writes persisted per group commit.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 9),
		}),
		groupRecords: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "group_records",
			Help:      "Prepare and commit records persisted per group commit.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		groupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "group_duration_seconds",
			Help:      "Time to make a group durable.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		lastPosition: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "last_commit_position",
			Help:      "Commit position of the newest durable commit record.",
		}),
		storageOps: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "batch_ops",
			Help:      "Operations per committed batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		storageRead: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "read_duration_seconds",
			Help:      "Point read latency.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 16),
		}),
		storageCommit: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "batch_commit_duration_seconds",
			Help:      "Batch commit latency including fsync.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}),
		storageBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "bytes_total",
			Help:      "Bytes moved through the storage layer.",
		}, []string{"op"}),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RegisterStreamCount exposes the number of indexed streams through fn.
func (r *Recorder) RegisterStreamCount(fn func() int) {
	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "streams",
		Help:      "Streams known to the revision store.",
	}, func() float64 { return float64(fn()) }))
}

func (r *Recorder) ObserveAppend(outcome string, events int, elapsed time.Duration) {
	r.appendsTotal.WithLabelValues(outcome).Inc()
	r.appendDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if events > 0 {
		r.appendEvents.Add(float64(events))
	}
}

func (r *Recorder) ObserveDelete(kind, outcome string) {
	r.deletesTotal.WithLabelValues(kind, outcome).Inc()
}

func (r *Recorder) ObserveGroup(requests, records int, elapsed time.Duration) {
	r.groupRequests.Observe(float64(requests))
	r.groupRecords.Observe(float64(records))
	r.groupDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) ObservePosition(pos uint64) {
	r.lastPosition.Set(float64(pos))
}

func (r *Recorder) ObserveRead(elapsed time.Duration, bytes int) {
	r.storageRead.Observe(elapsed.Seconds())
	r.storageBytes.WithLabelValues("read").Add(float64(bytes))
}

func (r *Recorder) ObserveCommit(elapsed time.Duration, ops, bytes int) {
	r.storageCommit.Observe(elapsed.Seconds())
	r.storageOps.Observe(float64(ops))
	r.storageBytes.WithLabelValues("batch").Add(float64(bytes))
}
