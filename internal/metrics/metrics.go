// Package metrics provides Prometheus metrics for the cachefs engine.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cache population
	cacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cachefs_cache_hits_total",
			Help: "Accesses served by an already cache-resident file",
		},
	)

	cacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cachefs_cache_misses_total",
			Help: "Accesses that required pulling a file from remote",
		},
	)

	bytesPulled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cachefs_bytes_pulled_total",
			Help: "Bytes copied from remote into the cache",
		},
	)

	// Remote synchronization
	bytesPushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cachefs_bytes_pushed_total",
			Help: "Bytes copied from the cache to remote",
		},
	)

	syncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachefs_syncs_total",
			Help: "Whole-file synchronizations to remote",
		},
		[]string{"status"},
	)

	// Operations
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachefs_operations_total",
			Help: "Filesystem operations by name and result",
		},
		[]string{"op", "status"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cachefs_operation_duration_seconds",
			Help:    "Filesystem operation duration, including lock wait",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// State
	openHandles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cachefs_open_handles",
			Help: "Currently open file handles",
		},
	)

	dirtyFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cachefs_dirty_files",
			Help: "Cache files not yet mirrored to remote",
		},
	)
)

// RecordCacheHit counts an access to a cache-resident file.
func RecordCacheHit() {
	cacheHitsTotal.Inc()
}

// RecordCacheMiss counts a pull-through population and the bytes it copied.
func RecordCacheMiss(bytes int64) {
	cacheMissesTotal.Inc()
	bytesPulled.Add(float64(bytes))
}

// RecordSync counts a synchronization attempt.
func RecordSync(bytes int64, err error) {
	bytesPushed.Add(float64(bytes))
	syncsTotal.WithLabelValues(statusLabel(err)).Inc()
}

// RecordOperation counts an operation and observes its duration.
func RecordOperation(op string, start time.Time, err error) {
	operationsTotal.WithLabelValues(op, statusLabel(err)).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// SetOpenHandles sets the open handle gauge.
func SetOpenHandles(n int) {
	openHandles.Set(float64(n))
}

// SetDirtyFiles sets the dirty file gauge.
func SetDirtyFiles(n int) {
	dirtyFiles.Set(float64(n))
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var kinded interface{ KindName() string }
	if errors.As(err, &kinded) {
		return kinded.KindName()
	}
	return "error"
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr. It blocks until the listener fails.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
