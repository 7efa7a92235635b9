package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated registry served on /metrics.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Bookings counts dispatch outcomes by error code ("ok" on success).
	Bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_bookings_total", Help: "Booking dispatch attempts by outcome."},
		[]string{"city", "outcome"},
	)
	OptimizationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimization_runs_total", Help: "Applied optimization runs by outcome."},
		[]string{"city", "outcome"},
	)
	DistanceSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimization_distance_saved_km_total", Help: "Point distance saved by applied runs, in km."},
		[]string{"city"},
	)
	GroupsOptimized = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimization_groups_optimized_total", Help: "Slot groups improved by applied runs."},
		[]string{"city"},
	)
	LockWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "lock_wait_seconds", Help: "Time spent waiting for the city/day lock.", Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5}},
		[]string{"operation", "outcome"},
	)
)

var regOnce sync.Once

// RegisterDefault registers collectors on Registry once per process.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(Bookings, OptimizationRuns, DistanceSaved, GroupsOptimized, LockWait)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

func Label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
