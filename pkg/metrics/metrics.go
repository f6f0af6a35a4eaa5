package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flbench/flbench/pkg/log"
)

var (
	// Run metrics
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flbench_runs_total",
			Help: "Total number of completed runs by outcome",
		},
		[]string{"outcome"},
	)

	AttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flbench_attempts_total",
			Help: "Total number of run attempts, including retries",
		},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flbench_run_duration_seconds",
			Help:    "Wall-clock duration of full run attempts in seconds",
			Buckets: prometheus.ExponentialBuckets(30, 2, 10),
		},
	)

	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flbench_phase_duration_seconds",
			Help:    "Duration of individual lifecycle phases in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	// Scheduler metrics
	RetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flbench_retries_total",
			Help: "Total number of retried runs",
		},
	)

	ConnectivityPauses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flbench_connectivity_pauses_total",
			Help: "Total number of scheduler pauses waiting for the cluster",
		},
	)

	MatrixProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flbench_matrix_progress_ratio",
			Help: "Fraction of matrix cells with a recorded outcome",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(AttemptsTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(PhaseDuration)
	prometheus.MustRegister(RetriesTotal)
	prometheus.MustRegister(ConnectivityPauses)
	prometheus.MustRegister(MatrixProgress)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes the metrics endpoint on addr in the background. Long
// matrix sweeps are watched this way; short one-shot runs skip it.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.Handle("/health", HealthHandler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger := log.WithComponent("metrics")
			logger.Error().Err(err).Str("addr", addr).Msg("metrics endpoint failed")
		}
	}()
}
