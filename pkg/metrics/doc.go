/*
Package metrics provides Prometheus metrics for benchmark orchestration.

All collectors are defined as package-level variables and registered with
the default registry at init, so any package can record observations by
importing this one. The metric surface is small and run-oriented:

	flbench_runs_total{outcome}          completed runs by verdict
	flbench_attempts_total               attempts, including retries
	flbench_run_duration_seconds         wall-clock attempt duration
	flbench_phase_duration_seconds{phase} lifecycle phase timing
	flbench_retries_total                runs sent back for another attempt
	flbench_connectivity_pauses_total    scheduler waits on cluster health
	flbench_matrix_progress_ratio        sweep completion fraction

Timing uses the Timer helper:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RunDuration)

Exposition is opt-in. A long matrix sweep calls Serve to publish /metrics
in the background; a one-shot run simply never does, and the registry
costs nothing unscraped.
*/
package metrics
