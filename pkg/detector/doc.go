// Package detector decides when a deployed experiment has finished.
//
// The coordinator process inside the cluster announces its fate by
// printing a single JSON line to stdout: {"event":"experiment_end",...}
// on success or {"event":"experiment_failed",...} on failure, each
// carrying the run_id it was launched with. The detector polls the
// coordinator pod's log tail for one of these markers and requires the
// run_id to match exactly, so a marker left behind by an earlier
// deployment in a recycled namespace can never complete the wrong run.
//
// Two other paths end the wait early: the coordinator pod entering a
// Failed or Unknown phase counts as workload failure without waiting for
// the deadline, and the deadline itself expiring yields a timed-out
// verdict. Transient errors while polling (API hiccups, pod restarts)
// are retried on the next tick; only the deadline bounds them.
package detector
