// Package lifecycle drives one experiment attempt through its states.
//
// The state machine is linear: init, namespace ready, config injected,
// workload deployed, impairment applied, awaiting completion, artifacts
// collected, torn down. A failure at any point routes through aborting
// straight to teardown; there is no resumption of a partially executed
// attempt, only a fresh attempt of the same logical run.
//
// Teardown is the one unconditional obligation. Every exit path, success
// or abort, resets the node's impairment rule and deletes the run
// namespace (unless the operator asked to keep it), and teardown errors
// are logged without replacing the reason the run ended. Combined with
// the pre-run cleanup of leftovers from a crashed attempt, the cluster is
// returned to a neutral state between any two runs.
//
// Impairment ordering is load-bearing: the shaping rule goes on only
// after the workload reports ready and comes off before the run is
// declared over, so image pulls and manifest application always happen
// on an unimpaired link.
package lifecycle
