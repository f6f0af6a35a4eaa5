/*
Package types defines the shared data model for the flbench orchestration
core: experiment configurations, run identities, outcomes, and checkpoint
records.

The central invariant lives here: RunConfig.LogicalID() is the sole,
retry-stable identity of a run. It is derived purely from the configuration
tuple (security level, network profile, data distribution, seed, replica)
and never embeds wall-clock data, so the checkpoint can recognize a
configuration as "already attempted" across process restarts and manual
re-invocations. AttemptID() adds a timestamp suffix for on-disk artifact
directory uniqueness only; nothing is ever keyed by it.

Enum sets (SecurityLevel, NetworkProfile, Distribution) are fixed and part
of the experimental design space; they are validated, not user-extensible.

# Integration Points

  - pkg/scheduler: enumerates RunConfigs and keys the checkpoint by LogicalID
  - pkg/lifecycle: executes a RunConfig to a terminal RunOutcome
  - pkg/checkpoint: persists CheckpointRecord keyed by LogicalID
  - pkg/manifest: renders the variant selected by SecurityLevel
  - pkg/netem: resolves NetworkProfile into tc parameters
*/
package types
