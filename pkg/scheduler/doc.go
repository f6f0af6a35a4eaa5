// Package scheduler walks an experiment matrix to completion.
//
// The matrix is the Cartesian product of security level, network
// profile, data distribution, seed and replica, enumerated in a fixed
// nesting order. Execution is strictly serial: one run owns the cluster
// at a time, because concurrent runs would contend for the single
// impairment rule on the node and contaminate each other's measurements.
//
// Progress is checkpointed after every terminal outcome, so an
// interrupted sweep resumes exactly where it stopped and never repeats a
// finished run. Failed runs retry in place, at the current matrix
// position, up to a bounded number of attempts; timed-out runs get
// exactly one re-execution since a second timeout almost always means
// the deadline is simply too tight for that cell. An unreachable
// control plane is treated as an environmental stall rather than a run
// failure: the sweep pauses behind an exponential-backoff connectivity
// gate and the stalled run's attempt budget is not charged.
package scheduler
