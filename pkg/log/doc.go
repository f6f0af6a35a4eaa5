/*
Package log provides structured logging for flbench using zerolog.

It wraps zerolog behind a small surface: log.Init configures a global
logger (JSON for matrix runs whose output is archived next to experiment
artifacts, console for interactive use), and child-logger helpers attach
the fields every orchestration event should carry.

Usage:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	runLog := log.WithRunID(cfg.LogicalID())
	runLog.Info().Str("state", "workload_deployed").Msg("coordinator ready")

	schedLog := log.WithComponent("scheduler")
	schedLog.Warn().
		Int("attempt", attempt).
		Msg("run failed, re-queuing")

Every lifecycle transition, impairment change, and scheduler decision is
logged with the run's logical identity so a matrix log can be correlated
with checkpoint entries and journal timelines after the fact.

# Integration Points

  - pkg/lifecycle: per-run child loggers for state transitions
  - pkg/scheduler: tally and retry decisions
  - pkg/cluster, pkg/netem: boundary operations and their errors
  - cmd/flbench: Init from --log-level / --log-json flags
*/
package log
