package scheduler

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/flbench/flbench/pkg/checkpoint"
	"github.com/flbench/flbench/pkg/log"
	"github.com/flbench/flbench/pkg/metrics"
	"github.com/flbench/flbench/pkg/types"
)

// DefaultMaxAttempts bounds how many times a failing run is executed.
const DefaultMaxAttempts = 3

// Executor runs one attempt of a configured experiment.
// *lifecycle.Controller satisfies it.
type Executor interface {
	Execute(ctx context.Context, cfg types.RunConfig, attempt int) types.RunOutcome
}

// Pinger probes cluster reachability. cluster.Driver satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Scheduler walks a matrix serially, one run at a time, persisting every
// terminal outcome to the checkpoint before moving on.
type Scheduler struct {
	executor Executor
	pinger   Pinger
	store    *checkpoint.Store

	// MaxAttempts caps executions per logical run. Timed-out runs get at
	// most one re-execution regardless.
	MaxAttempts int
	// Cooldown is the pause between consecutive runs.
	Cooldown time.Duration
	// PingInterval seeds the connectivity gate's backoff;
	// MaxPingInterval caps it.
	PingInterval    time.Duration
	MaxPingInterval time.Duration
}

// New wires a scheduler from its collaborators.
func New(executor Executor, pinger Pinger, store *checkpoint.Store) *Scheduler {
	return &Scheduler{
		executor:        executor,
		pinger:          pinger,
		store:           store,
		MaxAttempts:     DefaultMaxAttempts,
		PingInterval:    time.Second,
		MaxPingInterval: 2 * time.Minute,
	}
}

// Summary reports the end state of a sweep.
type Summary struct {
	Total     int
	Executed  int
	Skipped   int
	Succeeded int
	Failed    int
	TimedOut  int
	// Permanent lists logical identities that ended without success after
	// exhausting their budget.
	Permanent []string
}

// Run executes every cell of the matrix that has no final checkpoint
// record yet. It returns early only on context cancellation; individual
// run failures are recorded and the sweep continues.
func (s *Scheduler) Run(ctx context.Context, matrix Matrix) (Summary, error) {
	if err := matrix.Validate(); err != nil {
		return Summary{}, err
	}

	cells := matrix.Enumerate()
	logger := log.WithComponent("scheduler")
	summary := Summary{Total: len(cells)}

	logger.Info().Int("cells", len(cells)).Msg("matrix sweep starting")

	for i, cfg := range cells {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		id := cfg.LogicalID()
		rec, seen := s.store.Get(id)
		if seen && (rec.Outcome == types.OutcomeSucceeded || rec.Permanent) {
			summary.Skipped++
			logger.Debug().Str("run", id).Msg("final outcome on record, skipping")
			continue
		}

		if err := s.executeWithRetries(ctx, cfg, rec, seen); err != nil {
			return summary, err
		}
		summary.Executed++
		metrics.MatrixProgress.Set(float64(i+1) / float64(len(cells)))

		done := s.store.Summarize()
		logger.Info().
			Str("run", id).
			Int("position", i+1).
			Int("cells", len(cells)).
			Int("succeeded", done.Succeeded).
			Int("failed", done.Failed).
			Int("timed_out", done.TimedOut).
			Msg("sweep progress")

		if s.Cooldown > 0 && i < len(cells)-1 {
			if err := sleepCtx(ctx, s.Cooldown); err != nil {
				return summary, err
			}
		}
	}

	final := s.store.Summarize()
	summary.Succeeded = final.Succeeded
	summary.Failed = final.Failed
	summary.TimedOut = final.TimedOut
	summary.Permanent = final.Permanent
	logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("timed_out", summary.TimedOut).
		Strs("permanent_failures", summary.Permanent).
		Msg("matrix sweep finished")
	return summary, nil
}

// executeWithRetries drives one cell to a final verdict. Retries happen
// at the current matrix position; the sweep never moves on and comes
// back. Cluster-unavailability pauses the cell without consuming its
// attempt budget.
func (s *Scheduler) executeWithRetries(ctx context.Context, cfg types.RunConfig, rec types.CheckpointRecord, resumed bool) error {
	id := cfg.LogicalID()
	logger := log.WithRunID(id).With().Str("component", "scheduler").Logger()

	attempt := 1
	timeoutRetried := false
	if resumed {
		attempt = rec.Attempts + 1
		// A non-permanent timed-out record means the single timeout retry
		// was still pending when the previous invocation stopped.
		timeoutRetried = rec.Outcome == types.OutcomeTimedOut
		logger.Info().Int("attempt", attempt).Msg("resuming unfinished run")
	}

	for {
		if err := s.gate(ctx, logger); err != nil {
			return err
		}

		timer := metrics.NewTimer()
		outcome := s.executor.Execute(ctx, cfg, attempt)
		metrics.AttemptsTotal.Inc()
		timer.ObserveDuration(metrics.RunDuration)

		if err := ctx.Err(); err != nil {
			return err
		}

		// An unreachable cluster is an environmental stall. The attempt is
		// not charged and nothing is checkpointed; the gate above blocks
		// until the cluster answers again.
		if outcome.Outcome != types.OutcomeSucceeded && outcome.Reason == types.ReasonClusterUnavailable {
			metrics.ConnectivityPauses.Inc()
			logger.Warn().Msg("cluster unavailable mid-run, attempt not counted")
			continue
		}

		metrics.RunsTotal.WithLabelValues(string(outcome.Outcome)).Inc()

		retry := s.shouldRetry(outcome, attempt, timeoutRetried)
		if err := s.store.Put(outcome, !retry); err != nil {
			return err
		}
		if !retry {
			return nil
		}

		if outcome.Outcome == types.OutcomeTimedOut {
			timeoutRetried = true
		}
		metrics.RetriesTotal.Inc()
		attempt++
		logger.Warn().
			Str("outcome", string(outcome.Outcome)).
			Str("reason", string(outcome.Reason)).
			Int("next_attempt", attempt).
			Msg("retrying run at current position")
	}
}

// shouldRetry applies the retry policy: bounded attempts for retryable
// failures, exactly one re-execution for timeouts, none for permanent
// misconfiguration.
func (s *Scheduler) shouldRetry(outcome types.RunOutcome, attempt int, timeoutRetried bool) bool {
	if outcome.Outcome == types.OutcomeSucceeded {
		return false
	}
	if attempt >= s.MaxAttempts {
		return false
	}
	if outcome.Outcome == types.OutcomeTimedOut {
		return !timeoutRetried
	}
	return outcome.Reason.Retryable()
}

// gate blocks until the cluster answers a ping, with exponential backoff
// capped at MaxPingInterval. Only context cancellation ends the wait.
func (s *Scheduler) gate(ctx context.Context, logger zerolog.Logger) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.PingInterval
	policy.MaxInterval = s.MaxPingInterval
	policy.MaxElapsedTime = 0

	paused := false
	err := backoff.Retry(func() error {
		if err := s.pinger.Ping(ctx); err != nil {
			metrics.UpdateComponent("cluster", false, err.Error())
			if !paused {
				paused = true
				metrics.ConnectivityPauses.Inc()
				logger.Warn().Err(err).Msg("cluster unreachable, pausing sweep")
			}
			return err
		}
		metrics.UpdateComponent("cluster", true, "")
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return ctx.Err()
	}
	if paused {
		logger.Info().Msg("cluster reachable again, resuming sweep")
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
