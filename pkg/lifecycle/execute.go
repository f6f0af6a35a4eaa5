package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/flbench/flbench/pkg/cluster"
	"github.com/flbench/flbench/pkg/log"
	"github.com/flbench/flbench/pkg/manifest"
	"github.com/flbench/flbench/pkg/metrics"
	"github.com/flbench/flbench/pkg/types"
)

// resultsFile is where the coordinator writes its metrics inside the pod,
// served over the results sidecar.
const resultsFile = "/results/results.json"

// stepError carries the failure reason a lifecycle step maps to.
type stepError struct {
	reason types.FailureReason
	err    error
}

func (e *stepError) Error() string { return e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func fail(reason types.FailureReason, format string, args ...any) *stepError {
	return &stepError{reason: reason, err: fmt.Errorf(format, args...)}
}

// Execute runs one attempt of the configured experiment through the full
// lifecycle and always returns a terminal outcome. Teardown is attempted
// on every path, including failures; teardown errors are logged but never
// mask the reason the run ended.
func (c *Controller) Execute(ctx context.Context, runCfg types.RunConfig, attempt int) types.RunOutcome {
	logicalID := runCfg.LogicalID()
	namespace := Namespace(runCfg)
	started := time.Now().UTC()

	logger := log.WithRunID(logicalID).With().
		Str("namespace", namespace).
		Int("attempt", attempt).
		Logger()

	outcome := types.RunOutcome{
		LogicalID: logicalID,
		Attempt:   attempt,
		StartedAt: started,
	}

	attemptDir := filepath.Join(c.cfg.Artifacts, logicalID, fmt.Sprintf("attempt-%d", attempt))

	c.transition(logger, logicalID, attempt, StateInit, "")
	err := c.run(ctx, runCfg, namespace, attemptDir, attempt, &outcome, logger)

	if err == nil {
		outcome.Outcome = types.OutcomeSucceeded
	} else {
		var step *stepError
		if errors.As(err, &step) {
			outcome.Reason = step.reason
		} else {
			outcome.Reason = types.ReasonWorkloadFailed
		}
		if outcome.Reason == types.ReasonExperimentTimedOut {
			outcome.Outcome = types.OutcomeTimedOut
		} else {
			outcome.Outcome = types.OutcomeFailed
		}
		logger.Error().Err(err).
			Str("reason", string(outcome.Reason)).
			Msg("run failed")
		c.transition(logger, logicalID, attempt, StateAborting, string(outcome.Reason))
	}

	// Teardown runs against a background context so an aborted run still
	// gets its namespace and impairment removed.
	c.teardown(context.Background(), namespace, logger)
	c.transition(logger, logicalID, attempt, StateTornDown, string(outcome.Reason))

	outcome.FinishedAt = time.Now().UTC()
	outcome.Duration = outcome.FinishedAt.Sub(started)
	return outcome
}

// run drives the forward path of the state machine. The first error
// stops the advance; Execute handles the abort.
func (c *Controller) run(ctx context.Context, runCfg types.RunConfig, namespace, attemptDir string, attempt int, outcome *types.RunOutcome, logger zerolog.Logger) error {
	logicalID := runCfg.LogicalID()

	// Each phase observation is the time spent reaching the named state
	// from the previous one.
	phase := metrics.NewTimer()
	enter := func(state State) {
		phase.ObserveDurationVec(metrics.PhaseDuration, string(state))
		phase = metrics.NewTimer()
		c.transition(logger, logicalID, attempt, state, "")
	}

	if err := c.prepareNamespace(ctx, namespace, logger); err != nil {
		return err
	}
	enter(StateNamespaceReady)

	docs, err := manifest.Render(runCfg, c.cfg.Manifests)
	if err != nil {
		return fail(types.ReasonConfigInvalid, "manifest rendering failed: %w", err)
	}
	enter(StateConfigInjected)

	for _, doc := range docs {
		if err := c.driver.ApplyManifest(ctx, namespace, doc.Raw); err != nil {
			return fail(clusterReason(err, types.ReasonWorkloadFailed),
				"failed to apply %s/%s: %w", doc.Kind, doc.Name, err)
		}
	}
	if err := c.waitReady(ctx, namespace, logger); err != nil {
		return err
	}
	enter(StateWorkloadDeployed)

	// Impairment goes on strictly after the workload is up, never before:
	// shaping the link during image pulls would skew deployment, and a
	// rule installed before a failed deploy could leak.
	if err := c.impairer.Apply(ctx, runCfg.Network, c.cfg.Cluster.Node); err != nil {
		return fail(types.ReasonImpairmentFailed, "impairment apply failed: %w", err)
	}
	enter(StateImpairmentApplied)

	enter(StateAwaitingCompletion)
	result, err := c.waiter.Wait(ctx, namespace, logicalID, c.cfg.Timeouts.RunDeadline)
	if err != nil {
		return fail(types.ReasonClusterUnavailable, "completion wait aborted: %w", err)
	}

	// Artifacts are collected for every verdict; a timed-out run's partial
	// logs are often the most interesting ones.
	if err := c.collectArtifacts(ctx, runCfg, namespace, attemptDir, attempt, result.Outcome, logger); err != nil {
		return fail(types.ReasonArtifactCopyFailed, "artifact collection failed: %w", err)
	}
	// The path is recorded only once something actually lives there; a
	// run that aborts earlier leaves the field empty.
	outcome.ArtifactDir = attemptDir
	enter(StateArtifactsCollected)

	switch result.Outcome {
	case types.OutcomeSucceeded:
		return nil
	case types.OutcomeTimedOut:
		return fail(types.ReasonExperimentTimedOut, "run exceeded its deadline")
	default:
		return fail(result.Reason, "workload reported failure")
	}
}

// prepareNamespace removes leftovers of a previous attempt and creates a
// fresh namespace. Resetting impairment first keeps a crashed attempt's
// shaping rule from polluting this one's deployment.
func (c *Controller) prepareNamespace(ctx context.Context, namespace string, logger zerolog.Logger) error {
	if err := c.impairer.Reset(ctx, c.cfg.Cluster.Node); err != nil {
		logger.Warn().Err(err).Msg("pre-run impairment reset failed")
	}
	if err := c.driver.DeleteNamespace(ctx, namespace); err != nil && !errors.Is(err, cluster.ErrNotFound) {
		return fail(clusterReason(err, types.ReasonClusterUnavailable),
			"failed to remove leftover namespace: %w", err)
	}
	if err := c.driver.CreateNamespace(ctx, namespace); err != nil {
		return fail(clusterReason(err, types.ReasonClusterUnavailable),
			"failed to create namespace: %w", err)
	}
	return nil
}

// waitReady polls pod phase until every pod in the namespace is ready or
// the ready budget expires.
func (c *Controller) waitReady(ctx context.Context, namespace string, logger zerolog.Logger) error {
	deadline := time.NewTimer(c.cfg.Timeouts.ReadyWait)
	defer deadline.Stop()
	ticker := time.NewTicker(c.cfg.Timeouts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fail(types.ReasonClusterUnavailable, "ready wait aborted: %w", ctx.Err())
		case <-deadline.C:
			return fail(types.ReasonDeploymentNotReady,
				"workload not ready within %s", c.cfg.Timeouts.ReadyWait)
		case <-ticker.C:
			phase, err := c.driver.PodPhase(ctx, namespace, "")
			if err != nil {
				logger.Debug().Err(err).Msg("readiness poll failed, will retry")
				continue
			}
			switch phase {
			case cluster.PhaseReady:
				return nil
			case cluster.PhaseFailed:
				return fail(types.ReasonDeploymentNotReady, "workload pod failed during startup")
			}
		}
	}
}

// attemptMetadata is the sidecar record written next to collected logs.
type attemptMetadata struct {
	LogicalID    string    `json:"logical_id"`
	AttemptID    string    `json:"attempt_id"`
	Attempt      int       `json:"attempt"`
	Security     string    `json:"security"`
	Network      string    `json:"network"`
	Clients      int       `json:"clients"`
	Rounds       int       `json:"rounds"`
	Seed         int       `json:"seed"`
	Outcome      string    `json:"outcome"`
	Orchestrator string    `json:"orchestrator_version,omitempty"`
	CollectedAt  time.Time `json:"collected_at"`
}

// collectArtifacts copies pod logs, the coordinator's results file and a
// metadata record into the attempt directory. Individual pod logs and the
// results file are best effort; failure to create the directory or write
// metadata fails the collection.
func (c *Controller) collectArtifacts(ctx context.Context, runCfg types.RunConfig, namespace, attemptDir string, attempt int, outcome types.Outcome, logger zerolog.Logger) error {
	if err := os.MkdirAll(attemptDir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}

	pods, err := c.driver.PodNames(ctx, namespace, "")
	if err != nil {
		logger.Warn().Err(err).Msg("failed to list pods for log collection")
	}
	for _, pod := range pods {
		if err := c.copyPodLog(ctx, namespace, pod, attemptDir); err != nil {
			logger.Warn().Err(err).Str("pod", pod).Msg("failed to copy pod log")
		}
	}

	if results, err := c.readResults(ctx, namespace, pods); err != nil {
		logger.Warn().Err(err).Msg("results file not collected")
	} else if err := os.WriteFile(filepath.Join(attemptDir, "results.json"), results, 0o644); err != nil {
		logger.Warn().Err(err).Msg("failed to write results file")
	}

	meta := attemptMetadata{
		LogicalID:    runCfg.LogicalID(),
		AttemptID:    runCfg.AttemptID(time.Now()),
		Attempt:      attempt,
		Security:     string(runCfg.Security),
		Network:      string(runCfg.Network),
		Clients:      runCfg.Clients,
		Rounds:       runCfg.Rounds,
		Seed:         runCfg.Seed,
		Outcome:      string(outcome),
		Orchestrator: c.Version,
		CollectedAt:  time.Now().UTC(),
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(attemptDir, "metadata.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (c *Controller) copyPodLog(ctx context.Context, namespace, pod, attemptDir string) error {
	stream, err := c.driver.StreamLogs(ctx, namespace, pod, false, 0)
	if err != nil {
		return err
	}
	defer stream.Close()

	out, err := os.Create(filepath.Join(attemptDir, pod+".log"))
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, stream)
	return err
}

// readResults tries each pod until one serves the results file. Only the
// coordinator has it, but probing is cheaper than encoding which pod the
// coordinator is.
func (c *Controller) readResults(ctx context.Context, namespace string, pods []string) ([]byte, error) {
	var lastErr error
	for _, pod := range pods {
		data, err := c.driver.ReadFile(ctx, namespace, pod, resultsFile)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no pods to read from")
	}
	return nil, lastErr
}

// teardown removes the impairment rule and the namespace. Both are best
// effort so a half-broken cluster still gets as clean as possible.
func (c *Controller) teardown(ctx context.Context, namespace string, logger zerolog.Logger) {
	if err := c.impairer.Reset(ctx, c.cfg.Cluster.Node); err != nil {
		logger.Warn().Err(err).Msg("teardown impairment reset failed")
	}
	if c.KeepNamespace {
		logger.Info().Msg("keeping namespace for inspection")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.NamespaceDelete)
	defer cancel()
	if err := c.driver.DeleteNamespace(ctx, namespace); err != nil && !errors.Is(err, cluster.ErrNotFound) {
		logger.Warn().Err(err).Msg("teardown namespace delete failed")
	}
}

// transition journals a state change. Journal trouble is logged but never
// interferes with the run itself.
func (c *Controller) transition(logger zerolog.Logger, logicalID string, attempt int, state State, reason string) {
	logger.Info().Str("state", string(state)).Msg("lifecycle transition")
	if c.journal == nil {
		return
	}
	if err := c.journal.Append(logicalID, attempt, string(state), reason); err != nil {
		logger.Warn().Err(err).Msg("failed to journal transition")
	}
}

// clusterReason maps driver errors onto failure reasons, recognizing an
// unreachable control plane as its own non-retryable category.
func clusterReason(err error, fallback types.FailureReason) types.FailureReason {
	if errors.Is(err, cluster.ErrUnreachable) {
		return types.ReasonClusterUnavailable
	}
	return fallback
}
