package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flbench/flbench/pkg/checkpoint"
	"github.com/flbench/flbench/pkg/types"
)

// scriptedExecutor returns pre-scripted outcomes per logical identity in
// order, then succeeds.
type scriptedExecutor struct {
	mu      sync.Mutex
	scripts map[string][]types.RunOutcome
	calls   []string // logical IDs in execution order
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{scripts: make(map[string][]types.RunOutcome)}
}

func (e *scriptedExecutor) script(id string, outcomes ...types.RunOutcome) {
	e.scripts[id] = outcomes
}

func (e *scriptedExecutor) Execute(_ context.Context, cfg types.RunConfig, attempt int) types.RunOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := cfg.LogicalID()
	e.calls = append(e.calls, id)

	queue := e.scripts[id]
	if len(queue) == 0 {
		return types.RunOutcome{LogicalID: id, Outcome: types.OutcomeSucceeded, Attempt: attempt}
	}
	out := queue[0]
	e.scripts[id] = queue[1:]
	out.LogicalID = id
	out.Attempt = attempt
	return out
}

type fakePinger struct {
	mu       sync.Mutex
	failures int // pings to fail before recovering
	pings    int
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pings++
	if p.failures > 0 {
		p.failures--
		return errors.New("connection refused")
	}
	return nil
}

func testMatrix() Matrix {
	return Matrix{
		Security:      []types.SecurityLevel{types.SecurityBaseline, types.SecurityNetworkPolicy},
		Network:       []types.NetworkProfile{types.NetBaseline, types.NetEdgeTypic},
		Distributions: []types.Distribution{types.DistributionIID},
		Clients:       4,
		Rounds:        10,
		Seeds:         []int{1},
		Replicas:      1,
	}
}

func testStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	store, err := checkpoint.Open(filepath.Join(t.TempDir(), "checkpoint.yaml"))
	require.NoError(t, err)
	return store
}

func fastScheduler(executor Executor, pinger Pinger, store *checkpoint.Store) *Scheduler {
	s := New(executor, pinger, store)
	s.PingInterval = time.Millisecond
	s.MaxPingInterval = 20 * time.Millisecond
	return s
}

func failed(reason types.FailureReason) types.RunOutcome {
	return types.RunOutcome{Outcome: types.OutcomeFailed, Reason: reason}
}

func timedOut() types.RunOutcome {
	return types.RunOutcome{Outcome: types.OutcomeTimedOut, Reason: types.ReasonExperimentTimedOut}
}

func TestEnumerateDeterministic(t *testing.T) {
	m := testMatrix()
	first := m.Enumerate()
	second := m.Enumerate()
	require.Equal(t, first, second)

	ids := make([]string, len(first))
	for i, cfg := range first {
		ids[i] = cfg.LogicalID()
	}
	assert.Equal(t, []string{
		"sec0_net0_iid_seed1_rep1",
		"sec0_net2_iid_seed1_rep1",
		"sec1_net0_iid_seed1_rep1",
		"sec1_net2_iid_seed1_rep1",
	}, ids)
}

func TestEnumerateAlphaOnlyForNonIID(t *testing.T) {
	m := testMatrix()
	m.Distributions = []types.Distribution{types.DistributionIID, types.DistributionNonIID}
	m.Alpha = 0.5

	for _, cfg := range m.Enumerate() {
		if cfg.Distribution == types.DistributionNonIID {
			assert.Equal(t, 0.5, cfg.Alpha)
		} else {
			assert.Zero(t, cfg.Alpha)
		}
	}
}

func TestMatrixValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Matrix)
	}{
		{"no security levels", func(m *Matrix) { m.Security = nil }},
		{"no network profiles", func(m *Matrix) { m.Network = nil }},
		{"no distributions", func(m *Matrix) { m.Distributions = nil }},
		{"no seeds", func(m *Matrix) { m.Seeds = nil }},
		{"zero replicas", func(m *Matrix) { m.Replicas = 0 }},
		{"zero clients", func(m *Matrix) { m.Clients = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMatrix()
			tt.mutate(&m)
			assert.Error(t, m.Validate())
		})
	}
	assert.NoError(t, testMatrix().Validate())
}

func TestRunAllSucceed(t *testing.T) {
	executor := newScriptedExecutor()
	store := testStore(t)

	s := fastScheduler(executor, &fakePinger{}, store)
	summary, err := s.Run(context.Background(), testMatrix())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 4, summary.Executed)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Empty(t, summary.Permanent)
	assert.Len(t, executor.calls, 4)
}

func TestRunRetriesTransientFailureAtCurrentPosition(t *testing.T) {
	executor := newScriptedExecutor()
	// Third cell fails twice, succeeds on attempt 3.
	executor.script("sec1_net0_iid_seed1_rep1",
		failed(types.ReasonDeploymentNotReady),
		failed(types.ReasonDeploymentNotReady),
	)
	store := testStore(t)

	s := fastScheduler(executor, &fakePinger{}, store)
	summary, err := s.Run(context.Background(), testMatrix())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, []string{
		"sec0_net0_iid_seed1_rep1",
		"sec0_net2_iid_seed1_rep1",
		"sec1_net0_iid_seed1_rep1",
		"sec1_net0_iid_seed1_rep1",
		"sec1_net0_iid_seed1_rep1",
		"sec1_net2_iid_seed1_rep1",
	}, executor.calls, "retries must happen in place, not after the sweep")

	rec, ok := store.Get("sec1_net0_iid_seed1_rep1")
	require.True(t, ok)
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, types.OutcomeSucceeded, rec.Outcome)
}

func TestRunAttemptBudgetExhausted(t *testing.T) {
	executor := newScriptedExecutor()
	executor.script("sec0_net0_iid_seed1_rep1",
		failed(types.ReasonWorkloadFailed),
		failed(types.ReasonWorkloadFailed),
		failed(types.ReasonWorkloadFailed),
		failed(types.ReasonWorkloadFailed), // never reached
	)
	store := testStore(t)

	s := fastScheduler(executor, &fakePinger{}, store)
	summary, err := s.Run(context.Background(), testMatrix())
	require.NoError(t, err)

	count := 0
	for _, id := range executor.calls {
		if id == "sec0_net0_iid_seed1_rep1" {
			count++
		}
	}
	assert.Equal(t, 3, count, "attempts must stop at the budget")
	assert.Equal(t, []string{"sec0_net0_iid_seed1_rep1"}, summary.Permanent)
	assert.Equal(t, 3, summary.Succeeded, "remaining cells still run")
}

func TestRunTimedOutRetriedOnce(t *testing.T) {
	executor := newScriptedExecutor()
	executor.script("sec0_net0_iid_seed1_rep1", timedOut(), timedOut(), timedOut())
	store := testStore(t)

	s := fastScheduler(executor, &fakePinger{}, store)
	summary, err := s.Run(context.Background(), testMatrix())
	require.NoError(t, err)

	count := 0
	for _, id := range executor.calls {
		if id == "sec0_net0_iid_seed1_rep1" {
			count++
		}
	}
	assert.Equal(t, 2, count, "a timed-out run gets exactly one retry")
	assert.Contains(t, summary.Permanent, "sec0_net0_iid_seed1_rep1")
	assert.Equal(t, 1, summary.TimedOut)
}

func TestRunNonRetryableFailure(t *testing.T) {
	executor := newScriptedExecutor()
	executor.script("sec0_net0_iid_seed1_rep1", failed(types.ReasonConfigInvalid))
	store := testStore(t)

	s := fastScheduler(executor, &fakePinger{}, store)
	summary, err := s.Run(context.Background(), testMatrix())
	require.NoError(t, err)

	count := 0
	for _, id := range executor.calls {
		if id == "sec0_net0_iid_seed1_rep1" {
			count++
		}
	}
	assert.Equal(t, 1, count, "misconfiguration must not be retried")
	assert.Contains(t, summary.Permanent, "sec0_net0_iid_seed1_rep1")
}

func TestRunSkipsCheckpointedOutcomes(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Put(types.RunOutcome{
		LogicalID: "sec0_net0_iid_seed1_rep1",
		Outcome:   types.OutcomeSucceeded,
		Attempt:   1,
	}, true))
	require.NoError(t, store.Put(types.RunOutcome{
		LogicalID: "sec0_net2_iid_seed1_rep1",
		Outcome:   types.OutcomeFailed,
		Reason:    types.ReasonWorkloadFailed,
		Attempt:   3,
	}, true))

	executor := newScriptedExecutor()
	s := fastScheduler(executor, &fakePinger{}, store)
	summary, err := s.Run(context.Background(), testMatrix())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 2, summary.Executed)
	assert.NotContains(t, executor.calls, "sec0_net0_iid_seed1_rep1")
	assert.NotContains(t, executor.calls, "sec0_net2_iid_seed1_rep1")
}

func TestRunResumesAttemptCount(t *testing.T) {
	store := testStore(t)
	// Previous invocation recorded a non-final failure at attempt 1.
	require.NoError(t, store.Put(types.RunOutcome{
		LogicalID: "sec0_net0_iid_seed1_rep1",
		Outcome:   types.OutcomeFailed,
		Reason:    types.ReasonWorkloadFailed,
		Attempt:   1,
	}, false))

	executor := newScriptedExecutor()
	s := fastScheduler(executor, &fakePinger{}, store)
	_, err := s.Run(context.Background(), testMatrix())
	require.NoError(t, err)

	rec, ok := store.Get("sec0_net0_iid_seed1_rep1")
	require.True(t, ok)
	assert.Equal(t, 2, rec.Attempts, "resumed run continues its attempt count")
	assert.Equal(t, types.OutcomeSucceeded, rec.Outcome)
}

func TestRunCheckpointsAfterEveryTerminalOutcome(t *testing.T) {
	executor := newScriptedExecutor()
	executor.script("sec0_net0_iid_seed1_rep1", failed(types.ReasonWorkloadFailed))
	store := testStore(t)

	s := fastScheduler(executor, &fakePinger{}, store)
	_, err := s.Run(context.Background(), testMatrix())
	require.NoError(t, err)

	// Every cell, including the retried one, has a record.
	assert.Len(t, store.Records(), 4)
}

func TestRunClusterUnavailableNotCharged(t *testing.T) {
	executor := newScriptedExecutor()
	executor.script("sec0_net0_iid_seed1_rep1",
		failed(types.ReasonClusterUnavailable),
		failed(types.ReasonClusterUnavailable),
	)
	store := testStore(t)

	s := fastScheduler(executor, &fakePinger{}, store)
	summary, err := s.Run(context.Background(), testMatrix())
	require.NoError(t, err)

	rec, ok := store.Get("sec0_net0_iid_seed1_rep1")
	require.True(t, ok)
	assert.Equal(t, types.OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, 1, rec.Attempts, "environmental stalls must not consume the budget")
	assert.Equal(t, 4, summary.Succeeded)
}

func TestRunConnectivityGate(t *testing.T) {
	pinger := &fakePinger{failures: 3}
	executor := newScriptedExecutor()
	store := testStore(t)

	s := fastScheduler(executor, pinger, store)
	summary, err := s.Run(context.Background(), testMatrix())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Succeeded)
	assert.GreaterOrEqual(t, pinger.pings, 7, "gate must keep probing until the cluster answers")
}

func TestRunContextCancelled(t *testing.T) {
	executor := newScriptedExecutor()
	store := testStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := fastScheduler(executor, &fakePinger{}, store)
	_, err := s.Run(ctx, testMatrix())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, executor.calls)
}

func TestRunCooldownBetweenRuns(t *testing.T) {
	executor := newScriptedExecutor()
	store := testStore(t)

	s := fastScheduler(executor, &fakePinger{}, store)
	s.Cooldown = 20 * time.Millisecond

	start := time.Now()
	_, err := s.Run(context.Background(), testMatrix())
	require.NoError(t, err)

	// Three pauses between four runs.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}
