package detector

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flbench/flbench/pkg/cluster"
	"github.com/flbench/flbench/pkg/types"
)

const selector = "app=fl-server"

func TestScanMarkers(t *testing.T) {
	tests := []struct {
		name      string
		logs      string
		runID     string
		wantFound bool
		want      Result
	}{
		{
			name:      "success marker",
			logs:      `{"event":"experiment_end","run_id":"run-1","rounds_completed":10}`,
			runID:     "run-1",
			wantFound: true,
			want:      Result{Outcome: types.OutcomeSucceeded},
		},
		{
			name:      "failure marker",
			logs:      `{"event":"experiment_failed","run_id":"run-1","error":"client crashed"}`,
			runID:     "run-1",
			wantFound: true,
			want:      Result{Outcome: types.OutcomeFailed, Reason: types.ReasonWorkloadFailed},
		},
		{
			name:      "marker for another run ignored",
			logs:      `{"event":"experiment_end","run_id":"stale-run"}`,
			runID:     "run-1",
			wantFound: false,
		},
		{
			name: "non-json chatter skipped",
			logs: strings.Join([]string{
				"INFO starting round 1",
				`{"event":"round_end","run_id":"run-1","round":1}`,
				"{broken json",
				`{"event":"experiment_end","run_id":"run-1"}`,
			}, "\n"),
			runID:     "run-1",
			wantFound: true,
			want:      Result{Outcome: types.OutcomeSucceeded},
		},
		{
			name:      "no marker at all",
			logs:      "INFO round 1\nINFO round 2\n",
			runID:     "run-1",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, found, err := ScanMarkers(strings.NewReader(tt.logs), tt.runID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, tt.want, res)
			}
		})
	}
}

func TestWaitSucceedsOnMarker(t *testing.T) {
	fake := cluster.NewFake()
	require.NoError(t, fake.CreateNamespace(context.Background(), "ns"))
	fake.SetPods(selector, "fl-server-0")
	fake.SetPhase(selector, cluster.PhaseRunning)
	fake.SetLogs("fl-server-0", `{"event":"experiment_end","run_id":"run-1"}`)

	d := New(fake, selector, 10*time.Millisecond)
	res, err := d.Wait(context.Background(), "ns", "run-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSucceeded, res.Outcome)
}

func TestWaitFailsWhenPodDies(t *testing.T) {
	fake := cluster.NewFake()
	require.NoError(t, fake.CreateNamespace(context.Background(), "ns"))
	fake.SetPods(selector, "fl-server-0")
	fake.SetPhase(selector, cluster.PhaseFailed)

	d := New(fake, selector, 10*time.Millisecond)
	res, err := d.Wait(context.Background(), "ns", "run-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.Equal(t, types.ReasonWorkloadFailed, res.Reason)
}

func TestWaitDeadline(t *testing.T) {
	fake := cluster.NewFake()
	require.NoError(t, fake.CreateNamespace(context.Background(), "ns"))
	fake.SetPods(selector, "fl-server-0")
	fake.SetPhase(selector, cluster.PhaseRunning)
	fake.SetLogs("fl-server-0", "INFO still training\n")

	d := New(fake, selector, 10*time.Millisecond)

	start := time.Now()
	res, err := d.Wait(context.Background(), "ns", "run-1", 50*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeTimedOut, res.Outcome)
	assert.Equal(t, types.ReasonExperimentTimedOut, res.Reason)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitStaleMarkerNeverCompletes(t *testing.T) {
	fake := cluster.NewFake()
	require.NoError(t, fake.CreateNamespace(context.Background(), "ns"))
	fake.SetPods(selector, "fl-server-0")
	fake.SetPhase(selector, cluster.PhaseRunning)
	fake.SetLogs("fl-server-0", `{"event":"experiment_end","run_id":"old-run"}`)

	d := New(fake, selector, 10*time.Millisecond)
	res, err := d.Wait(context.Background(), "ns", "run-1", 80*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeTimedOut, res.Outcome)
}

func TestWaitContextCancelled(t *testing.T) {
	fake := cluster.NewFake()
	require.NoError(t, fake.CreateNamespace(context.Background(), "ns"))
	fake.SetPods(selector, "fl-server-0")
	fake.SetPhase(selector, cluster.PhaseRunning)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(fake, selector, 10*time.Millisecond)
	_, err := d.Wait(ctx, "ns", "run-1", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
