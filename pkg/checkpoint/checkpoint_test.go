package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flbench/flbench/pkg/types"
)

func outcomeFor(id string, out types.Outcome, attempt int) types.RunOutcome {
	return types.RunOutcome{
		LogicalID: id,
		Outcome:   out,
		Attempt:   attempt,
		StartedAt: time.Now().UTC(),
	}
}

func TestOpenMissingFile(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "checkpoint.yaml"))
	require.NoError(t, err)
	assert.Empty(t, store.Records())
}

func TestPutAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.yaml")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(outcomeFor("sec0_net0_iid_seed1_rep1", types.OutcomeSucceeded, 1), true))
	require.NoError(t, store.Put(outcomeFor("sec1_net2_iid_seed1_rep1", types.OutcomeFailed, 3), true))

	reloaded, err := Open(path)
	require.NoError(t, err)

	rec, ok := reloaded.Get("sec0_net0_iid_seed1_rep1")
	require.True(t, ok)
	assert.Equal(t, types.OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, 1, rec.Attempts)
	assert.True(t, rec.Permanent)

	rec, ok = reloaded.Get("sec1_net2_iid_seed1_rep1")
	require.True(t, ok)
	assert.Equal(t, types.OutcomeFailed, rec.Outcome)
	assert.Equal(t, 3, rec.Attempts)
}

func TestPutLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "checkpoint.yaml"))
	require.NoError(t, err)
	require.NoError(t, store.Put(outcomeFor("sec0_net0_iid_seed1_rep1", types.OutcomeSucceeded, 1), true))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "checkpoint.yaml", entries[0].Name())
}

func TestPutPreservesFirstAt(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "checkpoint.yaml"))
	require.NoError(t, err)

	require.NoError(t, store.Put(outcomeFor("sec0_net0_iid_seed1_rep1", types.OutcomeFailed, 1), false))
	first, _ := store.Get("sec0_net0_iid_seed1_rep1")

	require.NoError(t, store.Put(outcomeFor("sec0_net0_iid_seed1_rep1", types.OutcomeSucceeded, 2), true))
	updated, _ := store.Get("sec0_net0_iid_seed1_rep1")

	assert.Equal(t, first.FirstAt, updated.FirstAt)
	assert.Equal(t, types.OutcomeSucceeded, updated.Outcome)
	assert.Equal(t, 2, updated.Attempts)
}

func TestCorruptFileRejectedUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.yaml")
	garbage := []byte("runs: [not: valid: yaml\n")
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrCorrupt)

	after, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, garbage, after, "corrupt file must be preserved for manual repair")
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.yaml")
	store, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, store.Put(outcomeFor("sec2_net3_iid_seed1_rep1", types.OutcomeFailed, 3), true))
	require.NoError(t, store.Reset("sec2_net3_iid_seed1_rep1"))

	_, ok := store.Get("sec2_net3_iid_seed1_rep1")
	assert.False(t, ok)

	reloaded, err := Open(path)
	require.NoError(t, err)
	_, ok = reloaded.Get("sec2_net3_iid_seed1_rep1")
	assert.False(t, ok)

	assert.NoError(t, store.Reset("never-recorded"))
}

func TestHumanEditedFileReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.yaml")
	edited := `version: 1
runs:
  sec0_net0_iid_seed1_rep1:
    logical_id: sec0_net0_iid_seed1_rep1
    outcome: succeeded
    attempts: 1
    permanent: true
`
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))

	store, err := Open(path)
	require.NoError(t, err)
	rec, ok := store.Get("sec0_net0_iid_seed1_rep1")
	require.True(t, ok)
	assert.Equal(t, types.OutcomeSucceeded, rec.Outcome)
}

func TestSummarize(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "checkpoint.yaml"))
	require.NoError(t, err)

	require.NoError(t, store.Put(outcomeFor("a", types.OutcomeSucceeded, 1), true))
	require.NoError(t, store.Put(outcomeFor("b", types.OutcomeFailed, 3), true))
	require.NoError(t, store.Put(outcomeFor("c", types.OutcomeTimedOut, 2), true))
	require.NoError(t, store.Put(outcomeFor("d", types.OutcomeFailed, 1), false))

	sum := store.Summarize()
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, 1, sum.TimedOut)
	assert.Equal(t, []string{"b", "c"}, sum.Permanent)
}
