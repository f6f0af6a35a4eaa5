package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flbench/flbench/pkg/log"
	"github.com/flbench/flbench/pkg/types"
)

// ErrCorrupt marks a checkpoint file that exists but cannot be parsed.
// The file on disk is left untouched so the operator can inspect or
// repair it by hand.
var ErrCorrupt = errors.New("checkpoint file is corrupt")

// fileFormat is the on-disk document. Records are keyed by logical run
// identity; a map keeps hand edits order-insensitive.
type fileFormat struct {
	Version int                               `yaml:"version"`
	Runs    map[string]types.CheckpointRecord `yaml:"runs"`
}

const formatVersion = 1

// Store persists matrix progress as a single YAML file keyed by logical
// run identity. The file is meant to be read and edited by operators, so
// every write goes through a temp file, fsync and rename to keep it
// parseable after a crash.
type Store struct {
	path string

	mu   sync.Mutex
	runs map[string]types.CheckpointRecord
}

// Open loads the checkpoint at path. A missing file yields an empty store;
// an unparseable file yields ErrCorrupt without modifying it.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		runs: make(map[string]types.CheckpointRecord),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}

	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if doc.Runs != nil {
		s.runs = doc.Runs
	}
	logger := log.WithComponent("checkpoint")
	logger.Info().
		Str("path", path).
		Int("records", len(s.runs)).
		Msg("checkpoint loaded")
	return s, nil
}

// Get returns the record for a logical run identity, if any.
func (s *Store) Get(logicalID string) (types.CheckpointRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[logicalID]
	return rec, ok
}

// Put records the outcome of one attempt and persists the whole file
// before returning. The first write for an identity sets FirstAt; later
// writes only advance UpdatedAt.
func (s *Store) Put(outcome types.RunOutcome, permanent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec, ok := s.runs[outcome.LogicalID]
	if !ok {
		rec = types.CheckpointRecord{LogicalID: outcome.LogicalID, FirstAt: now}
	}
	rec.Outcome = outcome.Outcome
	rec.Reason = outcome.Reason
	rec.Attempts = outcome.Attempt
	rec.Permanent = permanent
	rec.ArtifactDir = outcome.ArtifactDir
	rec.UpdatedAt = now
	s.runs[outcome.LogicalID] = rec

	return s.flushLocked()
}

// Reset removes the record for a logical identity so a rerun starts
// fresh. Resetting an unknown identity is a no-op.
func (s *Store) Reset(logicalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[logicalID]; !ok {
		return nil
	}
	delete(s.runs, logicalID)
	return s.flushLocked()
}

// Records returns all records sorted by logical identity.
func (s *Store) Records() []types.CheckpointRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.CheckpointRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogicalID < out[j].LogicalID })
	return out
}

// Summary tallies recorded outcomes.
type Summary struct {
	Succeeded int
	Failed    int
	TimedOut  int
	Permanent []string
}

// Summarize reduces the store to outcome counts plus the identities that
// exhausted their retry budget.
func (s *Store) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum Summary
	for id, rec := range s.runs {
		switch rec.Outcome {
		case types.OutcomeSucceeded:
			sum.Succeeded++
		case types.OutcomeFailed:
			sum.Failed++
		case types.OutcomeTimedOut:
			sum.TimedOut++
		}
		if rec.Permanent && rec.Outcome != types.OutcomeSucceeded {
			sum.Permanent = append(sum.Permanent, id)
		}
	}
	sort.Strings(sum.Permanent)
	return sum
}

// flushLocked writes the full document through a temp file in the same
// directory, fsyncs it and renames it over the target. Rename on the same
// filesystem is atomic, so readers always see a complete document.
func (s *Store) flushLocked() error {
	doc := fileFormat{Version: formatVersion, Runs: s.runs}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return syncDir(dir)
}

// syncDir flushes the directory entry so the rename itself survives a
// crash, not just the file contents.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync checkpoint dir: %w", err)
	}
	return nil
}
