package detector

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/flbench/flbench/pkg/cluster"
	"github.com/flbench/flbench/pkg/log"
	"github.com/flbench/flbench/pkg/types"
)

// Marker event names emitted by the coordinator on its stdout. These are
// the only two terminal markers; everything else in the log stream is
// progress chatter.
const (
	eventEnd    = "experiment_end"
	eventFailed = "experiment_failed"
)

// tailLines bounds how much coordinator log each poll fetches. Terminal
// markers are the last thing the coordinator prints, so a short tail is
// enough and keeps poll cost flat over long runs.
const tailLines = 200

// Result is the detector's verdict on one attempt.
type Result struct {
	Outcome types.Outcome
	Reason  types.FailureReason
}

// marker is the JSON shape of a coordinator log line we care about.
// Unknown fields are ignored so the coordinator can carry extra payload.
type marker struct {
	Event string `json:"event"`
	RunID string `json:"run_id"`
}

// Detector polls a coordinator pod's logs for a structured terminal
// marker, racing against a run deadline.
type Detector struct {
	driver       cluster.Driver
	pollInterval time.Duration
	selector     string
}

// New returns a detector watching pods matching selector through driver.
func New(driver cluster.Driver, selector string, pollInterval time.Duration) *Detector {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Detector{driver: driver, pollInterval: pollInterval, selector: selector}
}

// Wait blocks until the coordinator in namespace emits a terminal marker
// for runID, the pod dies, the deadline passes or ctx is cancelled. The
// run_id of the marker must match exactly; markers from a leaked earlier
// deployment are ignored.
func (d *Detector) Wait(ctx context.Context, namespace, runID string, deadline time.Duration) (Result, error) {
	logger := log.WithRunID(runID).With().Str("component", "detector").Logger()
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	logger.Info().
		Str("namespace", namespace).
		Dur("deadline", deadline).
		Msg("awaiting completion marker")

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
			logger.Warn().Msg("run deadline expired without terminal marker")
			return Result{Outcome: types.OutcomeTimedOut, Reason: types.ReasonExperimentTimedOut}, nil
		case <-ticker.C:
			res, done, err := d.poll(ctx, namespace, runID, logger)
			if err != nil {
				// Transient cluster trouble mid-run is retried on the
				// next tick; the deadline bounds how long that can go on.
				logger.Debug().Err(err).Msg("poll failed, will retry")
				continue
			}
			if done {
				return res, nil
			}
		}
	}
}

// poll inspects pod health first, then scans the log tail for a marker.
func (d *Detector) poll(ctx context.Context, namespace, runID string, logger zerolog.Logger) (Result, bool, error) {
	phase, err := d.driver.PodPhase(ctx, namespace, d.selector)
	if err != nil {
		return Result{}, false, fmt.Errorf("failed to query pod phase: %w", err)
	}
	switch phase {
	case cluster.PhaseFailed, cluster.PhaseUnknown:
		logger.Warn().Str("phase", string(phase)).Msg("workload pod unhealthy")
		return Result{Outcome: types.OutcomeFailed, Reason: types.ReasonWorkloadFailed}, true, nil
	}

	pods, err := d.driver.PodNames(ctx, namespace, d.selector)
	if err != nil {
		return Result{}, false, fmt.Errorf("failed to list pods: %w", err)
	}

	for _, pod := range pods {
		res, found, err := d.scanPodLogs(ctx, namespace, pod, runID)
		if err != nil {
			return Result{}, false, err
		}
		if found {
			logger.Info().
				Str("pod", pod).
				Str("outcome", string(res.Outcome)).
				Msg("terminal marker observed")
			return res, true, nil
		}
	}
	return Result{}, false, nil
}

func (d *Detector) scanPodLogs(ctx context.Context, namespace, pod, runID string) (Result, bool, error) {
	stream, err := d.driver.StreamLogs(ctx, namespace, pod, false, tailLines)
	if err != nil {
		return Result{}, false, fmt.Errorf("failed to fetch logs for %s: %w", pod, err)
	}
	defer stream.Close()
	return ScanMarkers(stream, runID)
}

// ScanMarkers reads log lines and returns the verdict of the first
// terminal marker whose run_id matches. Non-JSON lines and markers for
// other runs are skipped.
func ScanMarkers(r io.Reader, runID string) (Result, bool, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] != '{' {
			continue
		}
		var m marker
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			continue
		}
		if m.RunID != runID {
			continue
		}
		switch m.Event {
		case eventEnd:
			return Result{Outcome: types.OutcomeSucceeded}, true, nil
		case eventFailed:
			return Result{Outcome: types.OutcomeFailed, Reason: types.ReasonWorkloadFailed}, true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, false, fmt.Errorf("failed to read log stream: %w", err)
	}
	return Result{}, false, nil
}
