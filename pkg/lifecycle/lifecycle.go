package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/flbench/flbench/pkg/cluster"
	"github.com/flbench/flbench/pkg/config"
	"github.com/flbench/flbench/pkg/detector"
	"github.com/flbench/flbench/pkg/types"
)

// State is a phase of the run lifecycle. States advance strictly in
// order; a failure in any state routes through StateAborting to
// StateTornDown.
type State string

const (
	StateInit               State = "init"
	StateNamespaceReady     State = "namespace_ready"
	StateConfigInjected     State = "config_injected"
	StateWorkloadDeployed   State = "workload_deployed"
	StateImpairmentApplied  State = "impairment_applied"
	StateAwaitingCompletion State = "awaiting_completion"
	StateArtifactsCollected State = "artifacts_collected"
	StateTornDown           State = "torn_down"
	StateAborting           State = "aborting"
)

// Impairer applies and removes network impairment on a node.
// *netem.Controller satisfies it.
type Impairer interface {
	Apply(ctx context.Context, profile types.NetworkProfile, node string) error
	Reset(ctx context.Context, node string) error
}

// Waiter blocks until a run reaches a terminal verdict.
// *detector.Detector satisfies it.
type Waiter interface {
	Wait(ctx context.Context, namespace, runID string, deadline time.Duration) (detector.Result, error)
}

// Recorder journals lifecycle transitions. *journal.Journal satisfies it.
type Recorder interface {
	Append(logicalID string, attempt int, state, reason string) error
}

// Controller executes one experiment attempt end to end.
type Controller struct {
	driver   cluster.Driver
	impairer Impairer
	waiter   Waiter
	journal  Recorder
	cfg      config.Config

	// KeepNamespace skips namespace deletion at teardown so the operator
	// can inspect a failed run in place.
	KeepNamespace bool
	// Version is stamped into each attempt's metadata record.
	Version string
}

// New wires a controller from its collaborators.
func New(driver cluster.Driver, impairer Impairer, waiter Waiter, journal Recorder, cfg config.Config) *Controller {
	return &Controller{
		driver:   driver,
		impairer: impairer,
		waiter:   waiter,
		journal:  journal,
		cfg:      cfg,
	}
}

// Namespace derives the run's namespace from its logical identity. The
// mapping is deterministic so a crashed attempt's leftovers are found and
// removed by the next attempt of the same run.
func Namespace(cfg types.RunConfig) string {
	return NamespaceForID(cfg.LogicalID())
}

// NamespaceForID is Namespace for callers that only hold the logical
// identity string, like manual teardown of a crashed run.
func NamespaceForID(id string) string {
	id = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, id)
	name := "flbench-" + id
	if len(name) > 63 {
		name = name[:63]
	}
	return strings.TrimRight(name, "-")
}
