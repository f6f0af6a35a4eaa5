package netem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flbench/flbench/pkg/log"
	"github.com/flbench/flbench/pkg/types"
)

// ErrUnknownProfile marks a profile name outside the fixed table.
var ErrUnknownProfile = errors.New("unknown network profile")

// Profile is one entry of the fixed impairment table. The table is part of
// the experimental design space and is not extensible at runtime.
type Profile struct {
	Name    types.NetworkProfile
	Delay   time.Duration
	Jitter  time.Duration
	LossPct float64
	Rate    string // tc rate string, e.g. "10mbit"; empty = uncapped
}

var profiles = map[types.NetworkProfile]Profile{
	types.NetBaseline:  {Name: types.NetBaseline},
	types.NetEdgeGood:  {Name: types.NetEdgeGood, Delay: 20 * time.Millisecond, Jitter: 5 * time.Millisecond},
	types.NetEdgeTypic: {Name: types.NetEdgeTypic, Delay: 50 * time.Millisecond, Jitter: 10 * time.Millisecond, LossPct: 0.5},
	types.NetEdgePoor:  {Name: types.NetEdgePoor, Delay: 100 * time.Millisecond, Jitter: 20 * time.Millisecond, LossPct: 1},
	types.NetCellular:  {Name: types.NetCellular, Delay: 100 * time.Millisecond, Jitter: 50 * time.Millisecond, LossPct: 3, Rate: "10mbit"},
	types.NetSatellite: {Name: types.NetSatellite, Delay: 300 * time.Millisecond, Jitter: 100 * time.Millisecond, LossPct: 5, Rate: "5mbit"},
}

// Lookup resolves a profile name against the fixed table.
func Lookup(name types.NetworkProfile) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return p, nil
}

// Runner executes a traffic-control command on a node. LocalRunner and
// SSHRunner implement it for the two reference deployments.
type Runner interface {
	Run(ctx context.Context, node string, argv []string) ([]byte, error)
}

// Controller applies and removes impairment profiles on a node's active
// interface via tc/netem.
type Controller struct {
	runner Runner
	iface  string
}

// NewController returns a controller shaping the given interface.
func NewController(runner Runner, iface string) *Controller {
	return &Controller{runner: runner, iface: iface}
}

// Apply installs the named profile on the node. The baseline profile is a
// no-op. Apply uses `tc qdisc replace`, so applying over an existing rule
// atomically replaces it; rules are never stacked.
func (c *Controller) Apply(ctx context.Context, name types.NetworkProfile, node string) error {
	profile, err := Lookup(name)
	if err != nil {
		return err
	}
	logger := log.WithComponent("netem")
	if name.IsBaseline() {
		logger.Debug().
			Str("profile", string(name)).
			Msg("baseline profile, nothing to apply")
		return nil
	}

	argv := applyArgs(profile, c.iface)
	out, err := c.runner.Run(ctx, node, argv)
	if err != nil {
		return fmt.Errorf("failed to apply profile %s on %s: %w (%s)",
			name, node, err, strings.TrimSpace(string(out)))
	}
	logger.Info().
		Str("profile", string(name)).
		Str("node", node).
		Str("iface", c.iface).
		Msg("impairment applied")
	return nil
}

// Reset removes any installed shaping rule. A node with no rule installed
// is already in the desired state, so tc's "nothing to delete" errors are
// swallowed.
func (c *Controller) Reset(ctx context.Context, node string) error {
	argv := []string{"tc", "qdisc", "del", "dev", c.iface, "root"}
	out, err := c.runner.Run(ctx, node, argv)
	if err != nil {
		if noQdiscInstalled(out) {
			return nil
		}
		return fmt.Errorf("failed to reset impairment on %s: %w (%s)",
			node, err, strings.TrimSpace(string(out)))
	}
	logger := log.WithComponent("netem")
	logger.Info().
		Str("node", node).
		Str("iface", c.iface).
		Msg("impairment reset")
	return nil
}

// applyArgs renders the tc command for a profile. "replace" rather than
// "add" is what makes repeated Apply calls atomic.
func applyArgs(p Profile, iface string) []string {
	argv := []string{"tc", "qdisc", "replace", "dev", iface, "root", "netem"}
	if p.Delay > 0 {
		argv = append(argv, "delay", tcDuration(p.Delay))
		if p.Jitter > 0 {
			argv = append(argv, tcDuration(p.Jitter))
		}
	}
	if p.LossPct > 0 {
		argv = append(argv, "loss", fmt.Sprintf("%g%%", p.LossPct))
	}
	if p.Rate != "" {
		argv = append(argv, "rate", p.Rate)
	}
	return argv
}

func tcDuration(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// noQdiscInstalled matches the tc error variants emitted when the root
// qdisc is absent, which differ across iproute2 versions.
func noQdiscInstalled(out []byte) bool {
	s := string(out)
	return strings.Contains(s, "Cannot delete qdisc with handle of zero") ||
		strings.Contains(s, "No such file or directory") ||
		strings.Contains(s, "Invalid handle")
}
