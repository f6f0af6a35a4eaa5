package scheduler

import (
	"errors"
	"fmt"

	"github.com/flbench/flbench/pkg/types"
)

// ErrEmptyMatrix marks a matrix with an empty axis.
var ErrEmptyMatrix = errors.New("matrix axis is empty")

// Matrix spans the experiment space as a Cartesian product of its axes.
type Matrix struct {
	Security      []types.SecurityLevel  `yaml:"security"`
	Network       []types.NetworkProfile `yaml:"network"`
	Distributions []types.Distribution   `yaml:"distributions"`
	// Alpha is the Dirichlet concentration used by every non-IID cell.
	Alpha    float64 `yaml:"alpha"`
	Clients  int     `yaml:"clients"`
	Rounds   int     `yaml:"rounds"`
	Seeds    []int   `yaml:"seeds"`
	Replicas int     `yaml:"replicas"`
}

// Validate checks that every axis is populated and each cell would pass
// run-config validation.
func (m Matrix) Validate() error {
	switch {
	case len(m.Security) == 0:
		return fmt.Errorf("%w: security", ErrEmptyMatrix)
	case len(m.Network) == 0:
		return fmt.Errorf("%w: network", ErrEmptyMatrix)
	case len(m.Distributions) == 0:
		return fmt.Errorf("%w: distributions", ErrEmptyMatrix)
	case len(m.Seeds) == 0:
		return fmt.Errorf("%w: seeds", ErrEmptyMatrix)
	case m.Replicas < 1:
		return fmt.Errorf("%w: replicas", ErrEmptyMatrix)
	}
	for _, cfg := range m.Enumerate() {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid cell %s: %w", cfg.LogicalID(), err)
		}
	}
	return nil
}

// Enumerate expands the matrix into run configs in a fixed nesting order:
// security, then network, then distribution, then seed, then replica.
// The order is part of the contract; checkpointed resumption depends on
// two invocations walking the same sequence.
func (m Matrix) Enumerate() []types.RunConfig {
	var out []types.RunConfig
	for _, sec := range m.Security {
		for _, net := range m.Network {
			for _, dist := range m.Distributions {
				for _, seed := range m.Seeds {
					for rep := 1; rep <= m.Replicas; rep++ {
						cfg := types.RunConfig{
							Security:     sec,
							Network:      net,
							Distribution: dist,
							Clients:      m.Clients,
							Rounds:       m.Rounds,
							Seed:         seed,
							Replica:      rep,
						}
						if dist == types.DistributionNonIID {
							cfg.Alpha = m.Alpha
						}
						out = append(out, cfg)
					}
				}
			}
		}
	}
	return out
}
