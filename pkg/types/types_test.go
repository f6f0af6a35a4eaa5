package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestLogicalIDStable verifies the identity is deterministic and free of
// wall-clock components across repeated derivations.
func TestLogicalIDStable(t *testing.T) {
	cfg := RunConfig{
		Security:     SecurityMTLS,
		Network:      NetEdgeTypic,
		Clients:      5,
		Rounds:       50,
		Distribution: DistributionNonIID,
		Alpha:        0.5,
		Seed:         42,
		Replica:      1,
	}

	first := cfg.LogicalID()
	time.Sleep(5 * time.Millisecond)
	second := cfg.LogicalID()

	assert.Equal(t, first, second)
	assert.Equal(t, "sec2_net2_noniid-a0.5_seed42_rep1", first)
}

// TestLogicalIDDistinguishes verifies every identity dimension changes the ID.
func TestLogicalIDDistinguishes(t *testing.T) {
	base := RunConfig{
		Security:     SecurityBaseline,
		Network:      NetBaseline,
		Clients:      5,
		Rounds:       10,
		Distribution: DistributionIID,
		Seed:         0,
		Replica:      0,
	}

	variants := []RunConfig{base, base, base, base, base}
	variants[0].Security = SecurityNetworkPolicy
	variants[1].Network = NetCellular
	variants[2].Distribution = DistributionNonIID
	variants[2].Alpha = 0.1
	variants[3].Seed = 1
	variants[4].Replica = 1

	seen := map[string]bool{base.LogicalID(): true}
	for _, v := range variants {
		id := v.LogicalID()
		assert.False(t, seen[id], "identity collision for %+v", v)
		seen[id] = true
	}
}

func TestAttemptIDCarriesTimestamp(t *testing.T) {
	cfg := RunConfig{
		Security:     SecurityBaseline,
		Network:      NetBaseline,
		Clients:      5,
		Rounds:       10,
		Distribution: DistributionIID,
	}

	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	assert.Equal(t, cfg.LogicalID()+"_20260314T092653Z", cfg.AttemptID(at))
}

func TestRunConfigValidate(t *testing.T) {
	valid := RunConfig{
		Security:     SecurityBaseline,
		Network:      NetEdgeTypic,
		Clients:      5,
		Rounds:       50,
		Distribution: DistributionIID,
		Seed:         0,
	}

	tests := []struct {
		name    string
		mutate  func(*RunConfig)
		wantErr bool
	}{
		{name: "valid iid", mutate: func(c *RunConfig) {}, wantErr: false},
		{name: "valid noniid", mutate: func(c *RunConfig) {
			c.Distribution = DistributionNonIID
			c.Alpha = 0.5
		}, wantErr: false},
		{name: "unknown security", mutate: func(c *RunConfig) { c.Security = "SEC9" }, wantErr: true},
		{name: "unknown network", mutate: func(c *RunConfig) { c.Network = "NET9" }, wantErr: true},
		{name: "unknown distribution", mutate: func(c *RunConfig) { c.Distribution = "sharded" }, wantErr: true},
		{name: "zero clients", mutate: func(c *RunConfig) { c.Clients = 0 }, wantErr: true},
		{name: "negative rounds", mutate: func(c *RunConfig) { c.Rounds = -1 }, wantErr: true},
		{name: "noniid without alpha", mutate: func(c *RunConfig) { c.Distribution = DistributionNonIID }, wantErr: true},
		{name: "negative seed", mutate: func(c *RunConfig) { c.Seed = -1 }, wantErr: true},
		{name: "negative replica", mutate: func(c *RunConfig) { c.Replica = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseEnums(t *testing.T) {
	lvl, err := ParseSecurityLevel("sec2")
	assert.NoError(t, err)
	assert.Equal(t, SecurityMTLS, lvl)

	_, err = ParseSecurityLevel("SEC7")
	assert.Error(t, err)

	prof, err := ParseNetworkProfile("net4")
	assert.NoError(t, err)
	assert.Equal(t, NetCellular, prof)

	_, err = ParseNetworkProfile("wifi")
	assert.Error(t, err)

	dist, err := ParseDistribution("NONIID")
	assert.NoError(t, err)
	assert.Equal(t, DistributionNonIID, dist)
}

func TestFailureReasonRetryable(t *testing.T) {
	assert.True(t, ReasonWorkloadFailed.Retryable())
	assert.True(t, ReasonDeploymentNotReady.Retryable())
	assert.True(t, ReasonExperimentTimedOut.Retryable())
	assert.False(t, ReasonConfigInvalid.Retryable())
	assert.False(t, ReasonClusterUnavailable.Retryable())
}
