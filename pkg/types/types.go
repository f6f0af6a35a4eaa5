package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SecurityLevel selects one of the pre-authored workload manifest variants.
type SecurityLevel string

const (
	SecurityBaseline      SecurityLevel = "SEC0" // no hardening
	SecurityNetworkPolicy SecurityLevel = "SEC1" // baseline + NetworkPolicy
	SecurityMTLS          SecurityLevel = "SEC2" // baseline + service-mesh mTLS
	SecurityCombined      SecurityLevel = "SEC3" // NetworkPolicy + mTLS
)

// SecurityLevels returns all levels in matrix enumeration order.
func SecurityLevels() []SecurityLevel {
	return []SecurityLevel{SecurityBaseline, SecurityNetworkPolicy, SecurityMTLS, SecurityCombined}
}

// ParseSecurityLevel validates a flag value against the fixed set.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	for _, l := range SecurityLevels() {
		if string(l) == strings.ToUpper(s) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown security level %q", s)
}

// NetworkProfile names a fixed traffic-shaping configuration. NET0 is the
// unimpaired baseline; the parameter table lives in pkg/netem.
type NetworkProfile string

const (
	NetBaseline  NetworkProfile = "NET0"
	NetEdgeGood  NetworkProfile = "NET1"
	NetEdgeTypic NetworkProfile = "NET2"
	NetEdgePoor  NetworkProfile = "NET3"
	NetCellular  NetworkProfile = "NET4"
	NetSatellite NetworkProfile = "NET5"
)

// NetworkProfiles returns all profiles in matrix enumeration order.
func NetworkProfiles() []NetworkProfile {
	return []NetworkProfile{NetBaseline, NetEdgeGood, NetEdgeTypic, NetEdgePoor, NetCellular, NetSatellite}
}

// IsBaseline reports whether the profile requires no impairment.
func (p NetworkProfile) IsBaseline() bool { return p == NetBaseline }

// ParseNetworkProfile validates a flag value against the fixed set.
func ParseNetworkProfile(s string) (NetworkProfile, error) {
	for _, p := range NetworkProfiles() {
		if string(p) == strings.ToUpper(s) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown network profile %q", s)
}

// Distribution is the client data partitioning mode.
type Distribution string

const (
	DistributionIID    Distribution = "iid"
	DistributionNonIID Distribution = "noniid"
)

// ParseDistribution validates a flag value.
func ParseDistribution(s string) (Distribution, error) {
	switch strings.ToLower(s) {
	case string(DistributionIID):
		return DistributionIID, nil
	case string(DistributionNonIID):
		return DistributionNonIID, nil
	}
	return "", fmt.Errorf("unknown data distribution %q", s)
}

// RunConfig is the immutable description of one experiment instance.
// The tuple (Security, Network, Distribution+Alpha, Seed, Replica) is the
// sole identity of a run within a matrix.
type RunConfig struct {
	Security     SecurityLevel  `yaml:"security" json:"security"`
	Network      NetworkProfile `yaml:"network" json:"network"`
	Clients      int            `yaml:"clients" json:"clients"`
	Rounds       int            `yaml:"rounds" json:"rounds"`
	Distribution Distribution   `yaml:"distribution" json:"distribution"`
	// Alpha is the Dirichlet concentration parameter; meaningful only for
	// the non-IID distribution, where it is part of the run identity.
	Alpha   float64 `yaml:"alpha,omitempty" json:"alpha,omitempty"`
	Seed    int     `yaml:"seed" json:"seed"`
	Replica int     `yaml:"replica" json:"replica"`
}

// Validate checks enum membership and positive counts.
func (c RunConfig) Validate() error {
	if _, err := ParseSecurityLevel(string(c.Security)); err != nil {
		return err
	}
	if _, err := ParseNetworkProfile(string(c.Network)); err != nil {
		return err
	}
	if _, err := ParseDistribution(string(c.Distribution)); err != nil {
		return err
	}
	if c.Clients <= 0 {
		return fmt.Errorf("client count must be positive, got %d", c.Clients)
	}
	if c.Rounds <= 0 {
		return fmt.Errorf("round count must be positive, got %d", c.Rounds)
	}
	if c.Distribution == DistributionNonIID && c.Alpha <= 0 {
		return fmt.Errorf("non-IID distribution requires a positive alpha, got %v", c.Alpha)
	}
	if c.Seed < 0 {
		return fmt.Errorf("seed must be non-negative, got %d", c.Seed)
	}
	if c.Replica < 0 {
		return fmt.Errorf("replica index must be non-negative, got %d", c.Replica)
	}
	return nil
}

// LogicalID is the retry-stable identity used for checkpointing. It never
// contains a timestamp, so repeated attempts of the same configuration map
// to the same checkpoint entry.
func (c RunConfig) LogicalID() string {
	dist := string(c.Distribution)
	if c.Distribution == DistributionNonIID {
		dist += "-a" + strconv.FormatFloat(c.Alpha, 'g', -1, 64)
	}
	return fmt.Sprintf("%s_%s_%s_seed%d_rep%d",
		strings.ToLower(string(c.Security)),
		strings.ToLower(string(c.Network)),
		dist, c.Seed, c.Replica)
}

// AttemptID appends a UTC timestamp to the logical identity for on-disk
// uniqueness of per-attempt artifact directories.
func (c RunConfig) AttemptID(now time.Time) string {
	return c.LogicalID() + "_" + now.UTC().Format("20060102T150405Z")
}

// Outcome is the terminal state of a run attempt.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timedout"
)

// FailureReason classifies a run failure per the error taxonomy. Reasons
// are structured values, not free text, so the scheduler's retry policy
// and later triage can branch on them.
type FailureReason string

const (
	ReasonNone               FailureReason = ""
	ReasonDeploymentNotReady FailureReason = "DeploymentNotReady"
	ReasonExperimentTimedOut FailureReason = "ExperimentTimedOut"
	ReasonWorkloadFailed     FailureReason = "WorkloadFailed"
	ReasonConfigInvalid      FailureReason = "ConfigInvalid"
	ReasonClusterUnavailable FailureReason = "ClusterUnavailable"
	ReasonImpairmentFailed   FailureReason = "ImpairmentFailed"
	ReasonArtifactCopyFailed FailureReason = "ArtifactCopyFailed"
)

// Retryable reports whether the scheduler may re-attempt a run that failed
// for this reason. Configuration errors are never retried; cluster
// unavailability is handled at the connectivity level, not per run.
func (r FailureReason) Retryable() bool {
	switch r {
	case ReasonConfigInvalid, ReasonClusterUnavailable:
		return false
	}
	return true
}

// RunOutcome is the result of one Run Lifecycle Controller invocation.
type RunOutcome struct {
	LogicalID   string        `yaml:"logical_id" json:"logical_id"`
	Outcome     Outcome       `yaml:"outcome" json:"outcome"`
	Reason      FailureReason `yaml:"reason,omitempty" json:"reason,omitempty"`
	Attempt     int           `yaml:"attempt" json:"attempt"`
	Duration    time.Duration `yaml:"duration" json:"duration"`
	ArtifactDir string        `yaml:"artifact_dir,omitempty" json:"artifact_dir,omitempty"`
	StartedAt   time.Time     `yaml:"started_at" json:"started_at"`
	FinishedAt  time.Time     `yaml:"finished_at" json:"finished_at"`
}

// CheckpointRecord is the persisted per-identity state. It is created on
// the first attempt, updated in place on every later one, and only ever
// removed by an explicit operator reset.
type CheckpointRecord struct {
	LogicalID   string        `yaml:"logical_id"`
	Outcome     Outcome       `yaml:"outcome"`
	Reason      FailureReason `yaml:"reason,omitempty"`
	Attempts    int           `yaml:"attempts"`
	Permanent   bool          `yaml:"permanent,omitempty"`
	ArtifactDir string        `yaml:"artifact_dir,omitempty"`
	FirstAt     time.Time     `yaml:"first_at"`
	UpdatedAt   time.Time     `yaml:"updated_at"`
}
