package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the deployment-specific settings shared by every command:
// how to reach the cluster, how to reach the impairment target node, and
// where manifests and artifacts live. Experiment parameters are flags, not
// config, since they are part of the run identity and must be explicit.
type Config struct {
	Cluster   ClusterConfig `yaml:"cluster"`
	Netem     NetemConfig   `yaml:"netem"`
	Manifests string        `yaml:"manifests"`
	Artifacts string        `yaml:"artifacts"`
	Journal   string        `yaml:"journal"`
	Timeouts  Timeouts      `yaml:"timeouts"`
	// Cooldown is the pause between matrix runs, letting the cluster settle
	// before the next namespace is created.
	Cooldown time.Duration `yaml:"cooldown"`
}

// ClusterConfig describes the Kubernetes API endpoint.
type ClusterConfig struct {
	APIServer string `yaml:"api_server"`
	TokenFile string `yaml:"token_file"`
	Token     string `yaml:"token,omitempty"`
	CAFile    string `yaml:"ca_file"`
	// Insecure skips TLS verification; only for throwaway dev clusters.
	Insecure bool   `yaml:"insecure,omitempty"`
	Node     string `yaml:"node"`
}

// NetemConfig describes how impairment commands reach the target node.
type NetemConfig struct {
	// Mode is "local" (run tc directly, single-node dev cluster) or "ssh".
	Mode      string `yaml:"mode"`
	Interface string `yaml:"interface"`
	SSH       struct {
		User    string `yaml:"user"`
		KeyFile string `yaml:"key_file"`
		Port    int    `yaml:"port"`
	} `yaml:"ssh"`
}

// Timeouts bound every suspension point in the run lifecycle.
type Timeouts struct {
	ReadyWait       time.Duration `yaml:"ready_wait"`
	RunDeadline     time.Duration `yaml:"run_deadline"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	NamespaceDelete time.Duration `yaml:"namespace_delete"`
}

// Default returns the configuration for a local single-node dev cluster,
// mirroring the reference deployment.
func Default() Config {
	cfg := Config{
		Cluster: ClusterConfig{
			APIServer: "https://127.0.0.1:6443",
			TokenFile: "/var/run/secrets/kubernetes.io/serviceaccount/token",
			CAFile:    "/var/run/secrets/kubernetes.io/serviceaccount/ca.crt",
			Node:      "flbench-node",
		},
		Manifests: "k8s",
		Artifacts: "results/raw",
		Journal:   "results/journal.db",
		Timeouts: Timeouts{
			ReadyWait:       5 * time.Minute,
			RunDeadline:     60 * time.Minute,
			PollInterval:    5 * time.Second,
			NamespaceDelete: 2 * time.Minute,
		},
		Cooldown: 0,
	}
	cfg.Netem.Mode = "local"
	cfg.Netem.Interface = "eth0"
	cfg.Netem.SSH.Port = 22
	return cfg
}

// Load reads the YAML config file (optional), then applies environment
// overrides. A .env file in the working directory is loaded first so that
// per-host settings stay out of the committed config.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr("FLBENCH_API_SERVER", &c.Cluster.APIServer)
	setStr("FLBENCH_TOKEN", &c.Cluster.Token)
	setStr("FLBENCH_TOKEN_FILE", &c.Cluster.TokenFile)
	setStr("FLBENCH_CA_FILE", &c.Cluster.CAFile)
	setStr("FLBENCH_NODE", &c.Cluster.Node)
	setStr("FLBENCH_NETEM_MODE", &c.Netem.Mode)
	setStr("FLBENCH_NETEM_IFACE", &c.Netem.Interface)
	setStr("FLBENCH_MANIFESTS", &c.Manifests)
	setStr("FLBENCH_ARTIFACTS", &c.Artifacts)

	if v := os.Getenv("FLBENCH_INSECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Cluster.Insecure = b
		}
	}
}

func (c *Config) validate() error {
	if c.Cluster.APIServer == "" {
		return fmt.Errorf("cluster.api_server is required")
	}
	switch c.Netem.Mode {
	case "local", "ssh":
	default:
		return fmt.Errorf("netem.mode must be local or ssh, got %q", c.Netem.Mode)
	}
	if c.Netem.Interface == "" {
		return fmt.Errorf("netem.interface is required")
	}
	if c.Timeouts.ReadyWait <= 0 || c.Timeouts.RunDeadline <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}
