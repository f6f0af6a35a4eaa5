package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flbench/flbench/pkg/checkpoint"
	"github.com/flbench/flbench/pkg/cluster"
	"github.com/flbench/flbench/pkg/config"
	"github.com/flbench/flbench/pkg/detector"
	"github.com/flbench/flbench/pkg/journal"
	"github.com/flbench/flbench/pkg/lifecycle"
	"github.com/flbench/flbench/pkg/log"
	"github.com/flbench/flbench/pkg/netem"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// coordinatorSelector matches the federated-learning server pod in the
// pre-authored deployment variants.
const coordinatorSelector = "app=fl-server"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flbench",
	Short: "flbench - Federated learning benchmark orchestrator",
	Long: `flbench drives federated learning benchmark experiments on a
Kubernetes cluster: it deploys a pre-authored workload variant, shapes
the node's network with tc/netem, waits for the coordinator to report
completion, collects artifacts and tears everything down.

Runs can be executed one at a time or as a full checkpointed matrix
sweep across security levels, network profiles, distributions, seeds
and replicas.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := log.InfoLevel
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = log.DebugLevel
		}
		jsonOut, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{Level: level, JSONOutput: jsonOut})
		return nil
	},
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"flbench version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON instead of console output")

	// Add subcommands
	rootCmd.AddCommand(runOneCmd)
	rootCmd.AddCommand(runMatrixCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(teardownCmd)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM so an
// in-flight run can drain through teardown instead of dying mid-state.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("signal received, aborting after current step")
		cancel()
	}()
	return ctx, cancel
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if artifacts, _ := cmd.Flags().GetString("artifacts"); artifacts != "" {
		cfg.Artifacts = artifacts
	}
	return cfg, nil
}

func buildDriver(cfg config.Config) (cluster.Driver, error) {
	return cluster.NewKubeClient(cluster.Options{
		APIServer:    cfg.Cluster.APIServer,
		Token:        cfg.Cluster.Token,
		TokenFile:    cfg.Cluster.TokenFile,
		CAFile:       cfg.Cluster.CAFile,
		Insecure:     cfg.Cluster.Insecure,
		DeleteWait:   cfg.Timeouts.NamespaceDelete,
		PollInterval: cfg.Timeouts.PollInterval,
	})
}

func buildImpairer(cfg config.Config) (*netem.Controller, error) {
	var runner netem.Runner
	switch cfg.Netem.Mode {
	case "", "local":
		runner = netem.LocalRunner{}
	case "ssh":
		runner = &netem.SSHRunner{
			User:    cfg.Netem.SSH.User,
			KeyFile: cfg.Netem.SSH.KeyFile,
			Port:    cfg.Netem.SSH.Port,
		}
	default:
		return nil, fmt.Errorf("unknown netem mode %q", cfg.Netem.Mode)
	}
	return netem.NewController(runner, cfg.Netem.Interface), nil
}

// buildController assembles the full run pipeline. The journal is
// optional plumbing; a journal that cannot open disables itself rather
// than blocking experiments.
func buildController(cfg config.Config, driver cluster.Driver, keepNamespace bool) (*lifecycle.Controller, func(), error) {
	impairer, err := buildImpairer(cfg)
	if err != nil {
		return nil, nil, err
	}
	waiter := detector.New(driver, coordinatorSelector, cfg.Timeouts.PollInterval)

	var recorder lifecycle.Recorder
	closeJournal := func() {}
	if cfg.Journal != "" {
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			log.Warn(fmt.Sprintf("journal disabled: %v", err))
		} else {
			recorder = j
			closeJournal = func() { j.Close() }
		}
	}

	controller := lifecycle.New(driver, impairer, waiter, recorder, cfg)
	controller.KeepNamespace = keepNamespace
	controller.Version = Version
	return controller, closeJournal, nil
}

func openCheckpoint(cmd *cobra.Command) (*checkpoint.Store, error) {
	path, _ := cmd.Flags().GetString("checkpoint")
	return checkpoint.Open(path)
}
