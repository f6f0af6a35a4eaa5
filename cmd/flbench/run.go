package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flbench/flbench/pkg/log"
	"github.com/flbench/flbench/pkg/metrics"
	"github.com/flbench/flbench/pkg/scheduler"
	"github.com/flbench/flbench/pkg/types"
)

var runOneCmd = &cobra.Command{
	Use:   "run-one",
	Short: "Execute a single experiment run",
	Long: `Execute one experiment run through the full lifecycle: deploy the
workload variant for the given security level, apply the network profile,
wait for the coordinator's completion marker, collect artifacts and tear
down. Exits non-zero unless the run succeeds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		runCfg, err := runConfigFromFlags(cmd)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		driver, err := buildDriver(cfg)
		if err != nil {
			return err
		}
		keep, _ := cmd.Flags().GetBool("keep-namespace")
		controller, closeJournal, err := buildController(cfg, driver, keep)
		if err != nil {
			return err
		}
		defer closeJournal()

		ctx, cancel := signalContext()
		defer cancel()

		outcome := controller.Execute(ctx, runCfg, 1)
		fmt.Printf("Run:      %s\n", outcome.LogicalID)
		fmt.Printf("Outcome:  %s\n", outcome.Outcome)
		if outcome.Reason != "" {
			fmt.Printf("Reason:   %s\n", outcome.Reason)
		}
		fmt.Printf("Duration: %s\n", outcome.Duration.Round(time.Second))
		fmt.Printf("Artifacts: %s\n", outcome.ArtifactDir)

		if outcome.Outcome != types.OutcomeSucceeded {
			return fmt.Errorf("run %s: %s (%s)", outcome.LogicalID, outcome.Outcome, outcome.Reason)
		}
		return nil
	},
}

var runMatrixCmd = &cobra.Command{
	Use:   "run-matrix",
	Short: "Execute the full experiment matrix",
	Long: `Execute every cell of the experiment matrix serially, checkpointing
after each run. A re-invocation with the same checkpoint file resumes
where the previous sweep stopped, skipping runs that already reached a
final outcome. Exits non-zero unless every run succeeds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		matrix, err := matrixFromFlags(cmd)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		driver, err := buildDriver(cfg)
		if err != nil {
			return err
		}
		controller, closeJournal, err := buildController(cfg, driver, false)
		if err != nil {
			return err
		}
		defer closeJournal()

		store, err := openCheckpoint(cmd)
		if err != nil {
			return err
		}

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			metrics.Serve(addr)
			log.Info(fmt.Sprintf("metrics exposed on %s/metrics", addr))
		}

		sched := scheduler.New(controller, driver, store)
		if max, _ := cmd.Flags().GetInt("max-attempts"); max > 0 {
			sched.MaxAttempts = max
		}
		sched.Cooldown = cfg.Cooldown

		ctx, cancel := signalContext()
		defer cancel()

		summary, err := sched.Run(ctx, matrix)
		if err != nil {
			return err
		}

		fmt.Printf("Matrix:    %d cells (%d executed, %d skipped)\n",
			summary.Total, summary.Executed, summary.Skipped)
		fmt.Printf("Succeeded: %d\n", summary.Succeeded)
		fmt.Printf("Failed:    %d\n", summary.Failed)
		fmt.Printf("Timed out: %d\n", summary.TimedOut)
		for _, id := range summary.Permanent {
			fmt.Printf("  permanent failure: %s\n", id)
		}

		if len(summary.Permanent) > 0 {
			return fmt.Errorf("%d runs failed permanently", len(summary.Permanent))
		}
		return nil
	},
}

func init() {
	addWorkloadFlags := func(cmd *cobra.Command) {
		cmd.Flags().Int("clients", 4, "number of federated clients")
		cmd.Flags().Int("rounds", 10, "number of training rounds")
		cmd.Flags().Float64("alpha", 0.5, "Dirichlet concentration for non-IID cells")
		cmd.Flags().String("artifacts", "", "artifact root directory (overrides config)")
	}

	runOneCmd.Flags().String("security", "SEC0", "security level (SEC0-SEC3)")
	runOneCmd.Flags().String("network", "NET0", "network profile (NET0-NET5)")
	runOneCmd.Flags().String("distribution", "iid", "data distribution (iid or noniid)")
	runOneCmd.Flags().Int("seed", 1, "data partition seed")
	runOneCmd.Flags().Int("replica", 1, "replica index")
	runOneCmd.Flags().Bool("keep-namespace", false, "keep the namespace after the run for inspection")
	addWorkloadFlags(runOneCmd)

	runMatrixCmd.Flags().StringSlice("security", []string{"SEC0", "SEC1", "SEC2", "SEC3"}, "security levels to sweep")
	runMatrixCmd.Flags().StringSlice("network", []string{"NET0", "NET1", "NET2", "NET3", "NET4", "NET5"}, "network profiles to sweep")
	runMatrixCmd.Flags().StringSlice("distribution", []string{"iid", "noniid"}, "data distributions to sweep")
	runMatrixCmd.Flags().IntSlice("seeds", []int{1, 2, 3}, "data partition seeds to sweep")
	runMatrixCmd.Flags().Int("replicas", 1, "replicas per cell")
	runMatrixCmd.Flags().Int("max-attempts", scheduler.DefaultMaxAttempts, "attempts per run before giving up")
	runMatrixCmd.Flags().String("checkpoint", "results/checkpoint.yaml", "path to the checkpoint file")
	runMatrixCmd.Flags().String("metrics-addr", "", "expose Prometheus metrics on this address (e.g. :9090)")
	addWorkloadFlags(runMatrixCmd)
}

func runConfigFromFlags(cmd *cobra.Command) (types.RunConfig, error) {
	secStr, _ := cmd.Flags().GetString("security")
	netStr, _ := cmd.Flags().GetString("network")
	distStr, _ := cmd.Flags().GetString("distribution")

	sec, err := types.ParseSecurityLevel(secStr)
	if err != nil {
		return types.RunConfig{}, err
	}
	net, err := types.ParseNetworkProfile(netStr)
	if err != nil {
		return types.RunConfig{}, err
	}
	dist, err := types.ParseDistribution(distStr)
	if err != nil {
		return types.RunConfig{}, err
	}

	cfg := types.RunConfig{
		Security:     sec,
		Network:      net,
		Distribution: dist,
	}
	cfg.Clients, _ = cmd.Flags().GetInt("clients")
	cfg.Rounds, _ = cmd.Flags().GetInt("rounds")
	cfg.Seed, _ = cmd.Flags().GetInt("seed")
	cfg.Replica, _ = cmd.Flags().GetInt("replica")
	if dist == types.DistributionNonIID {
		cfg.Alpha, _ = cmd.Flags().GetFloat64("alpha")
	}
	return cfg, cfg.Validate()
}

func matrixFromFlags(cmd *cobra.Command) (scheduler.Matrix, error) {
	var matrix scheduler.Matrix

	secStrs, _ := cmd.Flags().GetStringSlice("security")
	for _, s := range secStrs {
		sec, err := types.ParseSecurityLevel(s)
		if err != nil {
			return matrix, err
		}
		matrix.Security = append(matrix.Security, sec)
	}
	netStrs, _ := cmd.Flags().GetStringSlice("network")
	for _, s := range netStrs {
		net, err := types.ParseNetworkProfile(s)
		if err != nil {
			return matrix, err
		}
		matrix.Network = append(matrix.Network, net)
	}
	distStrs, _ := cmd.Flags().GetStringSlice("distribution")
	for _, s := range distStrs {
		dist, err := types.ParseDistribution(s)
		if err != nil {
			return matrix, err
		}
		matrix.Distributions = append(matrix.Distributions, dist)
	}

	matrix.Clients, _ = cmd.Flags().GetInt("clients")
	matrix.Rounds, _ = cmd.Flags().GetInt("rounds")
	matrix.Alpha, _ = cmd.Flags().GetFloat64("alpha")
	matrix.Seeds, _ = cmd.Flags().GetIntSlice("seeds")
	matrix.Replicas, _ = cmd.Flags().GetInt("replicas")
	return matrix, nil
}
