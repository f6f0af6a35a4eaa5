package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flbench/flbench/pkg/lifecycle"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect and edit matrix progress",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print recorded run outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCheckpoint(cmd)
		if err != nil {
			return err
		}

		records := store.Records()
		if len(records) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}
		for _, rec := range records {
			status := string(rec.Outcome)
			if !rec.Permanent {
				status += " (retry pending)"
			}
			fmt.Printf("%-45s %-22s attempts=%d", rec.LogicalID, status, rec.Attempts)
			if rec.Reason != "" {
				fmt.Printf(" reason=%s", rec.Reason)
			}
			if !rec.UpdatedAt.IsZero() {
				fmt.Printf(" updated=%s", rec.UpdatedAt.Format(time.RFC3339))
			}
			fmt.Println()
		}

		sum := store.Summarize()
		fmt.Printf("\n%d succeeded, %d failed, %d timed out\n",
			sum.Succeeded, sum.Failed, sum.TimedOut)
		return nil
	},
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset <logical-id>",
	Short: "Forget a run's outcome so the next sweep re-executes it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCheckpoint(cmd)
		if err != nil {
			return err
		}
		if err := store.Reset(args[0]); err != nil {
			return err
		}
		fmt.Printf("Reset %s\n", args[0])
		return nil
	},
}

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Remove leftovers of a crashed run",
	Long: `Remove the namespace and impairment rule a crashed run may have left
behind. The namespace is derived from the logical identity the same way
the run lifecycle derives it; the impairment reset is unconditional.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logicalID, _ := cmd.Flags().GetString("logical-id")
		if logicalID == "" {
			return fmt.Errorf("--logical-id is required")
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		driver, err := buildDriver(cfg)
		if err != nil {
			return err
		}
		impairer, err := buildImpairer(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		namespace := lifecycle.NamespaceForID(logicalID)
		if err := impairer.Reset(ctx, cfg.Cluster.Node); err != nil {
			fmt.Printf("impairment reset failed: %v\n", err)
		}
		if err := driver.DeleteNamespace(ctx, namespace); err != nil {
			return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
		}
		fmt.Printf("Removed namespace %s\n", namespace)
		return nil
	},
}

func init() {
	checkpointCmd.PersistentFlags().String("checkpoint", "results/checkpoint.yaml", "path to the checkpoint file")
	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointResetCmd)

	teardownCmd.Flags().String("logical-id", "", "logical identity of the crashed run (see checkpoint show)")
}
