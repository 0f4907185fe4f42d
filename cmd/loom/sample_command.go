package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/store"
)

func newSampleCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Draw the deterministic final sample for the most recent run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			lock, err := acquireLock(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			st, err := store.Open(cfg.StatePath())
			if err != nil {
				return err
			}
			defer st.Close()

			runID, err := latestRunID(cmd.Context(), st)
			if err != nil {
				return err
			}
			result, pool, err := ensureSample(cmd.Context(), cfg, st, runID, !dryRun)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run_id=%s\n", runID)
			fmt.Fprintf(out, "pool_n=%d\n", len(pool))
			fmt.Fprintf(out, "final_n=%d\n", len(result.Keys))
			fmt.Fprintf(out, "persisted=%s\n", yesNo(result.Meta != nil))
			if result.Meta != nil {
				fmt.Fprintf(out, "sampling_seed=%d\n", result.Meta.SamplingSeed)
				fmt.Fprintf(out, "pool_keys_sha256=%s\n", result.Meta.PoolKeysSHA256)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Select without persisting the sample")
	return cmd
}
