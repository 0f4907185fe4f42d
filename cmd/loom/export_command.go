package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/store"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the sampled corpus as JSONL with a summary report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.StatePath())
			if err != nil {
				return err
			}
			defer st.Close()

			runID, err := latestRunID(cmd.Context(), st)
			if err != nil {
				return err
			}
			summary, err := exportCorpus(cmd.Context(), cfg, st, runID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %d records to %s\n\n", summary.Records, corpusPath(cfg))
			fmt.Fprintln(out, renderCountTable("Genre", summary.Genres))
			fmt.Fprintln(out, renderCountTable("Model", summary.Models))
			fmt.Fprintf(out, "Total labeling tokens: %d\n", summary.TokensTotal)
			return nil
		},
	}
}
