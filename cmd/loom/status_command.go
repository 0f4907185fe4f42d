package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"loom/internal/store"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show recorded runs and corpus counters",
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

			cmdCtx := cmd.Context()
			runs, err := st.Runs(cmdCtx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				actorRuns, err := st.ActorRunCount(cmdCtx, run.RunID)
				if err != nil {
					return err
				}
				meta, err := st.FinalSampleMeta(cmdCtx, run.RunID)
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					run.RunID,
					run.StartedAt,
					runStateLabel(run, colorize),
					shortHash(run.ConfigHash),
					fmt.Sprintf("%d", actorRuns),
					yesNo(meta != nil),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Started", "State", "Config", "Actor Runs", "Sampled"},
				rows,
				4,
			))

			raw, err := st.RawPostCount(cmdCtx)
			if err != nil {
				return err
			}
			decisions, err := st.DecisionCount(cmdCtx)
			if err != nil {
				return err
			}
			eligible, err := st.EligibleCount(cmdCtx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Counter", "Total"},
				[][]string{
					{"raw posts", fmt.Sprintf("%d", raw)},
					{"decisions", fmt.Sprintf("%d", decisions)},
					{"eligible pool", fmt.Sprintf("%d / %d", eligible, cfg.Targets.PoolN)},
				},
				1,
			))
			return nil
		},
	}
}

func runStateLabel(run *store.RunRecord, colorize bool) string {
	if run.Unfinished() {
		if colorize {
			return ansiYellow + "running" + ansiReset
		}
		return "running"
	}
	if colorize {
		return ansiGreen + "finished" + ansiReset
	}
	return "finished"
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
