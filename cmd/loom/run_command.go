package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/loop"
	"loom/internal/services"
	"loom/internal/services/discovery"
	"loom/internal/services/labeling"
	"loom/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the discovery and labeling loop until a terminal condition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(cmd, ctx)
		},
	}
}

func runLoop(cmd *cobra.Command, cmdCtx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}
	secrets, err := cfg.ResolveSecrets()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "cli", "resolve secrets", "", err)
	}
	if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
		return services.Wrap(services.ErrStorage, "cli", "ensure output directory", cfg.Paths.OutputDir, err)
	}

	// Console logs go to stderr so stdout stays machine parsable.
	logger, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		LogDir:  cfg.Paths.OutputDir,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "cli", "init logger", "", err)
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

	client := discovery.NewClient(cfg.Discovery, secrets.DiscoveryToken)
	classifier := labeling.NewClient(cfg.Labeling, secrets.LabelingAPIKey)

	controller := loop.New(cfg, st, client, client, classifier, loop.WithLogger(logger))
	result, err := controller.Run(signalCtx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run_id=%s\n", result.RunID)
	fmt.Fprintf(out, "status=%s\n", result.Status)
	fmt.Fprintf(out, "iterations=%d\n", result.Iterations)
	fmt.Fprintf(out, "raw_posts=%d\n", result.RawPosts)
	fmt.Fprintf(out, "decisions=%d\n", result.Decisions)
	fmt.Fprintf(out, "eligible=%d\n", result.Eligible)

	if result.Status != loop.StatusCompletedPool {
		return &exitCodeError{
			code: 4,
			err:  fmt.Errorf("run %s stopped before filling the pool: status=%s eligible=%d", result.RunID, result.Status, result.Eligible),
		}
	}

	if err := finalizeRun(signalCtx, cfg, st, result.RunID, out); err != nil {
		return err
	}
	return nil
}

// finalizeRun draws (or re-reads) the persisted final sample for a completed
// run and exports the corpus next to the state database.
func finalizeRun(ctx context.Context, cfg *config.Config, st *store.Store, runID string, out io.Writer) error {
	result, pool, err := ensureSample(ctx, cfg, st, runID, true)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "pool_n=%d\n", len(pool))
	fmt.Fprintf(out, "final_n=%d\n", len(result.Keys))
	if result.Meta != nil {
		fmt.Fprintf(out, "pool_keys_sha256=%s\n", result.Meta.PoolKeysSHA256)
	}

	summary, err := exportCorpus(ctx, cfg, st, runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "export=%s\n", corpusPath(cfg))
	fmt.Fprintf(out, "records=%d\n", summary.Records)
	return nil
}

func acquireLock(cfg *config.Config) (*flock.Flock, error) {
	if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrStorage, "cli", "ensure output directory", cfg.Paths.OutputDir, err)
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "cli", "acquire lock", cfg.LockPath(), err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrTransient, "cli", "acquire lock",
			"another loom instance holds "+cfg.LockPath(), nil)
	}
	return lock, nil
}
