package main

import (
	"context"
	"path/filepath"

	"loom/internal/config"
	"loom/internal/export"
	"loom/internal/sample"
	"loom/internal/services"
	"loom/internal/store"
)

func corpusPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.OutputDir, "corpus.jsonl")
}

// latestRunID resolves the run most commands operate on: the most recent run,
// finished or not.
func latestRunID(ctx context.Context, st *store.Store) (string, error) {
	run, err := st.LatestRun(ctx)
	if err != nil {
		return "", err
	}
	if run == nil {
		return "", services.Wrap(services.ErrValidation, "cli", "resolve run", "no runs recorded yet", nil)
	}
	return run.RunID, nil
}

// ensureSample draws the final sample for a run from the current eligible
// pool, honoring an already persisted sample. It returns the sample result
// together with the pool it was drawn from.
func ensureSample(ctx context.Context, cfg *config.Config, st *store.Store, runID string, persist bool) (*sample.Result, []string, error) {
	pool, err := st.EligiblePoolKeys(ctx, cfg.Targets.PoolN)
	if err != nil {
		return nil, nil, err
	}
	result, err := sample.Ensure(ctx, st, sample.Params{
		RunID:        runID,
		PoolKeys:     pool,
		SamplingSeed: cfg.Targets.SamplingSeed,
		PoolN:        len(pool),
		FinalN:       cfg.Targets.FinalN,
		Persist:      persist,
	})
	if err != nil {
		return nil, nil, err
	}
	return result, pool, nil
}

func exportCorpus(ctx context.Context, cfg *config.Config, st *store.Store, runID string) (*export.Summary, error) {
	return export.WriteCorpus(ctx, st, runID, corpusPath(cfg))
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
