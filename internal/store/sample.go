package store

import (
	"context"
	"database/sql"
	"strings"

	"loom/internal/services"
)

// FinalSampleMeta returns the persisted sample metadata for a run, or nil
// when no sample has been stored.
func (s *Store) FinalSampleMeta(ctx context.Context, runID string) (*SampleMeta, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "final sample meta", "run id required", nil)
	}

	var meta SampleMeta
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, sampling_seed, pool_n, final_n, pool_keys_sha256, created_at
         FROM final_sample_runs WHERE run_id = ?`, runID,
	).Scan(&meta.RunID, &meta.SamplingSeed, &meta.PoolN, &meta.FinalN, &meta.PoolKeysSHA256, &meta.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrStorage, "store", "final sample meta", runID, err)
	}
	return &meta, nil
}

// FinalSampleKeys returns the persisted membership for a run.
func (s *Store) FinalSampleKeys(ctx context.Context, runID string) (map[string]struct{}, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "final sample keys", "run id required", nil)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT post_key FROM final_sample_members WHERE run_id = ?", runID,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "store", "final sample keys", runID, err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, services.Wrap(services.ErrStorage, "store", "final sample keys", "scan", err)
		}
		out[key] = struct{}{}
	}
	return out, rows.Err()
}

// WriteFinalSample persists sample metadata and membership atomically. Both
// inserts use OR IGNORE so a concurrent writer cannot clobber an existing
// sample; the caller verifies the stored metadata afterwards.
func (s *Store) WriteFinalSample(ctx context.Context, meta SampleMeta, keys []string) error {
	if strings.TrimSpace(meta.RunID) == "" {
		return services.Wrap(services.ErrValidation, "store", "write final sample", "run id required", nil)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return services.Wrap(services.ErrStorage, "store", "write final sample", "begin tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO final_sample_runs (run_id, sampling_seed, pool_n, final_n, pool_keys_sha256, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		meta.RunID, meta.SamplingSeed, meta.PoolN, meta.FinalN, meta.PoolKeysSHA256, nowUTC(),
	); err != nil {
		return services.Wrap(services.ErrStorage, "store", "write final sample", "insert meta for "+meta.RunID, err)
	}

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO final_sample_members (run_id, post_key) VALUES (?, ?)",
			meta.RunID, key,
		); err != nil {
			return services.Wrap(services.ErrStorage, "store", "write final sample", "insert member "+key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return services.Wrap(services.ErrStorage, "store", "write final sample", "commit", err)
	}
	return nil
}
