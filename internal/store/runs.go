package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"loom/internal/services"
)

// CreateRunParams describes a new run row. RunID and StartedAt are generated
// when empty.
type CreateRunParams struct {
	RunID        string
	ConfigHash   string
	SamplingSeed *int64
	Versions     map[string]string
}

// CreateRun inserts a run row and returns the stored record. Re-creating an
// existing run id is a no-op that returns the original row, which lets a
// resumed process reuse an unfinished run.
func (s *Store) CreateRun(ctx context.Context, params CreateRunParams) (*RunRecord, error) {
	runID := strings.TrimSpace(params.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	configHash := strings.TrimSpace(params.ConfigHash)
	if configHash == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "create run", "config hash required", nil)
	}

	versions := params.Versions
	if versions == nil {
		versions = map[string]string{}
	}
	versionsJSON, err := json.Marshal(versions)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "store", "create run", "marshal versions", err)
	}

	var seed any
	if params.SamplingSeed != nil {
		seed = *params.SamplingSeed
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (run_id, started_at, ended_at, config_hash, sampling_seed, versions_json)
         VALUES (?, ?, NULL, ?, ?, ?)`,
		runID, nowUTC(), configHash, seed, string(versionsJSON),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "store", "create run", runID, err)
	}

	record, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, services.Wrap(services.ErrStorage, "store", "create run", "read back after insert", nil)
	}
	return record, nil
}

// FinishRun sets ended_at on a run. It only touches unfinished runs so the
// timestamp is written exactly once.
func (s *Store) FinishRun(ctx context.Context, runID string) error {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return services.Wrap(services.ErrValidation, "store", "finish run", "run id required", nil)
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE runs SET ended_at = ? WHERE run_id = ? AND ended_at IS NULL",
		nowUTC(), runID,
	)
	if err != nil {
		return services.Wrap(services.ErrStorage, "store", "finish run", runID, err)
	}
	return nil
}

// GetRun fetches a run by id; nil when absent.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT run_id, started_at, ended_at, config_hash, sampling_seed, versions_json FROM runs WHERE run_id = ?",
		strings.TrimSpace(runID),
	)
	return scanRun(row)
}

// LatestUnfinishedRun returns the most recently started run without an
// ended_at, or nil when every run has finished.
func (s *Store) LatestUnfinishedRun(ctx context.Context) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, started_at, ended_at, config_hash, sampling_seed, versions_json
         FROM runs WHERE ended_at IS NULL ORDER BY started_at DESC LIMIT 1`,
	)
	return scanRun(row)
}

// LatestRun returns the most recently started run, finished or not.
func (s *Store) LatestRun(ctx context.Context) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, started_at, ended_at, config_hash, sampling_seed, versions_json
         FROM runs ORDER BY started_at DESC LIMIT 1`,
	)
	return scanRun(row)
}

// Runs lists all runs ordered by start time descending.
func (s *Store) Runs(ctx context.Context) ([]*RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, ended_at, config_hash, sampling_seed, versions_json
         FROM runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "store", "list runs", "", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		record, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// RecordActorRun appends provenance for one external discovery invocation.
// Duplicate (run_id, actor_run_id) pairs are ignored.
func (s *Store) RecordActorRun(ctx context.Context, runID, actorID, actorRunID, datasetID string) error {
	for name, value := range map[string]string{
		"run id": runID, "actor id": actorID, "actor run id": actorRunID, "dataset id": datasetID,
	} {
		if strings.TrimSpace(value) == "" {
			return services.Wrap(services.ErrValidation, "store", "record actor run", name+" required", nil)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO actor_runs (run_id, actor_id, actor_run_id, dataset_id, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		runID, actorID, actorRunID, datasetID, nowUTC(),
	)
	if err != nil {
		return services.Wrap(services.ErrStorage, "store", "record actor run", actorRunID, err)
	}
	return nil
}

// ActorRunCount reports how many discovery invocations a run recorded.
func (s *Store) ActorRunCount(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM actor_runs WHERE run_id = ?", strings.TrimSpace(runID),
	).Scan(&count)
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, "store", "count actor runs", runID, err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	record, err := scanRunRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

func scanRunRow(row rowScanner) (*RunRecord, error) {
	var (
		record       RunRecord
		endedAt      sql.NullString
		samplingSeed sql.NullInt64
		versionsJSON string
	)
	if err := row.Scan(&record.RunID, &record.StartedAt, &endedAt, &record.ConfigHash, &samplingSeed, &versionsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrStorage, "store", "scan run", "", err)
	}
	if endedAt.Valid {
		record.EndedAt = endedAt.String
	}
	if samplingSeed.Valid {
		seed := samplingSeed.Int64
		record.SamplingSeed = &seed
	}
	record.Versions = map[string]string{}
	if strings.TrimSpace(versionsJSON) != "" {
		if err := json.Unmarshal([]byte(versionsJSON), &record.Versions); err != nil {
			return nil, services.Wrap(services.ErrStorage, "store", "scan run", "parse versions for "+record.RunID, err)
		}
	}
	return &record, nil
}
