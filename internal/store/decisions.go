package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"loom/internal/decision"
	"loom/internal/services"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// RecordDecision appends a labeling decision for a post. The post must exist
// in raw_posts; a foreign key violation is a storage error, never a silent
// insert.
func (s *Store) RecordDecision(ctx context.Context, postKey, url, model string, d decision.Decision, tokensTotal *int) error {
	postKey = strings.TrimSpace(postKey)
	url = strings.TrimSpace(url)
	model = strings.TrimSpace(model)
	if postKey == "" || url == "" || model == "" {
		return services.Wrap(services.ErrValidation, "store", "record decision", "post key, url, and model required", nil)
	}

	decisionJSON, err := d.MarshalCompact()
	if err != nil {
		return services.Wrap(services.ErrStorage, "store", "record decision", "marshal decision for "+postKey, err)
	}

	eligible := 0
	if d.Eligible {
		eligible = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO label_decisions (post_key, url, model, eligible, overall_confidence, decision_json, tokens_total, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		postKey, url, model, eligible, d.OverallConfidence, string(decisionJSON), nullableInt(tokensTotal), nowUTC(),
	)
	if err != nil {
		return services.Wrap(services.ErrStorage, "store", "record decision",
			"insert for "+postKey+" (is the raw post stored first?)", err)
	}
	return nil
}

// LatestDecision returns the most recently inserted decision for a post, or
// nil when none exists. A stored payload that fails strict parsing is a
// storage error.
func (s *Store) LatestDecision(ctx context.Context, postKey string) (*decision.Decision, error) {
	var decisionJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT decision_json FROM label_decisions WHERE post_key = ? ORDER BY id DESC LIMIT 1",
		strings.TrimSpace(postKey),
	).Scan(&decisionJSON)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrStorage, "store", "latest decision", postKey, err)
	}

	parsed, err := decision.Parse([]byte(decisionJSON))
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "store", "latest decision", "stored payload for "+postKey, err)
	}
	return &parsed, nil
}

// DecisionCount reports the total number of appended decisions.
func (s *Store) DecisionCount(ctx context.Context) (int, error) {
	return s.countQuery(ctx, "SELECT COUNT(1) FROM label_decisions", "decision count")
}

// EligibleCount reports the current pool size: posts whose latest decision is
// eligible.
func (s *Store) EligibleCount(ctx context.Context) (int, error) {
	return s.countQuery(ctx, "SELECT COUNT(1) FROM eligible_posts", "eligible count")
}

// EligiblePosts returns the pool joined to raw posts, most recent decisions
// first. A non-positive limit returns everything.
func (s *Store) EligiblePosts(ctx context.Context, limit int) ([]*EligiblePost, error) {
	query := `SELECT post_key, url, actor_source, raw_json, fetched_at, model,
                     overall_confidence, tokens_total, decided_at, decision_json
              FROM eligible_posts ORDER BY decision_id DESC`
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+" LIMIT ?", limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "store", "eligible posts", "", err)
	}
	defer rows.Close()

	var out []*EligiblePost
	for rows.Next() {
		var (
			record      EligiblePost
			actorSource sql.NullString
			tokensTotal sql.NullInt64
		)
		if err := rows.Scan(
			&record.PostKey, &record.URL, &actorSource, &record.RawJSON, &record.FetchedAt,
			&record.Model, &record.OverallConfidence, &tokensTotal, &record.DecidedAt, &record.DecisionJSON,
		); err != nil {
			return nil, services.Wrap(services.ErrStorage, "store", "eligible posts", "scan", err)
		}
		if actorSource.Valid {
			record.ActorSource = actorSource.String
		}
		if tokensTotal.Valid {
			tokens := int(tokensTotal.Int64)
			record.TokensTotal = &tokens
		}
		out = append(out, &record)
	}
	return out, rows.Err()
}

// EligiblePoolKeys returns pool keys in acceptance order: decision insertion
// order, post key as the deterministic tiebreak. This ordering is significant
// for sampling reproducibility.
func (s *Store) EligiblePoolKeys(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT post_key FROM eligible_posts ORDER BY decision_id ASC, post_key ASC LIMIT ?", limit,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "store", "eligible pool keys", "", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, services.Wrap(services.ErrStorage, "store", "eligible pool keys", "scan", err)
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

// EligibleRawPayloads returns the raw payloads of the current pool, used to
// rebuild hashtag and owner counters on resume.
func (s *Store) EligibleRawPayloads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT raw_json FROM eligible_posts")
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "store", "eligible raw payloads", "", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, services.Wrap(services.ErrStorage, "store", "eligible raw payloads", "scan", err)
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}
