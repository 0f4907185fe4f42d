package store

import (
	"context"
	"encoding/json"
	"strings"

	"loom/internal/services"
)

// UpsertRawPost inserts or refreshes a raw post row. Later fetches of the
// same key overwrite url, payload, and fetch time; a previously recorded
// actor source is preserved when the new upsert does not supply one. Rows are
// never deleted.
func (s *Store) UpsertRawPost(ctx context.Context, postKey, url, actorSource string, rawItem map[string]any) error {
	postKey = strings.TrimSpace(postKey)
	url = strings.TrimSpace(url)
	if postKey == "" || url == "" {
		return services.Wrap(services.ErrValidation, "store", "upsert raw post", "post key and url required", nil)
	}

	rawJSON, err := json.Marshal(rawItem)
	if err != nil {
		return services.Wrap(services.ErrStorage, "store", "upsert raw post", "marshal payload for "+postKey, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO raw_posts (post_key, url, actor_source, raw_json, fetched_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(post_key) DO UPDATE SET
           url = excluded.url,
           actor_source = COALESCE(excluded.actor_source, raw_posts.actor_source),
           raw_json = excluded.raw_json,
           fetched_at = excluded.fetched_at`,
		postKey, url, nullableString(actorSource), string(rawJSON), nowUTC(),
	)
	if err != nil {
		return services.Wrap(services.ErrStorage, "store", "upsert raw post", postKey, err)
	}
	return nil
}

// SeenPostKeys returns every post key ever stored. This is the authoritative
// "have we seen this item" set on resume.
func (s *Store) SeenPostKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT post_key FROM raw_posts")
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "store", "seen post keys", "", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, services.Wrap(services.ErrStorage, "store", "seen post keys", "scan", err)
		}
		out[key] = struct{}{}
	}
	return out, rows.Err()
}

// RawPostCount reports the total number of stored raw posts.
func (s *Store) RawPostCount(ctx context.Context) (int, error) {
	return s.countQuery(ctx, "SELECT COUNT(1) FROM raw_posts", "raw post count")
}

// GetRawPost returns the stored payload for a key, or nil when absent.
func (s *Store) GetRawPost(ctx context.Context, postKey string) (map[string]any, error) {
	var rawJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT raw_json FROM raw_posts WHERE post_key = ?", strings.TrimSpace(postKey),
	).Scan(&rawJSON)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrStorage, "store", "get raw post", postKey, err)
	}
	var item map[string]any
	if err := json.Unmarshal([]byte(rawJSON), &item); err != nil {
		return nil, services.Wrap(services.ErrStorage, "store", "get raw post", "parse payload for "+postKey, err)
	}
	return item, nil
}

func (s *Store) countQuery(ctx context.Context, query, op string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, services.Wrap(services.ErrStorage, "store", op, "", err)
	}
	return count, nil
}
