// Package export writes the sampled corpus as line-delimited JSON alongside
// aggregate counts for review.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"loom/internal/decision"
	"loom/internal/services"
	"loom/internal/store"
)

// Record is one exported corpus line.
type Record struct {
	PostKey     string            `json:"post_key"`
	URL         string            `json:"url"`
	ActorSource string            `json:"actor_source,omitempty"`
	FetchedAt   string            `json:"fetched_at"`
	Model       string            `json:"model"`
	DecidedAt   string            `json:"decided_at"`
	TokensTotal *int              `json:"tokens_total,omitempty"`
	Decision    decision.Decision `json:"decision"`
	Raw         json.RawMessage   `json:"raw"`
}

// Summary aggregates what was exported.
type Summary struct {
	RunID       string
	Records     int
	Genres      map[string]int
	Models      map[string]int
	TokensTotal int
}

// WriteCorpus exports the persisted final sample of a run to path as JSONL,
// one record per sampled post in key order. A run without a persisted sample
// is a validation error: sampling comes first.
func WriteCorpus(ctx context.Context, st *store.Store, runID, path string) (*Summary, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, services.Wrap(services.ErrValidation, "export", "write corpus", "run id required", nil)
	}

	meta, err := st.FinalSampleMeta(ctx, runID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, services.Wrap(services.ErrValidation, "export", "write corpus",
			"run "+runID+" has no persisted final sample", nil)
	}
	members, err := st.FinalSampleKeys(ctx, runID)
	if err != nil {
		return nil, err
	}

	pool, err := st.EligiblePosts(ctx, 0)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*store.EligiblePost, len(pool))
	for _, p := range pool {
		byKey[p.PostKey] = p
	}

	keys := make([]string, 0, len(members))
	for key := range members {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, services.Wrap(services.ErrStorage, "export", "write corpus", "ensure directory", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "export", "write corpus", path, err)
	}
	defer file.Close()
	writer := bufio.NewWriter(file)

	summary := &Summary{
		RunID:  runID,
		Genres: map[string]int{},
		Models: map[string]int{},
	}
	encoder := json.NewEncoder(writer)
	for _, key := range keys {
		p, ok := byKey[key]
		if !ok {
			// A sampled post has left the eligible pool only if a later
			// decision demoted it; the sample is immutable, so this is
			// corruption rather than drift.
			return nil, services.Wrap(services.ErrStorage, "export", "write corpus",
				"sampled post "+key+" missing from eligible pool", nil)
		}
		d, err := decision.Parse([]byte(p.DecisionJSON))
		if err != nil {
			return nil, services.Wrap(services.ErrStorage, "export", "write corpus",
				"stored decision for "+key, err)
		}

		record := Record{
			PostKey:     p.PostKey,
			URL:         p.URL,
			ActorSource: p.ActorSource,
			FetchedAt:   p.FetchedAt,
			Model:       p.Model,
			DecidedAt:   p.DecidedAt,
			TokensTotal: p.TokensTotal,
			Decision:    d,
			Raw:         json.RawMessage(p.RawJSON),
		}
		if err := encoder.Encode(record); err != nil {
			return nil, services.Wrap(services.ErrStorage, "export", "write corpus", "encode "+key, err)
		}

		summary.Records++
		genre := d.Tags.Genre
		if genre == "" {
			genre = "other"
		}
		summary.Genres[genre]++
		summary.Models[p.Model]++
		if p.TokensTotal != nil {
			summary.TokensTotal += *p.TokensTotal
		}
	}

	if err := writer.Flush(); err != nil {
		return nil, services.Wrap(services.ErrStorage, "export", "write corpus", "flush", err)
	}
	return summary, nil
}
