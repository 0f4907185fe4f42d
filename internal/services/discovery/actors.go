package discovery

import (
	"context"
	"strings"

	"loom/internal/services"
	"loom/internal/termqueue"
	"loom/internal/textutil"
)

const defaultSearchLimit = 20

// RunAndFetch runs the primary hashtag actor once for a batch of terms and
// returns the run reference plus its dataset items. A non-positive
// resultsLimit falls back to the configured per-query limit.
func (c *Client) RunAndFetch(ctx context.Context, terms []string, resultsLimit, datasetLimit int) (RunRef, []Item, error) {
	normalized := normalizeTerms(terms)
	if len(normalized) == 0 {
		return RunRef{}, nil, services.Wrap(services.ErrValidation, "discovery", "run and fetch",
			"at least one non-empty query term required", nil)
	}
	if resultsLimit <= 0 {
		resultsLimit = c.cfg.ResultsLimitPerQuery
	}

	input := map[string]any{
		"hashtags":      normalized,
		"resultsType":   c.cfg.ResultsType,
		"resultsLimit":  resultsLimit,
		"keywordSearch": c.cfg.KeywordSearch,
	}
	run, err := c.callActor(ctx, c.cfg.PrimaryActor, input)
	if err != nil {
		return RunRef{}, nil, err
	}
	items, err := c.DatasetItems(ctx, run.DatasetID, datasetLimit)
	if err != nil {
		return run, nil, err
	}
	return run, items, nil
}

// RunAndFetchMany runs the primary actor in batches sized by the configured
// run_batch_queries and returns all run references with the merged items.
func (c *Client) RunAndFetchMany(ctx context.Context, terms []string, resultsLimit, datasetLimitPerRun int) ([]RunRef, []Item, error) {
	normalized := normalizeTerms(terms)
	if len(normalized) == 0 {
		return nil, nil, services.Wrap(services.ErrValidation, "discovery", "run and fetch many",
			"at least one non-empty query term required", nil)
	}

	batchSize := c.cfg.RunBatchQueries
	if batchSize < 1 {
		batchSize = 1
	}

	var (
		runs  []RunRef
		items []Item
	)
	for start := 0; start < len(normalized); start += batchSize {
		end := min(start+batchSize, len(normalized))
		run, batchItems, err := c.RunAndFetch(ctx, normalized[start:end], resultsLimit, datasetLimitPerRun)
		if err != nil {
			return runs, items, err
		}
		runs = append(runs, run)
		items = append(items, batchItems...)
	}
	return runs, items, nil
}

// SearchHashtags runs the fallback actor in hashtag-search mode for a single
// query term. A non-positive searchLimit uses the platform default.
func (c *Client) SearchHashtags(ctx context.Context, query string, searchLimit, datasetLimit int) (RunRef, []Item, error) {
	query = termqueue.Normalize(query)
	if query == "" {
		return RunRef{}, nil, services.Wrap(services.ErrValidation, "discovery", "search hashtags",
			"search query must be non-empty", nil)
	}
	if searchLimit <= 0 {
		searchLimit = defaultSearchLimit
	}

	input := map[string]any{
		"search":      query,
		"searchType":  "hashtag",
		"searchLimit": searchLimit,
	}
	run, err := c.callActor(ctx, c.cfg.FallbackActor, input)
	if err != nil {
		return RunRef{}, nil, err
	}
	items, err := c.DatasetItems(ctx, run.DatasetID, datasetLimit)
	if err != nil {
		return run, nil, err
	}
	return run, items, nil
}

// ScrapeURLs runs the fallback actor against known post or tag page URLs.
func (c *Client) ScrapeURLs(ctx context.Context, urls []string, resultsLimit, datasetLimit int) (RunRef, []Item, error) {
	normalized := normalizeURLs(urls)
	if len(normalized) == 0 {
		return RunRef{}, nil, services.Wrap(services.ErrValidation, "discovery", "scrape urls",
			"at least one non-empty url required", nil)
	}

	input := map[string]any{
		"directUrls":   normalized,
		"resultsType":  c.cfg.ResultsType,
		"resultsLimit": resultsLimit,
	}
	run, err := c.callActor(ctx, c.cfg.FallbackActor, input)
	if err != nil {
		return RunRef{}, nil, err
	}
	items, err := c.DatasetItems(ctx, run.DatasetID, datasetLimit)
	if err != nil {
		return run, nil, err
	}
	return run, items, nil
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, raw := range terms {
		term := termqueue.Normalize(raw)
		if term == "" {
			continue
		}
		key := textutil.Fold(term)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, term)
	}
	return out
}

func normalizeURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		key := textutil.Fold(u)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}
