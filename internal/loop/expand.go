package loop

import (
	"net/url"
	"sort"
	"strings"

	"loom/internal/services/discovery"
	"loom/internal/textutil"
)

type selection struct {
	minFreq       int
	maxTerms      int
	blocklistKeys map[string]struct{}
	attemptedKeys map[string]struct{}
	presentKeys   map[string]struct{}
}

// selectExpansionTerms picks the most frequent eligible hashtags that have
// not been blocked, attempted, or queued yet. Candidates are ordered by
// frequency descending with a folded lexical tiebreak, and the scan stops at
// the first candidate below the frequency floor.
func selectExpansionTerms(hashtagCounts map[string]int, sel selection) []string {
	if sel.maxTerms <= 0 {
		return nil
	}

	type candidate struct {
		freq int
		term string
	}
	candidates := make([]candidate, 0, len(hashtagCounts))
	for term, freq := range hashtagCounts {
		key := textutil.Fold(term)
		if _, blocked := sel.blocklistKeys[key]; blocked {
			continue
		}
		if _, attempted := sel.attemptedKeys[key]; attempted {
			continue
		}
		if _, present := sel.presentKeys[key]; present {
			continue
		}
		candidates = append(candidates, candidate{freq: freq, term: term})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].freq != candidates[j].freq {
			return candidates[i].freq > candidates[j].freq
		}
		foldI, foldJ := textutil.Fold(candidates[i].term), textutil.Fold(candidates[j].term)
		if foldI != foldJ {
			return foldI < foldJ
		}
		return candidates[i].term < candidates[j].term
	})

	var out []string
	for _, c := range candidates {
		if c.freq < sel.minFreq {
			break
		}
		out = append(out, c.term)
		if len(out) >= sel.maxTerms {
			break
		}
	}
	return out
}

// searchURLKeys are the item fields fallback search results expose page URLs
// under, in preference order.
var searchURLKeys = []string{
	"url", "pageUrl", "page_url", "hashtagUrl", "hashtag_url", "tagUrl", "tag_url",
}

// extractSearchURLs collects candidate page URLs from fallback search items,
// deduplicated case-insensitively in encounter order.
func extractSearchURLs(items []discovery.Item) []string {
	var out []string
	seen := map[string]struct{}{}

	add := func(value any) {
		raw, ok := value.(string)
		if !ok {
			return
		}
		u := strings.TrimSpace(raw)
		if u == "" {
			return
		}
		key := textutil.Fold(u)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}

	for _, item := range items {
		for _, field := range searchURLKeys {
			add(item[field])
		}
		if list, ok := item["urls"].([]any); ok {
			for _, value := range list {
				add(value)
			}
		}
	}
	return out
}

// hashtagFromURL extracts the tag name from an explore/tags page URL, or
// returns "" when the URL is not a tag page.
func hashtagFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	var segments []string
	for _, segment := range strings.Split(strings.Trim(parsed.Path, "/"), "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	for i := 0; i+2 < len(segments); i++ {
		if segments[i] == "explore" && segments[i+1] == "tags" {
			return strings.TrimSpace(segments[i+2])
		}
	}
	return ""
}

func dedupeFold(values []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		key := textutil.Fold(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
