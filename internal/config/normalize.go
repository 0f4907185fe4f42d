package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"loom/internal/termqueue"
	"loom/internal/textutil"
)

// Normalize cleans list-valued settings in place: term lists are trimmed,
// hash prefixes stripped, and deduplicated case-insensitively while
// preserving first-seen casing.
func (c *Config) Normalize() {
	c.Querying.SeedTerms = normalizeTermList(c.Querying.SeedTerms)
	c.Querying.Expansion.BlocklistTerms = normalizeTermList(c.Querying.Expansion.BlocklistTerms)
	c.Discovery.BaseURL = strings.TrimRight(strings.TrimSpace(c.Discovery.BaseURL), "/")
	c.Labeling.BaseURL = strings.TrimSpace(c.Labeling.BaseURL)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if dir := strings.TrimSpace(c.Paths.OutputDir); dir != "" {
		c.Paths.OutputDir = filepath.Clean(dir)
	} else {
		c.Paths.OutputDir = ""
	}
}

func normalizeTermList(terms []string) []string {
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

// Secrets carries the resolved API credentials for one run.
type Secrets struct {
	DiscoveryToken string
	LabelingAPIKey string
}

// ResolveSecrets reads the configured environment variables and fails with a
// single message listing everything that is missing.
func (c *Config) ResolveSecrets() (Secrets, error) {
	var missing []string

	token := strings.TrimSpace(os.Getenv(c.Discovery.TokenEnv))
	if token == "" {
		missing = append(missing, c.Discovery.TokenEnv)
	}
	apiKey := strings.TrimSpace(os.Getenv(c.Labeling.APIKeyEnv))
	if apiKey == "" {
		missing = append(missing, c.Labeling.APIKeyEnv)
	}

	if len(missing) > 0 {
		return Secrets{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return Secrets{DiscoveryToken: token, LabelingAPIKey: apiKey}, nil
}
