package config

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Targets controls pool and final sample sizes.
type Targets struct {
	PoolN        int   `toml:"pool_n" json:"pool_n"`
	FinalN       int   `toml:"final_n" json:"final_n"`
	SamplingSeed int64 `toml:"sampling_seed" json:"sampling_seed"`
}

// Discovery configures the content-discovery actor platform.
type Discovery struct {
	TokenEnv             string `toml:"token_env" json:"token_env"`
	BaseURL              string `toml:"base_url" json:"base_url"`
	PrimaryActor         string `toml:"primary_actor" json:"primary_actor"`
	FallbackActor        string `toml:"fallback_actor" json:"fallback_actor"`
	ResultsType          string `toml:"results_type" json:"results_type"`
	ResultsLimitPerQuery int    `toml:"results_limit_per_query" json:"results_limit_per_query"`
	RunBatchQueries      int    `toml:"run_batch_queries" json:"run_batch_queries"`
	KeywordSearch        bool   `toml:"keyword_search" json:"keyword_search"`
	TimeoutSeconds       int    `toml:"timeout_seconds" json:"timeout_seconds"`
}

// Labeling configures the language-labeling service.
type Labeling struct {
	APIKeyEnv                     string  `toml:"api_key_env" json:"api_key_env"`
	BaseURL                       string  `toml:"base_url" json:"base_url"`
	PrimaryModel                  string  `toml:"primary_model" json:"primary_model"`
	EscalationModel               string  `toml:"escalation_model" json:"escalation_model"`
	EscalationConfidenceThreshold float64 `toml:"escalation_confidence_threshold" json:"escalation_confidence_threshold"`
	MaxOutputTokens               int     `toml:"max_output_tokens" json:"max_output_tokens"`
	TimeoutSeconds                int     `toml:"timeout_seconds" json:"timeout_seconds"`
	Referer                       string  `toml:"referer" json:"referer"`
	Title                         string  `toml:"title" json:"title"`
}

// Filters configures the deterministic prechecks and the dominance guard.
type Filters struct {
	MinCaptionChars  int  `toml:"min_caption_chars" json:"min_caption_chars"`
	MaxPostsPerOwner int  `toml:"max_posts_per_owner" json:"max_posts_per_owner"`
	AllowReels       bool `toml:"allow_reels" json:"allow_reels"`
	RejectSponsored  bool `toml:"reject_sponsored" json:"reject_sponsored"`
}

// Loop configures iteration caps, stagnation, and pacing.
type Loop struct {
	MaxIterations            int `toml:"max_iterations" json:"max_iterations"`
	StagnationWindow         int `toml:"stagnation_window" json:"stagnation_window"`
	StagnationMinNewEligible int `toml:"stagnation_min_new_eligible" json:"stagnation_min_new_eligible"`
	MaxRawItems              int `toml:"max_raw_items" json:"max_raw_items"`
	BackoffSeconds           int `toml:"backoff_seconds" json:"backoff_seconds"`
}

// Expansion configures hashtag-driven query expansion.
type Expansion struct {
	Enabled                  bool     `toml:"enabled" json:"enabled"`
	MaxNewTermsPerIteration  int      `toml:"max_new_terms_per_iteration" json:"max_new_terms_per_iteration"`
	MinHashtagFreqInEligible int      `toml:"min_hashtag_freq_in_eligible" json:"min_hashtag_freq_in_eligible"`
	BlocklistTerms           []string `toml:"blocklist_terms" json:"blocklist_terms"`
}

// Querying holds seed terms and expansion settings.
type Querying struct {
	SeedTerms []string  `toml:"seed_terms" json:"seed_terms"`
	Expansion Expansion `toml:"expansion" json:"expansion"`
}

// Log configures structured logging.
type Log struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// Paths locates everything a run writes: the state database, the run log,
// and corpus exports all live under the output directory.
type Paths struct {
	OutputDir string `toml:"output_dir" json:"output_dir"`
}

// Config is the root configuration document.
type Config struct {
	Targets   Targets   `toml:"targets" json:"targets"`
	Discovery Discovery `toml:"discovery" json:"discovery"`
	Labeling  Labeling  `toml:"labeling" json:"labeling"`
	Filters   Filters   `toml:"filters" json:"filters"`
	Loop      Loop      `toml:"loop" json:"loop"`
	Querying  Querying  `toml:"querying" json:"querying"`
	Log       Log       `toml:"log" json:"log"`
	Paths     Paths     `toml:"paths" json:"paths"`
}

// StatePath returns the SQLite database location under the output directory.
func (c *Config) StatePath() string {
	return filepath.Join(c.Paths.OutputDir, "state.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.OutputDir, ".loom.lock")
}

// Load reads, normalizes, and validates a config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Hash returns a stable SHA-256 fingerprint of the effective configuration,
// recorded with each run for reproducibility.
func (c *Config) Hash() (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("hash config: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// WriteSample writes the embedded sample configuration to path. It refuses to
// overwrite an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// Sample returns the embedded sample configuration text.
func Sample() string {
	return sampleConfig
}
