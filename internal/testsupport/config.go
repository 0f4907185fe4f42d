package testsupport

import (
	"testing"

	"loom/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config rooted in a unique temp directory per test. It
// defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Querying.SeedTerms = []string{"calisthenics"}
	cfg.Loop.MaxIterations = 5
	cfg.Loop.BackoffSeconds = 0
	cfg.Targets.PoolN = 5
	cfg.Targets.FinalN = 3

	for _, opt := range opts {
		opt(&cfg)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithSeedTerms replaces the seed term list on the test config.
func WithSeedTerms(terms ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Querying.SeedTerms = terms
	}
}

// WithTargets sets the pool and final sample sizes.
func WithTargets(poolN, finalN int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Targets.PoolN = poolN
		cfg.Targets.FinalN = finalN
	}
}

// WithMaxPostsPerOwner caps per-owner acceptances on the test config.
func WithMaxPostsPerOwner(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Filters.MaxPostsPerOwner = limit
	}
}
