package config

import (
	"errors"
	"fmt"
	"regexp"
)

var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate ensures the configuration is usable before any loop iteration.
func (c *Config) Validate() error {
	if err := c.validateTargets(); err != nil {
		return err
	}
	if err := c.validateDiscovery(); err != nil {
		return err
	}
	if err := c.validateLabeling(); err != nil {
		return err
	}
	if err := c.validateFilters(); err != nil {
		return err
	}
	if err := c.validateLoop(); err != nil {
		return err
	}
	if err := c.validateQuerying(); err != nil {
		return err
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateTargets() error {
	if c.Targets.PoolN < 1 {
		return errors.New("targets.pool_n must be positive")
	}
	if c.Targets.FinalN < 1 {
		return errors.New("targets.final_n must be positive")
	}
	if c.Targets.PoolN < c.Targets.FinalN {
		return errors.New("targets.pool_n must be >= targets.final_n")
	}
	return nil
}

func (c *Config) validateDiscovery() error {
	if !envNamePattern.MatchString(c.Discovery.TokenEnv) {
		return fmt.Errorf("discovery.token_env is not a valid environment variable name: %q", c.Discovery.TokenEnv)
	}
	if c.Discovery.BaseURL == "" {
		return errors.New("discovery.base_url must be set")
	}
	if c.Discovery.PrimaryActor == "" || c.Discovery.FallbackActor == "" {
		return errors.New("discovery.primary_actor and discovery.fallback_actor must be set")
	}
	if c.Discovery.ResultsLimitPerQuery < 1 {
		return errors.New("discovery.results_limit_per_query must be positive")
	}
	if c.Discovery.RunBatchQueries < 1 {
		return errors.New("discovery.run_batch_queries must be positive")
	}
	return nil
}

func (c *Config) validateLabeling() error {
	if !envNamePattern.MatchString(c.Labeling.APIKeyEnv) {
		return fmt.Errorf("labeling.api_key_env is not a valid environment variable name: %q", c.Labeling.APIKeyEnv)
	}
	if c.Labeling.PrimaryModel == "" {
		return errors.New("labeling.primary_model must be set")
	}
	if c.Labeling.EscalationConfidenceThreshold < 0 || c.Labeling.EscalationConfidenceThreshold > 1 {
		return errors.New("labeling.escalation_confidence_threshold must be between 0 and 1")
	}
	if c.Labeling.MaxOutputTokens < 1 {
		return errors.New("labeling.max_output_tokens must be positive")
	}
	return nil
}

func (c *Config) validateFilters() error {
	if c.Filters.MinCaptionChars < 0 {
		return errors.New("filters.min_caption_chars must be non-negative")
	}
	if c.Filters.MaxPostsPerOwner < 0 {
		return errors.New("filters.max_posts_per_owner must be non-negative")
	}
	return nil
}

func (c *Config) validateLoop() error {
	if c.Loop.MaxIterations < 1 {
		return errors.New("loop.max_iterations must be positive")
	}
	if c.Loop.StagnationWindow < 1 {
		return errors.New("loop.stagnation_window must be positive")
	}
	if c.Loop.StagnationMinNewEligible < 0 {
		return errors.New("loop.stagnation_min_new_eligible must be non-negative")
	}
	if c.Loop.MaxRawItems < 1 {
		return errors.New("loop.max_raw_items must be positive")
	}
	if c.Loop.BackoffSeconds < 0 {
		return errors.New("loop.backoff_seconds must be non-negative")
	}
	return nil
}

func (c *Config) validateQuerying() error {
	if len(c.Querying.SeedTerms) == 0 {
		return errors.New("querying.seed_terms must contain at least one non-empty term")
	}
	if c.Querying.Expansion.MaxNewTermsPerIteration < 1 {
		return errors.New("querying.expansion.max_new_terms_per_iteration must be positive")
	}
	if c.Querying.Expansion.MinHashtagFreqInEligible < 1 {
		return errors.New("querying.expansion.min_hashtag_freq_in_eligible must be positive")
	}
	return nil
}

func (c *Config) validateLog() error {
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unsupported value %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format: unsupported value %q", c.Log.Format)
	}
	return nil
}
