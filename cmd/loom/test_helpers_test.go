package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"loom/internal/config"
	"loom/internal/decision"
	"loom/internal/store"
)

// writeTestConfig materializes a small config file in a temp directory and
// returns its path together with the effective configuration.
func writeTestConfig(t *testing.T, mutate func(*config.Config)) (string, *config.Config) {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Querying.SeedTerms = []string{"calisthenics"}
	cfg.Targets = config.Targets{PoolN: 2, FinalN: 1, SamplingSeed: 7}
	cfg.Loop.MaxIterations = 3
	cfg.Loop.BackoffSeconds = 0
	if mutate != nil {
		mutate(&cfg)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}

	raw, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal test config: %v", err)
	}
	path := filepath.Join(base, "loom.toml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path, &cfg
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !bytes.Contains([]byte(haystack), []byte(needle)) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

// seedEligiblePool writes a run with count accepted posts directly into the
// state database a command under test will open.
func seedEligiblePool(t *testing.T, cfg *config.Config, count int) string {
	t.Helper()

	st, err := store.Open(cfg.StatePath())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	run, err := st.CreateRun(ctx, store.CreateRunParams{ConfigHash: "test"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := st.FinishRun(ctx, run.RunID); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	d := decision.Decision{
		Eligible:          true,
		Language:          decision.Language{IsEnglish: true, Confidence: 0.9},
		Topic:             decision.Topic{IsBodyweightCalisthenics: true, Confidence: 0.9},
		CaptionQuality:    decision.CaptionQuality{IsAnalyzable: true},
		Tags:              decision.Tags{Genre: "training_log"},
		OverallConfidence: 0.9,
	}
	for i := 0; i < count; i++ {
		key := "id:post-" + string(rune('a'+i))
		url := "https://www.instagram.com/p/" + string(rune('A'+i)) + "/"
		if err := st.UpsertRawPost(ctx, key, url, "actor-a", map[string]any{"id": key}); err != nil {
			t.Fatalf("UpsertRawPost: %v", err)
		}
		if err := st.RecordDecision(ctx, key, url, "model-a", d, nil); err != nil {
			t.Fatalf("RecordDecision: %v", err)
		}
	}
	return run.RunID
}
