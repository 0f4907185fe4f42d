package main

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"loom/internal/config"
)

const testCaption = "Sixty seconds of hollow body holds every morning before work this month."

const eligibleDecisionBody = `{` +
	`"eligible":true,"eligibility_reasons":[],` +
	`"language":{"is_english":true,"confidence":0.95},` +
	`"topic":{"is_bodyweight_calisthenics":true,"confidence":0.9,"topic_notes":""},` +
	`"commercial":{"is_exclusively_commercial":false,"signals":[]},` +
	`"caption_quality":{"is_analyzable":true,"issues":[]},` +
	`"tags":{"genre":"training_log","narrative_labels":[],"discourse_moves":[],"neoliberal_signals":[]},` +
	`"overall_confidence":0.95}`

func newDiscoveryServer(t *testing.T, items []map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/v2/acts/"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"id":               "actor-run-1",
					"status":           "SUCCEEDED",
					"defaultDatasetId": "ds-1",
				},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/v2/datasets/ds-1/items":
			_ = json.NewEncoder(w).Encode(items)
		default:
			t.Errorf("unexpected discovery request: %s %s", r.Method, r.URL)
			http.NotFound(w, r)
		}
	}))
}

func newLabelingServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": eligibleDecisionBody}},
			},
			"usage": map[string]any{"total_tokens": 100},
		})
	}))
}

func TestRunCommandCompletesPoolAndExports(t *testing.T) {
	items := []map[string]any{
		{"id": "p1", "url": "https://www.instagram.com/p/AAA/", "caption": testCaption, "hashtags": []any{"calisthenics"}, "ownerUsername": "alice", "type": "Image"},
		{"id": "p2", "url": "https://www.instagram.com/p/BBB/", "caption": testCaption, "hashtags": []any{"calisthenics"}, "ownerUsername": "bob", "type": "Image"},
		{"id": "p3", "url": "https://www.instagram.com/p/CCC/", "caption": testCaption, "hashtags": []any{"calisthenics"}, "ownerUsername": "carol", "type": "Image"},
	}
	discoverySrv := newDiscoveryServer(t, items)
	defer discoverySrv.Close()
	labelingSrv := newLabelingServer(t)
	defer labelingSrv.Close()

	configPath, cfg := writeTestConfig(t, func(cfg *config.Config) {
		cfg.Discovery.BaseURL = discoverySrv.URL
		cfg.Labeling.BaseURL = labelingSrv.URL
	})
	t.Setenv(cfg.Discovery.TokenEnv, "test-token")
	t.Setenv(cfg.Labeling.APIKeyEnv, "test-key")

	stdout, _, err := runCLI(t, configPath, "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, stdout, "status=completed_pool")
	requireContains(t, stdout, "eligible=2")
	requireContains(t, stdout, "final_n=1")
	requireContains(t, stdout, "records=1")

	file, err := os.Open(corpusPath(cfg))
	if err != nil {
		t.Fatalf("open corpus export: %v", err)
	}
	defer file.Close()
	var lines int
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines++
	}
	if lines != 1 {
		t.Fatalf("corpus lines = %d, want 1", lines)
	}

	if _, err := os.Stat(cfg.StatePath()); err != nil {
		t.Fatalf("expected state database: %v", err)
	}
}

func TestRunCommandSignalsCapTermination(t *testing.T) {
	discoverySrv := newDiscoveryServer(t, nil)
	defer discoverySrv.Close()
	labelingSrv := newLabelingServer(t)
	defer labelingSrv.Close()

	configPath, cfg := writeTestConfig(t, func(cfg *config.Config) {
		cfg.Discovery.BaseURL = discoverySrv.URL
		cfg.Labeling.BaseURL = labelingSrv.URL
		cfg.Loop.MaxIterations = 1
	})
	t.Setenv(cfg.Discovery.TokenEnv, "test-token")
	t.Setenv(cfg.Labeling.APIKeyEnv, "test-key")

	stdout, _, err := runCLI(t, configPath, "run")
	if err == nil {
		t.Fatal("expected a cap termination error")
	}
	if code := exitCode(err); code != 4 {
		t.Fatalf("exit code = %d, want 4", code)
	}
	requireContains(t, stdout, "status=max_iterations")
}

func TestRunCommandRequiresSecrets(t *testing.T) {
	configPath, cfg := writeTestConfig(t, nil)
	t.Setenv(cfg.Discovery.TokenEnv, "")
	t.Setenv(cfg.Labeling.APIKeyEnv, "")

	_, _, err := runCLI(t, configPath, "run")
	if err == nil {
		t.Fatal("expected missing secrets to fail")
	}
	if code := exitCode(err); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}
