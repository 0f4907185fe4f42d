package discovery_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loom/internal/config"
	"loom/internal/services"
	"loom/internal/services/discovery"
)

func testDiscoveryConfig(baseURL string) config.Discovery {
	cfg := config.Default().Discovery
	cfg.BaseURL = baseURL
	cfg.ResultsLimitPerQuery = 25
	cfg.RunBatchQueries = 2
	return cfg
}

func writeJSON(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func succeededRun(id, datasetID string) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"id":               id,
			"status":           "SUCCEEDED",
			"defaultDatasetId": datasetID,
		},
	}
}

func TestRunAndFetch(t *testing.T) {
	var runInput map[string]any
	var itemsQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/v2/acts/"):
			if !strings.Contains(r.URL.Path, "apify~instagram-hashtag-scraper") {
				t.Errorf("unexpected actor path %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
				t.Errorf("authorization = %q", got)
			}
			if err := json.NewDecoder(r.Body).Decode(&runInput); err != nil {
				t.Errorf("decode input: %v", err)
			}
			writeJSON(t, w, succeededRun("run-1", "ds-1"))
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v2/datasets/ds-1/items"):
			itemsQuery = r.URL.RawQuery
			writeJSON(t, w, []map[string]any{{"id": "1"}, {"id": "2"}})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := discovery.NewClient(testDiscoveryConfig(server.URL), "token-1")
	run, items, err := client.RunAndFetch(context.Background(), []string{" #Calisthenics ", "calisthenics", "parkour"}, 0, 50)
	if err != nil {
		t.Fatalf("RunAndFetch: %v", err)
	}
	if run.RunID != "run-1" || run.DatasetID != "ds-1" {
		t.Fatalf("unexpected run: %#v", run)
	}
	if len(items) != 2 {
		t.Fatalf("items = %v", items)
	}

	hashtags, _ := runInput["hashtags"].([]any)
	if len(hashtags) != 2 || hashtags[0] != "Calisthenics" || hashtags[1] != "parkour" {
		t.Fatalf("hashtags not normalized: %v", runInput["hashtags"])
	}
	if runInput["resultsLimit"].(float64) != 25 {
		t.Fatalf("resultsLimit = %v", runInput["resultsLimit"])
	}
	if !strings.Contains(itemsQuery, "clean=true") || !strings.Contains(itemsQuery, "limit=50") {
		t.Fatalf("dataset query = %q", itemsQuery)
	}
}

func TestRunAndFetchManyChunksTerms(t *testing.T) {
	var batches [][]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			var input map[string]any
			_ = json.NewDecoder(r.Body).Decode(&input)
			tags, _ := input["hashtags"].([]any)
			batches = append(batches, tags)
			writeJSON(t, w, succeededRun("run-x", "ds-x"))
		default:
			writeJSON(t, w, []map[string]any{{"id": "1"}})
		}
	}))
	defer server.Close()

	client := discovery.NewClient(testDiscoveryConfig(server.URL), "token-1")
	runs, items, err := client.RunAndFetchMany(context.Background(), []string{"a", "b", "c"}, 0, 0)
	if err != nil {
		t.Fatalf("RunAndFetchMany: %v", err)
	}
	if len(runs) != 2 || len(items) != 2 {
		t.Fatalf("runs = %d items = %d", len(runs), len(items))
	}
	if len(batches) != 2 || len(batches[0]) != 2 || len(batches[1]) != 1 {
		t.Fatalf("unexpected batching: %v", batches)
	}
}

func TestCallActorRetriesOnTooManyRequests(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			attempts++
			if attempts == 1 {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "slow down", http.StatusTooManyRequests)
				return
			}
			writeJSON(t, w, succeededRun("run-1", "ds-1"))
			return
		}
		writeJSON(t, w, []map[string]any{})
	}))
	defer server.Close()

	var slept []time.Duration
	client := discovery.NewClient(testDiscoveryConfig(server.URL), "token-1",
		discovery.WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	if _, _, err := client.RunAndFetch(context.Background(), []string{"a"}, 0, 0); err != nil {
		t.Fatalf("RunAndFetch: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("slept = %v, want [1s]", slept)
	}
}

func TestCallActorDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer server.Close()

	client := discovery.NewClient(testDiscoveryConfig(server.URL), "token-1",
		discovery.WithSleeper(func(time.Duration) {}),
	)
	_, _, err := client.RunAndFetch(context.Background(), []string{"a"}, 0, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected external service marker, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestCallActorPollsUnfinishedRun(t *testing.T) {
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			writeJSON(t, w, map[string]any{
				"data": map[string]any{"id": "run-1", "status": "RUNNING", "defaultDatasetId": "ds-1"},
			})
		case strings.HasPrefix(r.URL.Path, "/v2/actor-runs/run-1"):
			polls++
			status := "RUNNING"
			if polls >= 2 {
				status = "SUCCEEDED"
			}
			writeJSON(t, w, map[string]any{
				"data": map[string]any{"id": "run-1", "status": status, "defaultDatasetId": "ds-1"},
			})
		default:
			writeJSON(t, w, []map[string]any{})
		}
	}))
	defer server.Close()

	client := discovery.NewClient(testDiscoveryConfig(server.URL), "token-1",
		discovery.WithPollInterval(time.Millisecond),
		discovery.WithSleeper(func(time.Duration) {}),
	)
	run, _, err := client.RunAndFetch(context.Background(), []string{"a"}, 0, 0)
	if err != nil {
		t.Fatalf("RunAndFetch: %v", err)
	}
	if run.RunID != "run-1" || polls != 2 {
		t.Fatalf("run = %#v polls = %d", run, polls)
	}
}

func TestCallActorFailsOnTerminalFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"data": map[string]any{"id": "run-1", "status": "FAILED", "defaultDatasetId": "ds-1"},
		})
	}))
	defer server.Close()

	client := discovery.NewClient(testDiscoveryConfig(server.URL), "token-1")
	if _, _, err := client.RunAndFetch(context.Background(), []string{"a"}, 0, 0); err == nil {
		t.Fatal("expected failure for FAILED run")
	}
}

func TestSearchHashtagsInput(t *testing.T) {
	var input map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if !strings.Contains(r.URL.Path, "apify~instagram-scraper") {
				t.Errorf("fallback actor expected, got %s", r.URL.Path)
			}
			_ = json.NewDecoder(r.Body).Decode(&input)
			writeJSON(t, w, succeededRun("run-1", "ds-1"))
			return
		}
		writeJSON(t, w, []map[string]any{})
	}))
	defer server.Close()

	client := discovery.NewClient(testDiscoveryConfig(server.URL), "token-1")
	if _, _, err := client.SearchHashtags(context.Background(), "#Pullups", 0, 0); err != nil {
		t.Fatalf("SearchHashtags: %v", err)
	}
	if input["search"] != "Pullups" || input["searchType"] != "hashtag" {
		t.Fatalf("unexpected input: %v", input)
	}
	if input["searchLimit"].(float64) != 20 {
		t.Fatalf("searchLimit = %v, want default 20", input["searchLimit"])
	}
}

func TestScrapeURLsDedupesInput(t *testing.T) {
	var input map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&input)
			writeJSON(t, w, succeededRun("run-1", "ds-1"))
			return
		}
		writeJSON(t, w, []map[string]any{})
	}))
	defer server.Close()

	client := discovery.NewClient(testDiscoveryConfig(server.URL), "token-1")
	urls := []string{"https://x.com/explore/tags/a/", "HTTPS://X.COM/EXPLORE/TAGS/A/", "https://x.com/explore/tags/b/"}
	if _, _, err := client.ScrapeURLs(context.Background(), urls, 50, 0); err != nil {
		t.Fatalf("ScrapeURLs: %v", err)
	}
	direct, _ := input["directUrls"].([]any)
	if len(direct) != 2 {
		t.Fatalf("directUrls = %v", direct)
	}
	if input["resultsLimit"].(float64) != 50 {
		t.Fatalf("resultsLimit = %v", input["resultsLimit"])
	}
}

func TestMissingTokenFailsFast(t *testing.T) {
	client := discovery.NewClient(testDiscoveryConfig("http://127.0.0.1:0"), "")
	_, _, err := client.RunAndFetch(context.Background(), []string{"a"}, 0, 0)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
