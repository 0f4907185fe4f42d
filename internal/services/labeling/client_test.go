package labeling_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loom/internal/config"
	"loom/internal/post"
	"loom/internal/services"
	"loom/internal/services/labeling"
)

func decisionJSON(eligible bool, confidence float64) string {
	return fmt.Sprintf(`{
		"eligible": %t,
		"eligibility_reasons": [],
		"language": {"is_english": true, "confidence": %f},
		"topic": {"is_bodyweight_calisthenics": true, "confidence": %f, "topic_notes": ""},
		"commercial": {"is_exclusively_commercial": false, "signals": []},
		"caption_quality": {"is_analyzable": true, "issues": []},
		"tags": {"genre": "training_log", "narrative_labels": [], "discourse_moves": [], "neoliberal_signals": []},
		"overall_confidence": %f
	}`, eligible, confidence, confidence, confidence)
}

func completionBody(content string, tokens int) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
		"usage": map[string]any{"total_tokens": tokens},
	}
}

func testLabelingConfig(baseURL string) config.Labeling {
	cfg := config.Default().Labeling
	cfg.BaseURL = baseURL
	return cfg
}

func testPost() *post.Post {
	return &post.Post{
		URL:      "https://x.com/p/abc/",
		Caption:  "Morning pull-up session, 5x5 weighted.",
		Hashtags: []string{"calisthenics"},
	}
}

func TestClassifyPrimaryModel(t *testing.T) {
	var request map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("X-Title"); got == "" {
			t.Error("X-Title header missing")
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(completionBody(decisionJSON(true, 0.95), 120))
	}))
	defer server.Close()

	client := labeling.NewClient(testLabelingConfig(server.URL), "key-1")
	result, err := client.Classify(context.Background(), testPost())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.Model != "openai/gpt-5-nano" {
		t.Fatalf("model = %q", result.Model)
	}
	if !result.Decision.Eligible || result.Decision.OverallConfidence != 0.95 {
		t.Fatalf("unexpected decision: %#v", result.Decision)
	}
	if result.TokensTotal == nil || *result.TokensTotal != 120 {
		t.Fatalf("tokens = %v", result.TokensTotal)
	}

	format, _ := request["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Fatalf("response_format = %v", format)
	}
	schema, _ := format["json_schema"].(map[string]any)
	if schema["strict"] != true || schema["name"] != "corpus_post_decision" {
		t.Fatalf("json_schema = %v", schema)
	}
}

func TestClassifyEscalatesOnLowConfidence(t *testing.T) {
	var models []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request map[string]any
		_ = json.NewDecoder(r.Body).Decode(&request)
		model, _ := request["model"].(string)
		models = append(models, model)

		confidence := 0.4
		tokens := 100
		if len(models) > 1 {
			confidence = 0.85
			tokens = 250
		}
		_ = json.NewEncoder(w).Encode(completionBody(decisionJSON(true, confidence), tokens))
	}))
	defer server.Close()

	client := labeling.NewClient(testLabelingConfig(server.URL), "key-1")
	result, err := client.Classify(context.Background(), testPost())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(models) != 2 || models[0] != "openai/gpt-5-nano" || models[1] != "openai/gpt-5-mini" {
		t.Fatalf("models = %v", models)
	}
	if result.Model != "openai/gpt-5-mini" {
		t.Fatalf("result model = %q", result.Model)
	}
	if result.Decision.OverallConfidence != 0.85 {
		t.Fatalf("escalated decision not used: %#v", result.Decision)
	}
	if result.TokensTotal == nil || *result.TokensTotal != 350 {
		t.Fatalf("tokens = %v, want 350", result.TokensTotal)
	}
}

func TestClassifySkipsEscalationAboveThreshold(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(completionBody(decisionJSON(false, 0.71), 90))
	}))
	defer server.Close()

	client := labeling.NewClient(testLabelingConfig(server.URL), "key-1")
	result, err := client.Classify(context.Background(), testPost())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if result.Model != "openai/gpt-5-nano" {
		t.Fatalf("model = %q", result.Model)
	}
}

func TestClassifyRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(completionBody(decisionJSON(true, 0.9), 80))
	}))
	defer server.Close()

	client := labeling.NewClient(testLabelingConfig(server.URL), "key-1",
		labeling.WithSleeper(func(time.Duration) {}),
	)
	if _, err := client.Classify(context.Background(), testPost()); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestClassifyRejectsMalformedOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionBody(`{"eligible": true, "surprise": 1}`, 50))
	}))
	defer server.Close()

	client := labeling.NewClient(testLabelingConfig(server.URL), "key-1")
	_, err := client.Classify(context.Background(), testPost())
	if err == nil {
		t.Fatal("expected parse failure")
	}
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected external service marker, got %v", err)
	}
}

func TestClassifyRequiresAPIKey(t *testing.T) {
	client := labeling.NewClient(testLabelingConfig("http://127.0.0.1:0"), "")
	_, err := client.Classify(context.Background(), testPost())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
