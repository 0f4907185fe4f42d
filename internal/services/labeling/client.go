package labeling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"loom/internal/config"
	"loom/internal/decision"
	"loom/internal/post"
	"loom/internal/services"
)

const (
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 5
)

// Result is one classification outcome: the parsed decision plus provenance
// about which model produced it and the tokens it consumed.
type Result struct {
	Decision    decision.Decision
	Model       string
	TokensTotal *int
}

// Client wraps the chat-completion labeling API.
type Client struct {
	cfg    config.Labeling
	apiKey string

	httpClient       *http.Client
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default retry count.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a labeling client using the supplied configuration.
func NewClient(cfg config.Labeling, apiKey string, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:              cfg,
		apiKey:           strings.TrimSpace(apiKey),
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: timeout}
	}
	return client
}

// Classify labels one post. The primary model answers first; when its overall
// confidence falls below the configured threshold the escalation model is
// consulted and its decision replaces the primary one.
func (c *Client) Classify(ctx context.Context, p *post.Post) (Result, error) {
	var empty Result
	if p == nil || strings.TrimSpace(p.URL) == "" {
		return empty, services.Wrap(services.ErrValidation, "labeling", "classify", "post url required", nil)
	}
	if c.apiKey == "" {
		return empty, services.Wrap(services.ErrConfiguration, "labeling", "classify", "api key required", nil)
	}

	primary, err := c.classifyWithModel(ctx, p, c.cfg.PrimaryModel)
	if err != nil {
		return empty, err
	}

	escalate := c.cfg.EscalationModel != "" &&
		c.cfg.EscalationModel != c.cfg.PrimaryModel &&
		primary.Decision.OverallConfidence < c.cfg.EscalationConfidenceThreshold
	if !escalate {
		return primary, nil
	}

	escalated, err := c.classifyWithModel(ctx, p, c.cfg.EscalationModel)
	if err != nil {
		return empty, err
	}
	escalated.TokensTotal = sumTokens(primary.TokensTotal, escalated.TokensTotal)
	return escalated, nil
}

func (c *Client) classifyWithModel(ctx context.Context, p *post.Post, model string) (Result, error) {
	var empty Result
	model = strings.TrimSpace(model)
	if model == "" {
		return empty, services.Wrap(services.ErrConfiguration, "labeling", "classify", "model required", nil)
	}

	payload := chatCompletionRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemInstructions},
			{Role: "user", Content: userMessage(p)},
		},
		Temperature: 0,
		MaxTokens:   c.cfg.MaxOutputTokens,
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaFormat{
				Name:   decisionSchemaName,
				Strict: true,
				Schema: decisionSchema(decision.Genres),
			},
		},
	}

	var completion chatCompletionResponse
	err := c.withRetry(ctx, func() error {
		var err error
		completion, err = c.sendOnce(ctx, payload)
		return err
	})
	if err != nil {
		return empty, services.Wrap(services.ErrExternalService, "labeling", "classify", "model "+model, err)
	}

	content := completionContent(completion)
	if content == "" {
		return empty, services.Wrap(services.ErrExternalService, "labeling", "classify",
			"empty content from model "+model, nil)
	}
	parsed, err := decision.Parse([]byte(content))
	if err != nil {
		return empty, services.Wrap(services.ErrExternalService, "labeling", "classify",
			"parse structured output from model "+model, err)
	}
	// The top-level flag must agree with the deterministic rules.
	parsed = decision.Enforce(parsed)

	result := Result{Decision: parsed, Model: model}
	if completion.Usage != nil && completion.Usage.TotalTokens > 0 {
		tokens := completion.Usage.TotalTokens
		result.TokensTotal = &tokens
	}
	return result, nil
}

// userMessage serializes the post fields the model is allowed to see.
func userMessage(p *post.Post) string {
	payload := map[string]any{
		"url":         p.URL,
		"caption":     p.Caption,
		"hashtags":    emptyWhenNil(p.Hashtags),
		"mentions":    emptyWhenNil(p.Mentions),
		"alt":         p.Alt,
		"type":        p.Type,
		"productType": p.ProductType,
		"isSponsored": p.IsSponsored,
		"timestamp":   p.Timestamp,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		// Post fields are strings, string slices, and a bool pointer.
		panic(fmt.Sprintf("marshal post payload: %v", err))
	}
	return string(encoded)
}

func emptyWhenNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func sumTokens(a, b *int) *int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	total := *a + *b
	return &total
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func completionContent(completion chatCompletionResponse) string {
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content
		}
	}
	return ""
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("labeling request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (c *Client) sendOnce(ctx context.Context, payload chatCompletionRequest) (chatCompletionResponse, error) {
	var completion chatCompletionResponse
	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return completion, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion, fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return completion, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return completion, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, fmt.Errorf("decode response: %w", err)
	}
	if completion.Error != nil {
		return completion, fmt.Errorf("api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	return completion, nil
}

func (c *Client) withRetry(ctx context.Context, call func() error) error {
	maxAttempts := c.retryMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		delay, retry := c.retryDelay(ctx, lastErr, attempt, maxAttempts)
		if !retry {
			return lastErr
		}
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > c.retryMaxDelay/2 {
			delay = c.retryMaxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
