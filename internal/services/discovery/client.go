package discovery

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
	"loom/internal/services"
)

const (
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryMaxDelay  = 20 * time.Second
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryAttempts  = 9

	// The platform caps synchronous waits; longer runs are polled.
	maxWaitForFinishSeconds = 300
)

// Item is one raw dataset record as returned by an actor run.
type Item = map[string]any

// RunRef identifies one finished actor run and its output dataset.
type RunRef struct {
	ActorID   string
	RunID     string
	DatasetID string
}

// Client talks to the actor platform REST API.
type Client struct {
	cfg   config.Discovery
	token string

	httpClient       *http.Client
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
	pollInterval     time.Duration
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

// WithPollInterval overrides how often an unfinished run is re-checked.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// NewClient constructs a discovery client for the configured platform.
func NewClient(cfg config.Discovery, token string, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:              cfg,
		token:            strings.TrimSpace(token),
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
		pollInterval:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: timeout}
	}
	return client
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("discovery request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

type actorRun struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

type actorRunEnvelope struct {
	Data actorRun `json:"data"`
}

// actorPath escapes an actor id for use in a URL path. The platform maps the
// owner/name separator to a tilde.
func actorPath(actorID string) string {
	return url.PathEscape(strings.ReplaceAll(strings.TrimSpace(actorID), "/", "~"))
}

// callActor starts an actor run, waits for it to finish, and returns the run
// reference. Transient platform failures are retried with backoff.
func (c *Client) callActor(ctx context.Context, actorID string, input map[string]any) (RunRef, error) {
	var empty RunRef
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return empty, services.Wrap(services.ErrValidation, "discovery", "call actor", "actor id required", nil)
	}
	if c.token == "" {
		return empty, services.Wrap(services.ErrConfiguration, "discovery", "call actor", "api token required", nil)
	}

	wait := maxWaitForFinishSeconds
	if c.cfg.TimeoutSeconds > 0 && c.cfg.TimeoutSeconds < wait {
		wait = c.cfg.TimeoutSeconds
	}
	endpoint := fmt.Sprintf("%s/v2/acts/%s/runs?waitForFinish=%d", c.cfg.BaseURL, actorPath(actorID), wait)

	encoded, err := json.Marshal(input)
	if err != nil {
		return empty, services.Wrap(services.ErrExternalService, "discovery", "call actor", "encode input", err)
	}

	var run actorRun
	err = c.withRetry(ctx, "call actor "+actorID, func() error {
		body, err := c.doRequest(ctx, http.MethodPost, endpoint, encoded)
		if err != nil {
			return err
		}
		var envelope actorRunEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return fmt.Errorf("decode run response: %w", err)
		}
		run = envelope.Data
		return nil
	})
	if err != nil {
		return empty, services.Wrap(services.ErrExternalService, "discovery", "call actor", actorID, err)
	}

	run, err = c.waitForRun(ctx, run)
	if err != nil {
		return empty, services.Wrap(services.ErrExternalService, "discovery", "call actor", actorID, err)
	}
	if run.ID == "" || run.DefaultDatasetID == "" {
		return empty, services.Wrap(services.ErrExternalService, "discovery", "call actor",
			"run response missing run id or dataset id for "+actorID, nil)
	}
	return RunRef{ActorID: actorID, RunID: run.ID, DatasetID: run.DefaultDatasetID}, nil
}

// waitForRun polls a run that outlived the synchronous wait window until it
// reaches a terminal status.
func (c *Client) waitForRun(ctx context.Context, run actorRun) (actorRun, error) {
	for {
		switch run.Status {
		case "SUCCEEDED":
			return run, nil
		case "FAILED", "ABORTED", "TIMED-OUT":
			return run, fmt.Errorf("actor run %s ended with status %s", run.ID, run.Status)
		case "":
			return run, errors.New("actor run response missing status")
		}

		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return run, err
		}
		endpoint := fmt.Sprintf("%s/v2/actor-runs/%s", c.cfg.BaseURL, url.PathEscape(run.ID))
		var refreshed actorRun
		err := c.withRetry(ctx, "poll run "+run.ID, func() error {
			body, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			var envelope actorRunEnvelope
			if err := json.Unmarshal(body, &envelope); err != nil {
				return fmt.Errorf("decode run status: %w", err)
			}
			refreshed = envelope.Data
			return nil
		})
		if err != nil {
			return run, err
		}
		run = refreshed
	}
}

// DatasetItems fetches the cleaned items of a dataset. A non-positive limit
// fetches everything the platform returns.
func (c *Client) DatasetItems(ctx context.Context, datasetID string, limit int) ([]Item, error) {
	datasetID = strings.TrimSpace(datasetID)
	if datasetID == "" {
		return nil, services.Wrap(services.ErrValidation, "discovery", "dataset items", "dataset id required", nil)
	}

	endpoint := fmt.Sprintf("%s/v2/datasets/%s/items?clean=true&format=json", c.cfg.BaseURL, url.PathEscape(datasetID))
	if limit > 0 {
		endpoint += "&limit=" + strconv.Itoa(limit)
	}

	var items []Item
	err := c.withRetry(ctx, "dataset items "+datasetID, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		items = nil
		if err := json.Unmarshal(body, &items); err != nil {
			return fmt.Errorf("decode dataset items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "discovery", "dataset items", datasetID, err)
	}
	return items, nil
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(payload)),
			RetryAfter: retryAfter,
		}
	}
	return payload, nil
}

func (c *Client) withRetry(ctx context.Context, op string, call func() error) error {
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
	return fmt.Errorf("%s: %w", op, lastErr)
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
