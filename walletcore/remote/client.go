// Package remote is a JSON over HTTP client with retries, endpoint failover and a background
// check that moves back to the primary endpoint once it recovers.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "remote").Logger()
}

// HTTPError is a non 2xx answer
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether another attempt can succeed
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// StatusCode extracts the HTTP status of err, 0 when err is not an HTTP answer
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// Client provides access to a JSON API with failover support.
// It maintains a primary endpoint and switches to backup endpoints when the primary is unavailable.
type Client struct {
	name           string
	httpClient     *http.Client
	primaryURL     string
	backupURLs     []string
	currentURL     string
	headers        map[string]string
	mu             sync.RWMutex
	healthChecker  *healthChecker
	failoverConfig FailoverConfig
}

// FailoverConfig controls failover behavior
type FailoverConfig struct {
	// MaxRetries is the number of times to retry a failed request on the current endpoint
	MaxRetries int
	// RetryDelay is the initial delay between retries (doubles with each retry)
	RetryDelay time.Duration
	// HealthCheckInterval is how often to check if the primary endpoint is back up
	HealthCheckInterval time.Duration
	// HealthPath is requested on an endpoint to decide whether it is up
	HealthPath string
	// Timeout is the HTTP request timeout
	Timeout time.Duration
}

// DefaultFailoverConfig returns sensible defaults for failover behavior
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		MaxRetries:          2,
		RetryDelay:          500 * time.Millisecond,
		HealthCheckInterval: 30 * time.Second,
		HealthPath:          "/health",
		Timeout:             10 * time.Second,
	}
}

// healthChecker periodically checks if the primary endpoint is healthy
type healthChecker struct {
	client    *Client
	stopCh    chan struct{}
	stoppedCh chan struct{}
	isRunning bool
	mu        sync.Mutex
}

// NewClient creates a client for a single endpoint
func NewClient(name, apiURL string) (*Client, error) {
	return NewClientWithFailover(name, apiURL, nil, DefaultFailoverConfig())
}

// NewClientWithFailover creates a client with failover support
func NewClientWithFailover(name, primaryURL string, backupURLs []string, config FailoverConfig) (*Client, error) {
	if _, err := url.ParseRequestURI(primaryURL); err != nil {
		return nil, fmt.Errorf("invalid primary url for %s: %w", name, err)
	}

	validBackups := make([]string, 0, len(backupURLs))
	for _, u := range backupURLs {
		if _, err := url.ParseRequestURI(u); err != nil {
			log.Warn().Err(err).Str("client", name).Str("url", u).Msg("Invalid backup URL, skipping")
			continue
		}
		validBackups = append(validBackups, u)
	}

	client := &Client{
		name:           name,
		httpClient:     &http.Client{Timeout: config.Timeout},
		primaryURL:     primaryURL,
		backupURLs:     validBackups,
		currentURL:     primaryURL,
		headers:        make(map[string]string),
		failoverConfig: config,
	}

	if len(validBackups) > 0 {
		client.startHealthChecker()
	}

	log.Info().
		Str("client", name).
		Str("primary", primaryURL).
		Int("backups", len(validBackups)).
		Msg("Remote client initialized")
	return client, nil
}

// SetHeader adds a header sent with every request, e.g. an API key
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

func (c *Client) startHealthChecker() {
	c.healthChecker = &healthChecker{
		client:    c,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	c.healthChecker.start()
}

func (h *healthChecker) start() {
	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		return
	}
	h.isRunning = true
	h.mu.Unlock()

	go func() {
		defer close(h.stoppedCh)
		ticker := time.NewTicker(h.client.failoverConfig.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.checkAndRestore()
			}
		}
	}()
}

func (h *healthChecker) stop() {
	h.mu.Lock()
	if !h.isRunning {
		h.mu.Unlock()
		return
	}
	h.isRunning = false
	h.mu.Unlock()

	close(h.stopCh)
	<-h.stoppedCh
}

// checkAndRestore moves back to the primary endpoint when it is healthy again
func (h *healthChecker) checkAndRestore() {
	h.client.mu.RLock()
	currentURL := h.client.currentURL
	primaryURL := h.client.primaryURL
	h.client.mu.RUnlock()

	if currentURL == primaryURL {
		return
	}

	if h.client.isEndpointHealthy(primaryURL) {
		h.client.mu.Lock()
		h.client.currentURL = primaryURL
		h.client.mu.Unlock()
		log.Info().Str("client", h.client.name).Str("url", primaryURL).Msg("Restored primary endpoint")
	}
}

func (c *Client) isEndpointHealthy(endpoint string) bool {
	healthURL := endpoint + c.failoverConfig.HealthPath
	resp, err := c.httpClient.Get(healthURL)
	if err != nil {
		log.Debug().Err(err).Str("url", healthURL).Msg("Health check failed")
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode == http.StatusOK
}

// CurrentURL returns the active endpoint
func (c *Client) CurrentURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentURL
}

// failover switches to the next healthy endpoint
func (c *Client) failover() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	allURLs := append([]string{c.primaryURL}, c.backupURLs...)
	currentIdx := -1
	for i, u := range allURLs {
		if u == c.currentURL {
			currentIdx = i
			break
		}
	}

	for i := 1; i <= len(allURLs); i++ {
		nextURL := allURLs[(currentIdx+i)%len(allURLs)]
		if nextURL == c.currentURL {
			continue
		}
		if c.isEndpointHealthy(nextURL) {
			c.currentURL = nextURL
			log.Info().Str("client", c.name).Str("url", nextURL).Msg("Failover to endpoint")
			return true
		}
	}

	log.Warn().Str("client", c.name).Str("url", c.currentURL).Msg("All endpoints unhealthy, staying on current")
	return false
}

// Close stops the health checker
func (c *Client) Close() {
	if c.healthChecker != nil {
		c.healthChecker.stop()
	}
}

// GetJSON sends a GET request and decodes the answer into out
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	body, err := c.doRequestWithFailover(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decode(body, out)
}

// PostJSON sends in as JSON and decodes the answer into out. out may be nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	body, err := c.doRequestWithFailover(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(body, out)
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, fullURL string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// doRequestWithFailover retries on the current endpoint, then fails over once.
// Client errors (4xx other than 429) are returned right away.
func (c *Client) doRequestWithFailover(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var lastErr error
	retryDelay := c.failoverConfig.RetryDelay

	for attempt := 0; attempt <= c.failoverConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
			retryDelay *= 2
		}

		body, err := c.do(ctx, method, c.CurrentURL()+path, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && !httpErr.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if len(c.backupURLs) > 0 && c.failover() {
		body, err := c.do(ctx, method, c.CurrentURL()+path, payload)
		if err != nil {
			return nil, fmt.Errorf("failover request failed: %w (original: %w)", err, lastErr)
		}
		return body, nil
	}

	return nil, fmt.Errorf("%s request failed after %d retries: %w", c.name, c.failoverConfig.MaxRetries+1, lastErr)
}
