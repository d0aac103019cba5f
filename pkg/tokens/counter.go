// Package tokens estimates token costs and tracks the remaining context
// budget within a model's input window.
package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Count is the result of one token count.
type Count struct {
	InputTokens int
	// Cached reports the result came from the count cache without
	// recomputation.
	Cached bool
	// EstimatedOnly reports the remote tokenizer was unavailable and the
	// local heuristic produced the number.
	EstimatedOnly bool
}

// RemoteCounter is a tokenizer-accurate counting backend, typically an API
// endpoint.
type RemoteCounter interface {
	CountTokens(ctx context.Context, model, text string) (int, error)
}

// Counter counts tokens with a remote-accurate attempt, a local estimator
// fallback, and a bounded TTL cache in front of both.
type Counter struct {
	remote RemoteCounter
	model  string
	cache  *ristretto.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// CounterOption configures a Counter.
type CounterOption func(*Counter)

// WithRemote sets the tokenizer-accurate backend. Without one, every count
// is EstimatedOnly.
func WithRemote(r RemoteCounter) CounterOption {
	return func(c *Counter) { c.remote = r }
}

// WithModel sets the model identifier passed to the remote counter.
func WithModel(model string) CounterOption {
	return func(c *Counter) { c.model = model }
}

// WithCacheTTL bounds how long cached counts stay valid (default 5m).
func WithCacheTTL(ttl time.Duration) CounterOption {
	return func(c *Counter) { c.ttl = ttl }
}

// WithCounterLogger sets the logger for fallback reporting.
func WithCounterLogger(l *slog.Logger) CounterOption {
	return func(c *Counter) { c.logger = l }
}

// NewCounter creates a Counter. The cache is capacity-bounded; beyond TTL
// expiry, ristretto's cost-based admission evicts the least valuable
// entries.
func NewCounter(opts ...CounterOption) (*Counter, error) {
	c := &Counter{
		model:  "unknown",
		ttl:    5 * time.Minute,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

// Count returns the token count for text. Identical requests within the TTL
// hit the cache and return Cached=true with no recomputation.
func (c *Counter) Count(ctx context.Context, text string) (Count, error) {
	key := c.model + "\x00" + text
	if v, ok := c.cache.Get(key); ok {
		cached := v.(Count)
		cached.Cached = true
		return cached, nil
	}

	result := Count{}
	if c.remote != nil {
		n, err := c.remote.CountTokens(ctx, c.model, text)
		if err == nil {
			result.InputTokens = n
		} else {
			c.logger.Debug("remote token count unavailable, estimating locally", "error", err)
			result.InputTokens = Estimate(text)
			result.EstimatedOnly = true
		}
	} else {
		result.InputTokens = Estimate(text)
		result.EstimatedOnly = true
	}

	c.cache.SetWithTTL(key, result, 1, c.ttl)
	c.cache.Wait()
	return result, nil
}

// Close releases the cache.
func (c *Counter) Close() {
	c.cache.Close()
}

// Estimate approximates token count locally: roughly one token per four
// characters, floored at the whitespace-separated word count so terse text
// is not undercounted.
func Estimate(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	byChars := (len(text) + 3) / 4
	byWords := len(strings.Fields(text))
	if byWords > byChars {
		return byWords
	}
	return byChars
}

// HTTPCounter calls a token-count HTTP endpoint.
type HTTPCounter struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPCounter creates a remote counter against url.
func NewHTTPCounter(url, apiKey string) *HTTPCounter {
	return &HTTPCounter{
		URL:        url,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type countRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type countResponse struct {
	InputTokens int `json:"input_tokens"`
}

// CountTokens posts the text and returns the tokenizer-accurate count.
func (h *HTTPCounter) CountTokens(ctx context.Context, model, text string) (int, error) {
	bodyBytes, err := json.Marshal(countRequest{Model: model, Text: text})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", h.URL, bytes.NewReader(bodyBytes))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(b))
	}

	var out countResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.InputTokens, nil
}
