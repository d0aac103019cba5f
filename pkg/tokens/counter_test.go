package tokens

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	count int
	err   error
	calls int
}

func (f *fakeRemote) CountTokens(ctx context.Context, model, text string) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

func TestCount_RemoteSuccess(t *testing.T) {
	remote := &fakeRemote{count: 42}
	c, err := NewCounter(WithRemote(remote), WithModel("test-model"))
	require.NoError(t, err)
	defer c.Close()

	got, err := c.Count(context.Background(), "some text")
	require.NoError(t, err)
	assert.Equal(t, 42, got.InputTokens)
	assert.False(t, got.Cached)
	assert.False(t, got.EstimatedOnly)
}

func TestCount_CacheHit(t *testing.T) {
	remote := &fakeRemote{count: 42}
	c, err := NewCounter(WithRemote(remote))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	first, err := c.Count(ctx, "repeated text")
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := c.Count(ctx, "repeated text")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.InputTokens, second.InputTokens)
	assert.Equal(t, 1, remote.calls, "cache hit must not call the remote again")
}

func TestCount_FallsBackToEstimate(t *testing.T) {
	remote := &fakeRemote{err: errors.New("connection refused")}
	c, err := NewCounter(WithRemote(remote))
	require.NoError(t, err)
	defer c.Close()

	text := strings.Repeat("word ", 100)
	got, err := c.Count(context.Background(), text)
	require.NoError(t, err)
	assert.True(t, got.EstimatedOnly)
	assert.Equal(t, Estimate(text), got.InputTokens)
}

func TestCount_NoRemoteConfigured(t *testing.T) {
	c, err := NewCounter()
	require.NoError(t, err)
	defer c.Close()

	got, err := c.Count(context.Background(), "hello world")
	require.NoError(t, err)
	assert.True(t, got.EstimatedOnly)
	assert.Positive(t, got.InputTokens)
}

func TestCount_CacheExpires(t *testing.T) {
	remote := &fakeRemote{count: 7}
	c, err := NewCounter(WithRemote(remote), WithCacheTTL(20*time.Millisecond))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, err = c.Count(ctx, "short lived")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	got, err := c.Count(ctx, "short lived")
	require.NoError(t, err)
	assert.False(t, got.Cached)
	assert.Equal(t, 2, remote.calls)
}

func TestEstimate(t *testing.T) {
	assert.Zero(t, Estimate(""))
	assert.Zero(t, Estimate("   \n\t  "))

	// 100 characters of prose land near 25 tokens.
	text := strings.Repeat("abcd", 25)
	assert.Equal(t, 25, Estimate(text))

	// Many short words floor at the word count.
	assert.Equal(t, 4, Estimate("a b c d"))
}

func TestHTTPCounter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"input_tokens": 128}`)
	}))
	defer srv.Close()

	h := NewHTTPCounter(srv.URL, "test-key")
	n, err := h.CountTokens(context.Background(), "test-model", "some text")
	require.NoError(t, err)
	assert.Equal(t, 128, n)
}

func TestHTTPCounter_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	h := NewHTTPCounter(srv.URL, "")
	_, err := h.CountTokens(context.Background(), "test-model", "some text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestContextBudget(t *testing.T) {
	b := ContextBudget(155_000, 200_000, 0)
	assert.Equal(t, 40_000, b.Reserved)
	assert.Equal(t, 160_000, b.Total)
	assert.Equal(t, 5_000, b.Remaining)
	assert.Equal(t, StatusCritical, b.Status)
	assert.Contains(t, b.Recommendation, "5000")
}

func TestContextBudget_Statuses(t *testing.T) {
	tests := []struct {
		used   int
		status BudgetStatus
	}{
		{0, StatusHealthy},
		{100_000, StatusHealthy},
		{112_000, StatusWarning},  // 70% of 160k
		{144_000, StatusCritical}, // 90% of 160k
		{160_000, StatusCritical},
	}
	for _, tt := range tests {
		b := ContextBudget(tt.used, 200_000, 0)
		assert.Equal(t, tt.status, b.Status, "used=%d", tt.used)
	}
}

func TestContextBudget_Defaults(t *testing.T) {
	b := ContextBudget(0, 0, 0)
	assert.Equal(t, DefaultWindowSize, b.WindowSize)
	assert.Equal(t, 40_000, b.Reserved)
	assert.Equal(t, StatusHealthy, b.Status)
}

func TestContextBudget_Overrun(t *testing.T) {
	b := ContextBudget(500_000, 200_000, 0)
	assert.Zero(t, b.Remaining)
	assert.Equal(t, StatusCritical, b.Status)
}
