package ratelimit

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, cfg *Config) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLimiter(cfg)
	l.now = clock.now
	t.Cleanup(l.Stop)
	return l, clock
}

func TestLimiter_Allow(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})

	for i := 0; i < 10; i++ {
		allowed, info := l.Allow("127.0.0.1", "/api/blobs", http.MethodGet)
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 10, info.Limit)
		assert.Equal(t, 9-i, info.Remaining)
	}

	allowed, info := l.Allow("127.0.0.1", "/api/blobs", http.MethodGet)
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Positive(t, info.RetryAfter)
	assert.InDelta(t, float64(6*time.Second), float64(info.RetryAfter), float64(time.Millisecond))
}

func TestLimiter_Refill(t *testing.T) {
	l, clock := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 60, DefaultWindow: time.Minute})

	for i := 0; i < 60; i++ {
		l.Allow("c", "/x", http.MethodGet)
	}
	allowed, _ := l.Allow("c", "/x", http.MethodGet)
	require.False(t, allowed)

	clock.advance(time.Second)
	allowed, _ = l.Allow("c", "/x", http.MethodGet)
	assert.True(t, allowed)
	allowed, _ = l.Allow("c", "/x", http.MethodGet)
	assert.False(t, allowed)
}

func TestLimiter_ResetTime(t *testing.T) {
	l, clock := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 10, DefaultWindow: 10 * time.Second})

	for i := 0; i < 5; i++ {
		l.Allow("c", "/x", http.MethodGet)
	}
	_, info := l.Allow("c", "/x", http.MethodGet)
	assert.Equal(t, 4, info.Remaining)
	assert.Equal(t, clock.now().Add(6*time.Second), info.ResetTime)
}

func TestLimiter_Whitelist(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{
		Enabled: true, DefaultLimit: 1, DefaultWindow: time.Minute,
		Whitelist: map[string]bool{"127.0.0.1": true},
	})

	for i := 0; i < 50; i++ {
		allowed, info := l.Allow("127.0.0.1", "/x", http.MethodGet)
		require.True(t, allowed)
		assert.Equal(t, 0, info.Limit)
	}
}

func TestLimiter_Blacklist(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{
		Enabled: true, DefaultLimit: 100, DefaultWindow: time.Minute,
		Blacklist: map[string]bool{"10.0.0.1": true},
	})

	allowed, _ := l.Allow("10.0.0.1", "/health", http.MethodGet)
	assert.False(t, allowed)
}

func TestLimiter_Disabled(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{Enabled: false, DefaultLimit: 1, DefaultWindow: time.Minute})

	for i := 0; i < 20; i++ {
		allowed, _ := l.Allow("c", "/x", http.MethodGet)
		require.True(t, allowed)
	}
}

func TestLimiter_EndpointSpecific(t *testing.T) {
	cfg := &Config{
		Enabled: true, DefaultLimit: 100, DefaultWindow: time.Minute,
		Endpoints: []EndpointConfig{
			{Path: "/api/validate", Method: http.MethodPost, Limit: 30, Window: time.Hour, Burst: 2},
		},
	}
	l, _ := newTestLimiter(t, cfg)

	for i := 0; i < 2; i++ {
		allowed, info := l.Allow("c", "/api/validate", http.MethodPost)
		require.True(t, allowed)
		assert.Equal(t, 30, info.Limit)
	}
	allowed, _ := l.Allow("c", "/api/validate", http.MethodPost)
	assert.False(t, allowed, "burst exhausted")

	allowed, info := l.Allow("c", "/api/blobs", http.MethodGet)
	assert.True(t, allowed, "other endpoints keep their own budget")
	assert.Equal(t, 100, info.Limit)

	allowed, _ = l.Allow("other", "/api/validate", http.MethodPost)
	assert.True(t, allowed, "clients are isolated")
}

func TestLimiter_HealthIsUnlimited(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Hour})

	for i := 0; i < 10; i++ {
		allowed, _ := l.Allow("c", "/health", http.MethodGet)
		require.True(t, allowed)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 100, DefaultWindow: time.Hour})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("c", "/x", http.MethodGet); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, allowed)
}

func TestLimiter_EvictIdle(t *testing.T) {
	l, clock := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute, IdleTTL: time.Hour})

	for i := 0; i < 3; i++ {
		l.Allow(fmt.Sprintf("client-%d", i), "/x", http.MethodGet)
	}
	clock.advance(30 * time.Minute)
	l.Allow("client-0", "/x", http.MethodGet)
	clock.advance(45 * time.Minute)

	assert.Equal(t, 2, l.evictIdle())
	assert.Len(t, l.buckets, 1)
}

func TestLimiter_StopTwice(t *testing.T) {
	l := NewLimiter(nil)
	l.Stop()
	assert.NotPanics(t, l.Stop)
}

func TestMatchEndpoint(t *testing.T) {
	configs := []EndpointConfig{
		{Path: "/api/", Method: http.MethodGet, Limit: 1},
		{Path: "/api/blobs/", Method: http.MethodGet, Limit: 2},
		{Path: "/api/validate", Method: http.MethodPost, Limit: 3},
	}

	assert.Equal(t, 3, MatchEndpoint("/api/validate", http.MethodPost, configs).Limit)
	assert.Equal(t, 2, MatchEndpoint("/api/blobs/gold/a.json", http.MethodGet, configs).Limit)
	assert.Equal(t, 1, MatchEndpoint("/api/runs", http.MethodGet, configs).Limit)
	assert.Nil(t, MatchEndpoint("/api/validate", http.MethodGet, []EndpointConfig{configs[2]}))
	assert.Equal(t, 0, MatchEndpoint("/health", http.MethodGet, configs).Limit)
}

func TestLoadConfig(t *testing.T) {
	env := map[string]string{
		"RATE_LIMIT_ENABLED":        "true",
		"RATE_LIMIT_DEFAULT_LIMIT":  "50",
		"RATE_LIMIT_DEFAULT_WINDOW": "30s",
		"RATE_LIMIT_WHITELIST":      "1.1.1.1, 2.2.2.2",
		"RATE_LIMIT_BLACKLIST":      "",
	}
	cfg := LoadConfig(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 50, cfg.DefaultLimit)
	assert.Equal(t, 30*time.Second, cfg.DefaultWindow)
	assert.Equal(t, map[string]bool{"1.1.1.1": true, "2.2.2.2": true}, cfg.Whitelist)
	assert.Empty(t, cfg.Blacklist)
	assert.Equal(t, DefaultEndpointConfigs(), cfg.Endpoints)

	env = map[string]string{"RATE_LIMIT_ENABLED": "false", "RATE_LIMIT_DEFAULT_LIMIT": "lots"}
	cfg = LoadConfig(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	assert.False(t, cfg.Enabled)
	assert.Equal(t, DefaultConfig().DefaultLimit, cfg.DefaultLimit)
}
