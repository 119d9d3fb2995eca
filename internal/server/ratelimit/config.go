package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig is the budget for requests matching a method and path.
// A Path ending in "/" matches every path below it.
type EndpointConfig struct {
	Path   string
	Method string
	Limit  int           // requests per Window; 0 means unlimited
	Window time.Duration
	Burst  int // defaults to Limit
}

// Config holds rate limiting configuration
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	// IdleTTL is how long an unused client bucket is kept
	IdleTTL   time.Duration
	Whitelist map[string]bool
	Blacklist map[string]bool
	Endpoints []EndpointConfig
}

// DefaultConfig returns an enabled limiter with the built-in endpoint budgets
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		DefaultLimit:    600,
		DefaultWindow:   time.Minute,
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
		Whitelist:       map[string]bool{},
		Blacklist:       map[string]bool{},
		Endpoints:       DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs budgets the model-backed validation runs tightly,
// uploads moderately, and leaves reads on the default limit.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		{Path: "/api/validate", Method: http.MethodPost, Limit: 30, Window: time.Hour, Burst: 5},
		{Path: "/api/validate/stream", Method: http.MethodPost, Limit: 30, Window: time.Hour, Burst: 5},
		{Path: "/api/blobs", Method: http.MethodPost, Limit: 120, Window: time.Minute, Burst: 20},
	}
}

// LoadConfig reads the RATE_LIMIT_* variables through lookup, falling back to
// DefaultConfig for anything unset or unparseable.
func LoadConfig(lookup func(string) (string, bool)) *Config {
	cfg := DefaultConfig()
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	if v, err := strconv.ParseBool(get("RATE_LIMIT_ENABLED")); err == nil {
		cfg.Enabled = v
	}
	if v, err := strconv.Atoi(get("RATE_LIMIT_DEFAULT_LIMIT")); err == nil && v >= 0 {
		cfg.DefaultLimit = v
	}
	if v, err := time.ParseDuration(get("RATE_LIMIT_DEFAULT_WINDOW")); err == nil && v > 0 {
		cfg.DefaultWindow = v
	}
	if v, err := time.ParseDuration(get("RATE_LIMIT_CLEANUP_INTERVAL")); err == nil && v > 0 {
		cfg.CleanupInterval = v
	}
	cfg.Whitelist = parseIPList(get("RATE_LIMIT_WHITELIST"))
	cfg.Blacklist = parseIPList(get("RATE_LIMIT_BLACKLIST"))
	return cfg
}

func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
