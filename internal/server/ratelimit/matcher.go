package ratelimit

import (
	"net/http"
	"strings"
)

// unlimited is returned for probes that must never be throttled
var unlimited = EndpointConfig{}

// MatchEndpoint returns the budget for method and path, or nil when the
// default limit applies. Exact paths win over "/"-suffixed prefixes; among
// prefixes the longest wins.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	if path == "/health" && (method == http.MethodGet || method == http.MethodHead) {
		return &unlimited
	}

	var best *EndpointConfig
	for i := range configs {
		c := &configs[i]
		if c.Method != method {
			continue
		}
		if c.Path == path {
			return c
		}
		if strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			if best == nil || len(c.Path) > len(best.Path) {
				best = c
			}
		}
	}
	return best
}
