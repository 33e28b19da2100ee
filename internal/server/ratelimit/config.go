package ratelimit

import (
	"os"
	"strings"
	"time"

	"github.com/jonathan/resume-intake/internal/config"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// FromServerConfig derives the limiter configuration from the server section.
// A zero request rate disables limiting. RATE_LIMIT_WHITELIST and
// RATE_LIMIT_BLACKLIST hold comma-separated client IPs.
func FromServerConfig(sc config.ServerConfig) *Config {
	if sc.RateLimitRPS <= 0 {
		return &Config{Enabled: false}
	}
	burst := sc.RateLimitBurst
	if burst <= 0 {
		burst = int(sc.RateLimitRPS)
	}
	return &Config{
		Enabled:         true,
		DefaultRate:     sc.RateLimitRPS,
		DefaultBurst:    burst,
		CleanupInterval: time.Minute,
		IdleTTL:         3 * time.Minute,
		Whitelist:       parseIPList(os.Getenv("RATE_LIMIT_WHITELIST")),
		Blacklist:       parseIPList(os.Getenv("RATE_LIMIT_BLACKLIST")),
		EndpointConfigs: DefaultEndpointConfigs(sc.UploadPerHour),
	}
}

// DefaultEndpointConfigs returns the endpoint-specific limits. Uploads start
// the expensive pipeline and get their own hourly budget.
func DefaultEndpointConfigs(uploadsPerHour int) []EndpointConfig {
	if uploadsPerHour <= 0 {
		return nil
	}
	burst := uploadsPerHour / 10
	if burst < 1 {
		burst = 1
	}
	return []EndpointConfig{
		{Path: "/resume/upload", Method: "POST", Limit: uploadsPerHour, Window: time.Hour, Burst: burst},
		{Path: "/resume/history/", Method: "DELETE", Limit: 100, Window: time.Minute, Burst: 10},
	}
}

// parseIPList parses a comma-separated list of IP addresses into a map.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	if list == "" {
		return result
	}

	for _, ip := range strings.Split(list, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}

	return result
}
