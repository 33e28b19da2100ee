// Package ratelimit provides per-client request limiting on top of
// golang.org/x/time/rate token buckets.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Info contains information about rate limit status.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled bool
	// DefaultRate and DefaultBurst apply to endpoints without their own entry
	DefaultRate     float64
	DefaultBurst    int
	CleanupInterval time.Duration
	// IdleTTL is how long an unused bucket is kept
	IdleTTL         time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter manages rate limiting for multiple clients.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	config   *Config
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter creates a new rate limiter with the given configuration.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = &Config{
			Enabled:      true,
			DefaultRate:  20,
			DefaultBurst: 40,
		}
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 3 * time.Minute
	}

	l := &Limiter{
		visitors: make(map[string]*visitor),
		config:   cfg,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	if cfg.Enabled && cfg.CleanupInterval > 0 {
		go l.cleanup(cfg.CleanupInterval)
	}
	return l
}

// Allow checks if a request from the given client is allowed for the specified endpoint.
func (l *Limiter) Allow(clientID string, endpoint string, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{Allowed: false}
	}

	ep := MatchEndpoint(endpoint, method, l.config.EndpointConfigs)
	var (
		key   string
		limit rate.Limit
		burst int
		shown int
	)
	switch {
	case ep == nil:
		// one shared bucket per client for everything unconfigured
		key = clientID
		limit = rate.Limit(l.config.DefaultRate)
		burst = l.config.DefaultBurst
		shown = burst
	case ep.Limit <= 0:
		return true, Info{Allowed: true}
	default:
		key = clientID + ":" + ep.Method + ":" + ep.Path
		limit = rate.Every(ep.Window / time.Duration(ep.Limit))
		burst = ep.Burst
		if burst <= 0 {
			burst = ep.Limit
		}
		shown = ep.Limit
	}
	if limit <= 0 {
		return true, Info{Allowed: true}
	}

	now := l.now()
	lim := l.get(key, limit, burst, now)
	allowed := lim.AllowN(now, 1)
	tokens := lim.TokensAt(now)

	info := Info{
		Allowed:   allowed,
		Limit:     shown,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetTime: now.Add(refillTime(float64(burst)-tokens, limit)),
	}
	if !allowed {
		info.RetryAfter = refillTime(1-tokens, limit)
	}
	return allowed, info
}

func (l *Limiter) get(key string, limit rate.Limit, burst int, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(limit, burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// refillTime is how long the bucket needs to gain n tokens
func refillTime(n float64, limit rate.Limit) time.Duration {
	if n <= 0 || limit <= 0 {
		return 0
	}
	return time.Duration(n / float64(limit) * float64(time.Second))
}

func (l *Limiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanupVisitors()
		case <-l.stop:
			return
		}
	}
}

// cleanupVisitors removes buckets that have been idle longer than IdleTTL.
func (l *Limiter) cleanupVisitors() int {
	cutoff := l.now().Add(-l.config.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}

// Stop stops the cleanup goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
