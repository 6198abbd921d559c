// Package ratelimit provides per-key token bucket rate limiting for MCP tools
// and for the control endpoints of the live server.
package ratelimit

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrLimited is wrapped by CheckLimit when a tool is over its limit.
var ErrLimited = errors.New("rate limit exceeded")

// Limiter hands every key its own token bucket with a shared rate and
// burst. Buckets start full. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewLimiter creates a limiter refilling perSecond tokens per second up to
// burst. A zero rate allows burst requests per key and then nothing.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

// Burst returns the bucket size.
func (l *Limiter) Burst() int { return l.burst }

// Rate returns the refill rate in tokens per second.
func (l *Limiter) Rate() float64 { return float64(l.limit) }

// Allow takes a token from key's bucket, reporting false when it is empty.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	now := l.now()
	l.mu.Unlock()

	return b.AllowN(now, 1)
}

// Middleware rejects requests with 429 once the client's bucket is empty.
// Clients are keyed by remote IP.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded, please slow down", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the default per-tool limits. Parsing and
// formatting are cheap; layout, simulation and rendering run the physics
// and are limited harder.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"causalloop_parse":    NewLimiter(2.0, 20),      // 120/minute
		"causalloop_format":   NewLimiter(2.0, 20),      // 120/minute
		"causalloop_examples": NewLimiter(1.0, 10),      // 60/minute
		"causalloop_layout":   NewLimiter(30.0/60.0, 5), // 30/minute
		"causalloop_simulate": NewLimiter(30.0/60.0, 5), // 30/minute
		"causalloop_render":   NewLimiter(20.0/60.0, 3), // 20/minute
	}
}

// CheckLimit returns an error wrapping ErrLimited when toolName is over its
// limit. Tools without a limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow(toolName) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrLimited, toolName)
	}
	return nil
}
