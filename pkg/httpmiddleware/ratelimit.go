package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures a Limiter.
type RateLimitConfig struct {
	// Max is the number of requests a key may make per Window.
	Max int
	// Window is the length of the sliding window.
	Window time.Duration
	// KeyFunc identifies the caller. ClientKey is used when nil.
	KeyFunc func(*http.Request) string
}

// counter holds the request counts of the current and the previous fixed
// window of one key.
type counter struct {
	prev      float64
	curr      float64
	currStart time.Time
}

// Decision is the outcome of one Limiter.Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is a per-key sliding window rate limiter. The previous window
// counts in proportion to how much of it the sliding window still covers.
type Limiter struct {
	cfg RateLimitConfig

	mu       sync.Mutex
	counters map[string]*counter
}

// NewLimiter returns a Limiter for cfg.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientKey
	}
	return &Limiter{
		cfg:      cfg,
		counters: make(map[string]*counter),
	}
}

// Allow records a request of key at now unless it would exceed the limit.
func (l *Limiter) Allow(key string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok {
		c = &counter{currStart: now.Truncate(l.cfg.Window)}
		l.counters[key] = c
	}
	if since := now.Sub(c.currStart); since >= l.cfg.Window {
		c.prev = c.curr
		if since >= 2*l.cfg.Window {
			c.prev = 0
		}
		c.curr = 0
		c.currStart = now.Truncate(l.cfg.Window)
	}

	weight := 1 - now.Sub(c.currStart).Seconds()/l.cfg.Window.Seconds()
	used := c.prev*math.Max(weight, 0) + c.curr
	d := Decision{ResetAt: c.currStart.Add(l.cfg.Window)}
	if used >= float64(l.cfg.Max) {
		return d
	}

	c.curr++
	d.Allowed = true
	d.Remaining = max(int(float64(l.cfg.Max)-used-1), 0)
	return d
}

// Prune drops keys that have been idle for two windows.
func (l *Limiter) Prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, c := range l.counters {
		if now.Sub(c.currStart) >= 2*l.cfg.Window {
			delete(l.counters, key)
		}
	}
}

// Run prunes idle keys every two windows until ctx is done.
func (l *Limiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(2 * l.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			l.Prune(now)
		}
	}
}

// Middleware rejects requests over the limit with 429. Every response carries
// the X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset headers.
func (l *Limiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Allow(l.cfg.KeyFunc(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				wait := max(time.Until(d.ResetAt), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// APIKeyHeader is the header API clients authenticate with.
const APIKeyHeader = "X-API-Key"

// ClientKey buckets callers by client IP. The limiter runs before
// authentication, so the unverified API key header is never part of the key.
func ClientKey(r *http.Request) string {
	return "ip:" + clientIP(r)
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
