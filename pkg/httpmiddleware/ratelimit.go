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

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig configures the rate limiter.
type RateLimitConfig struct {
	// Max is the maximum number of requests allowed per window.
	Max int
	// Window is the duration of each window.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request.
	// If nil, the customer ID header is used, falling back to the client IP.
	KeyFunc func(*http.Request) string
	// Store keeps the counters. If nil, a process-local sliding window is
	// used.
	Store LimitStore
}

// Limit is the outcome of counting one request.
type Limit struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// LimitStore counts requests per key.
type LimitStore interface {
	Take(ctx context.Context, key string, now time.Time) (Limit, error)
}

// entry tracks request counts across two adjacent windows for the sliding
// window algorithm.
type entry struct {
	prevCount float64
	prevStart time.Time
	currCount float64
	currStart time.Time
}

// MemoryStore is a process-local sliding window LimitStore.
type MemoryStore struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// NewMemoryStore returns a MemoryStore allowing limit requests per window.
func NewMemoryStore(limit int, window time.Duration) *MemoryStore {
	return &MemoryStore{
		max:     limit,
		window:  window,
		entries: make(map[string]*entry),
	}
}

// Take implements LimitStore.
func (s *MemoryStore) Take(_ context.Context, key string, now time.Time) (Limit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{currStart: now}
		s.entries[key] = e
	}

	if now.Sub(e.currStart) >= s.window {
		e.prevCount = e.currCount
		e.prevStart = e.currStart
		e.currCount = 0
		e.currStart = now.Truncate(s.window)
		if now.Sub(e.prevStart) >= 2*s.window {
			e.prevCount = 0
		}
	}

	// Weight the previous window by its overlap with the sliding window.
	elapsed := now.Sub(e.currStart)
	overlap := max(1.0-elapsed.Seconds()/s.window.Seconds(), 0)
	effective := e.prevCount*overlap + e.currCount
	l := Limit{ResetAt: e.currStart.Add(s.window)}

	if effective >= float64(s.max) {
		return l, nil
	}
	e.currCount++
	l.Allowed = true
	l.Remaining = max(int(float64(s.max)-effective-1), 0)
	return l, nil
}

// Cleanup removes entries whose windows have fully expired.
func (s *MemoryStore) Cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if now.Sub(e.currStart) >= 2*s.window {
			delete(s.entries, key)
		}
	}
}

// RunCleanup calls Cleanup every two windows until ctx is done.
func (s *MemoryStore) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(2 * s.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Cleanup(now)
		}
	}
}

// RedisStore is a fixed window LimitStore shared by all server replicas.
type RedisStore struct {
	client redis.UniversalClient
	max    int
	window time.Duration
}

// NewRedisStore returns a RedisStore allowing limit requests per window.
func NewRedisStore(client redis.UniversalClient, limit int, window time.Duration) *RedisStore {
	return &RedisStore{client: client, max: limit, window: window}
}

// Take implements LimitStore.
func (s *RedisStore) Take(ctx context.Context, key string, now time.Time) (Limit, error) {
	start := now.Truncate(s.window)
	k := "bazaar:ratelimit:" + key + ":" + strconv.FormatInt(start.Unix(), 10)

	var incr *redis.IntCmd
	if _, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.PExpire(ctx, k, s.window)
		return nil
	}); err != nil {
		return Limit{}, errors.Wrap(err, "count request")
	}

	n := int(incr.Val())
	return Limit{
		Allowed:   n <= s.max,
		Remaining: max(s.max-n, 0),
		ResetAt:   start.Add(s.window),
	}, nil
}

// RateLimit returns a middleware that enforces a per-key request limit.
// When the limit is exceeded, it responds with 429 Too Many Requests and a
// JSON body. Every response includes X-RateLimit-Limit,
// X-RateLimit-Remaining, and X-RateLimit-Reset headers. Store errors let
// the request through.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = defaultKeyFunc
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore(cfg.Max, cfg.Window)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			l, err := cfg.Store.Take(r.Context(), cfg.KeyFunc(r), now)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limit store failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(l.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(l.ResetAt.Unix(), 10))

			if !l.Allowed {
				retryAfter := max(l.ResetAt.Sub(now), 0)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// defaultKeyFunc keys by the customer ID header when present, otherwise by
// client IP: X-Forwarded-For first, then X-Real-IP, then RemoteAddr.
func defaultKeyFunc(r *http.Request) string {
	if id := r.Header.Get(HeaderCustomerID); id != "" {
		return "customer:" + id
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For may contain a comma-separated list; use the first.
		if i := strings.IndexByte(xff, ','); i > 0 {
			return "ip:" + strings.TrimSpace(xff[:i])
		}
		return "ip:" + strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return "ip:" + xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
