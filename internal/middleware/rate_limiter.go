package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"studylock-backend/internal/auth"
	"studylock-backend/internal/httpx"
	"studylock-backend/internal/logging"
)

// Counter increments a windowed counter and returns the new value.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter is a fixed-window counter: INCR, with the expiry set when
// the key is created.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// DialRedis connects and pings. A nil client with an error means the
// limiter should stay disabled.
func DialRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	addr = strings.ReplaceAll(strings.TrimSpace(addr), " ", "")
	if addr == "" {
		return nil, fmt.Errorf("redis address not set")
	}
	rc := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rc, nil
}

// RateLimiter caps requests per user (or per IP when unauthenticated) in
// a fixed window. Counter failures let the request through.
type RateLimiter struct {
	counter Counter
	max     int
	window  time.Duration
	prefix  string
	log     logging.Logger
}

func NewRateLimiter(counter Counter, max int, window time.Duration, prefix string, log logging.Logger) *RateLimiter {
	return &RateLimiter{counter: counter, max: max, window: window, prefix: prefix, log: log}
}

func (l *RateLimiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	if l == nil || l.counter == nil || l.max <= 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := l.prefix + ":" + clientKey(r)
		n, err := l.counter.Incr(r.Context(), key, l.window)
		if err != nil {
			l.log.Warn("rate limiter unavailable, allowing request", "error", err)
			next(w, r)
			return
		}

		remaining := l.max - int(n)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.max))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if int(n) > l.max {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			httpx.Error(w, http.StatusTooManyRequests, "Rate limits exceeded, please try again later.")
			return
		}
		next(w, r)
	}
}

func clientKey(r *http.Request) string {
	if uid, ok := auth.UserIDFromContext(r.Context()); ok {
		return "user:" + uid.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
