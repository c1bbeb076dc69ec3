package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"roastkit/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// windowCounter counts hits for a key in the fixed window starting at
// windowStart and returns the count after this hit.
type windowCounter interface {
	hit(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error)
}

// RateLimiter is a fixed-window limiter keyed by client IP. With a Redis
// client the counters are shared by every API instance; with nil they live
// in this process only.
func RateLimiter(rdb *redis.Client, name string, limit int, window time.Duration) gin.HandlerFunc {
	var counter windowCounter = newMemoryCounter()
	if rdb != nil {
		counter = &redisCounter{rdb: rdb}
	}
	return rateLimit(counter, name, limit, window, time.Now)
}

func rateLimit(counter windowCounter, name string, limit int, window time.Duration, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		t := now()
		start := t.Truncate(window)
		key := fmt.Sprintf("ratelimit:%s:%s", name, c.ClientIP())

		count, err := counter.hit(c.Request.Context(), key, start, window)
		if err != nil {
			// Fail open: a limiter outage must not take the API down
			log.Warn().Err(err).Str("limiter", name).Msg("rate limiter unavailable")
			c.Next()
			return
		}

		if count > int64(limit) {
			retry := start.Add(window).Sub(t)
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New("too many requests, try again shortly"))
			return
		}
		c.Next()
	}
}

// ── Redis counter ─────────────────────────────────────────────────────────────

type redisCounter struct{ rdb *redis.Client }

func (r *redisCounter) hit(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	k := fmt.Sprintf("%s:%d", key, windowStart.Unix())
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// ── In-process counter ───────────────────────────────────────────────────────

type memoryEntry struct {
	count       int64
	windowStart time.Time
}

type memoryCounter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func newMemoryCounter() *memoryCounter {
	return &memoryCounter{entries: make(map[string]*memoryEntry)}
}

func (m *memoryCounter) hit(_ context.Context, key string, windowStart time.Time, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || !e.windowStart.Equal(windowStart) {
		// New window; drop entries whose window has passed so the map stays small
		for k, old := range m.entries {
			if old.windowStart.Before(windowStart) {
				delete(m.entries, k)
			}
		}
		e = &memoryEntry{windowStart: windowStart}
		m.entries[key] = e
	}
	e.count++
	return e.count, nil
}
