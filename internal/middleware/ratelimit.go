package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimiter counts requests per client IP in fixed windows stored in Redis.
type RateLimiter struct {
	client redis.Cmdable
	prefix string
	log    zerolog.Logger
}

func NewRateLimiter(client redis.Cmdable, prefix string, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, log: log}
}

// Limit allows limit requests per window for the named route. Redis errors
// let the request through.
func (l *RateLimiter) Limit(name string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := l.prefix + name + ":" + c.ClientIP()

		count, ttl, err := l.hit(c.Request.Context(), key, window)
		if err != nil {
			l.log.Warn().Err(err).Str("route", name).Msg("rate limiter unavailable")
			c.Next()
			return
		}

		remaining := max(limit-int(count), 0)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > int64(limit) {
			if ttl > 0 {
				c.Header("Retry-After", strconv.Itoa(int((ttl+time.Second-1)/time.Second)))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func (l *RateLimiter) hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}
	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if ttl < 0 {
		// a crash between INCR and EXPIRE left the key without expiry
		if err := l.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = window
	}
	return count, ttl, nil
}
