package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yeisme/minerva/pkg/configs"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimitMiddleware 令牌桶限流. key 取值：
//   - global 全局共用一个桶
//   - ip 按客户端 IP
//   - subject 按认证主体，匿名请求退回 IP
//   - header:Name 按请求头，缺失时退回 IP
func RateLimitMiddleware(cfg configs.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	mode := strings.TrimSpace(cfg.Key)
	if mode == "" || strings.EqualFold(mode, "global") {
		limiter := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)

		return func(c *gin.Context) {
			if !limiter.Allow() {
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
				return
			}

			c.Next()
		}
	}

	buckets := newLimiterSet(rate.Limit(cfg.RPS), cfg.Burst)

	return func(c *gin.Context) {
		if !buckets.get(limitKey(c, mode), time.Now()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}

func limitKey(c *gin.Context, mode string) string {
	var key string

	switch {
	case strings.HasPrefix(strings.ToLower(mode), "header:"):
		key = c.GetHeader(mode[len("header:"):])
	case strings.EqualFold(mode, "subject"):
		key = GetSubject(c)
	}

	if key == "" {
		key = clientIP(c)
	}

	return key
}

type limiterEntry struct {
	l    *rate.Limiter
	seen time.Time
}

// limiterSet 按键维护令牌桶，访问时顺带淘汰闲置超过 limiterIdleTTL 的桶.
type limiterSet struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{limit: limit, burst: burst, entries: map[string]*limiterEntry{}, lastSweep: time.Now()}
}

func (s *limiterSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > limiterIdleTTL {
		for k, e := range s.entries {
			if now.Sub(e.seen) > limiterIdleTTL {
				delete(s.entries, k)
			}
		}

		s.lastSweep = now
	}

	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = e
	}

	e.seen = now

	return e.l
}

func clientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}

	if host, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		return host
	}

	return c.Request.RemoteAddr
}
