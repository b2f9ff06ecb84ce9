package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"

	"github.com/yeisme/minerva/pkg/configs"
	nlog "github.com/yeisme/minerva/pkg/log"
)

var (
	errServerStatus = errors.New("server error status")
	errSlowCall     = errors.New("slow call")
)

// CircuitBreakerMiddleware 以 5xx 与慢调用比例为依据熔断一组路由，打开时直接返回 503.
// 4xx 属于调用方错误，不计入失败.
func CircuitBreakerMiddleware(name string, cfg configs.CircuitBreakerConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMax,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.Trips(counts.Requests, counts.TotalFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			nlog.Logger().Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("http circuit breaker state changed")
		},
	})

	slow := cfg.SlowCall
	retryAfter := strconv.Itoa(cfg.RetryAfterSeconds())

	return func(c *gin.Context) {
		_, err := cb.Execute(func() (any, error) {
			start := time.Now()

			c.Next()

			switch {
			case c.Writer.Status() >= http.StatusInternalServerError:
				return nil, errServerStatus
			case slow > 0 && time.Since(start) > slow:
				return nil, errSlowCall
			}

			return nil, nil
		})

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
		}
	}
}
