// Package middleware 提供 gin 中间件：认证、请求 id、服务注入、限流、熔断、缓存、追踪与指标.
package middleware

import (
	crand "crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid"

	ctxPkg "github.com/yeisme/minerva/pkg/context"
)

// RequestIDHeader 请求 id 的请求头与响应头.
const RequestIDHeader = "X-Request-ID"

var (
	errInvalidToken   = errors.New("invalid token")
	errTokensDisabled = errors.New("bearer tokens are not accepted")
)

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(crand.Reader, 0)
)

// newRequestID 生成按时间单调递增的 ULID.
func newRequestID(t time.Time) string {
	ulidMu.Lock()
	defer ulidMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), ulidEntropy).String()
}

// RequestIDMiddleware 沿用客户端传入的 X-Request-ID，缺失时生成 ULID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = newRequestID(time.Now().UTC())
		}

		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(ctxPkg.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}
