package middleware

import (
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	ctxPkg "github.com/yeisme/minerva/pkg/context"
	"github.com/yeisme/minerva/pkg/log"
)

// accessLevel 5xx 记为 error，4xx 记为 warn，quiet 路径的成功请求降为 debug.
func accessLevel(status int, quiet bool) zerolog.Level {
	switch {
	case status >= 500:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	case quiet:
		return zerolog.DebugLevel
	}

	return zerolog.InfoLevel
}

// GinLoggerMiddleware 使用 zerolog 记录访问日志.
// 监控抓取与健康检查频率很高，把它们的路径前缀放进 quiet 可以避免刷屏.
func GinLoggerMiddleware(quiet ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.Request.URL.Path
		status := c.Writer.Status()
		isQuiet := slices.ContainsFunc(quiet, func(p string) bool { return strings.HasPrefix(path, p) })

		logger := ctxPkg.Logger(c.Request.Context(), *log.Logger())
		event := logger.WithLevel(accessLevel(status, isQuiet))

		if c.Request.URL.RawQuery != "" {
			path += "?" + c.Request.URL.RawQuery
		}

		event = event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("route", c.FullPath()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())

		if len(c.Errors) > 0 {
			event = event.Str("error", c.Errors.String())
		}

		event.Msg("HTTP request")
	}
}
