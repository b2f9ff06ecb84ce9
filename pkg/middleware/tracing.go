package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ctxPkg "github.com/yeisme/minerva/pkg/context"
	"github.com/yeisme/minerva/pkg/tracing"
)

// TracingMiddleware 为每个请求创建 span，span 名取路由模板，上游带 traceparent 时延续其链路.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		parent := tracing.ExtractHTTP(c.Request.Context(), c.Request.Header)

		ctx, span := tracing.StartSpan(parent, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", c.Request.URL.Path),
				attribute.String("http.user_agent", c.Request.UserAgent()),
				attribute.String("net.peer.ip", c.ClientIP()),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))

		if sub := ctxPkg.GetSubject(c.Request.Context()); sub != "" {
			span.SetAttributes(attribute.String("enduser.id", sub))
		}

		if status >= 500 || len(c.Errors) > 0 {
			span.SetStatus(codes.Error, c.Errors.String())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}
