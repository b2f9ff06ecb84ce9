package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/metrics"
)

// PrometheusMiddleware 记录请求数、耗时、响应大小与并发数.
// endpoint 取路由模板，瓦片坐标不会进入标签；未匹配的路径统一记为 unmatched.
func PrometheusMiddleware(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skipped[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		metrics.RequestsInFlight.Inc()
		defer metrics.RequestsInFlight.Dec()

		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		status := strconv.Itoa(c.Writer.Status())

		metrics.RequestCounter.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		metrics.RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())

		if size := c.Writer.Size(); size > 0 {
			metrics.ResponseSize.WithLabelValues(endpoint).Observe(float64(size))
		}
	}
}
