package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/internal/handle"
)

// RegisterHealthCheckRoute 注册存活、就绪与单组件检查.
// 存活检查不触达依赖，供编排系统频繁探测；就绪检查并发探测全部依赖.
func RegisterHealthCheckRoute(g gin.IRouter) {
	health := g.Group("/health")
	{
		health.GET("/live", handle.HealthLive)
		health.GET("/ready", handle.HealthReady)

		health.GET("/db", handle.HealthDB)
		health.GET("/s3", handle.HealthS3)
		health.GET("/mq", handle.HealthMQ)
		health.GET("/kv", handle.HealthKV)
	}
}
