// Package api 汇总 Minerva 对外暴露的 HTTP 接口.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/internal/router"
)

// RegisterGroup 注册业务路由、/api/v1 下的运维路由与调试模式下的 Swagger.
func RegisterGroup(e *gin.Engine, server configs.ServerConfig, opts router.Options) *gin.Engine {
	router.Register(e, opts)

	v1 := e.Group("/api/v1")
	router.RegisterHealthCheckRoute(v1)
	router.RegisterSchedulerRoutes(v1)

	router.RegisterSwaggerRoute(e, server)

	return e
}
