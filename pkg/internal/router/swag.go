package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/yeisme/minerva/docs"
	"github.com/yeisme/minerva/pkg/configs"
)

// RegisterSwaggerRoute 调试模式下注册 Swagger 文档路由，文档由 swag init -g cmd/minerva/main.go 生成.
func RegisterSwaggerRoute(r gin.IRouter, cfg configs.ServerConfig) {
	if !cfg.Debug {
		return
	}

	docs.SwaggerInfo.Host = cfg.Addr()
	docs.SwaggerInfo.Version = configs.AppVersion

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
