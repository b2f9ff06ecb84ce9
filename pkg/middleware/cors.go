package middleware

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/configs"
)

const corsMaxAge = 12 * time.Hour

// CORSMiddleware 允许浏览器端查看器跨域取瓦片.
// 未配置来源、配置了 * 或调试模式下放开全部来源；显式列出的来源可带 Cookie，且支持 https://*.example.org 形式.
func CORSMiddleware(cfg configs.ServerConfig) gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", "If-None-Match", RequestIDHeader, bypassHeader},
		ExposeHeaders: []string{
			"ETag", "X-Cache", "Retry-After", "Content-Length", RequestIDHeader,
		},
		MaxAge: corsMaxAge,
	}

	if cfg.Debug || len(cfg.CORSOrigins) == 0 || slices.Contains(cfg.CORSOrigins, "*") {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = cfg.CORSOrigins
		conf.AllowCredentials = true
		conf.AllowWildcard = slices.ContainsFunc(cfg.CORSOrigins, func(o string) bool {
			return strings.Contains(o, "*")
		})
	}

	return cors.New(conf)
}
