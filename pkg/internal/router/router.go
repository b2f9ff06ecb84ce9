// Package router 将 HTTP 路径绑定到 handle 包中的处理器.
package router

import (
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	appcache "github.com/yeisme/minerva/pkg/cache"
	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/internal/handle"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/middleware"
)

// Options 路由级中间件的配置.
type Options struct {
	// ResponseCache 为空时元数据与维度不做响应缓存.
	ResponseCache *appcache.Cache
	CacheTTL      time.Duration

	// CircuitBreaker 作用于所有瓦片渲染路由.
	CircuitBreaker configs.CircuitBreakerConfig

	// RateLimit 的 tile_* 字段只用于瓦片路由，两组路由的令牌桶互不影响.
	RateLimit configs.RateLimitConfig
}

// Register 绑定仓库、授权、导入、图像与瓦片路由.
//
// JSON 与 XML 响应经过 gzip 压缩，瓦片已是压缩格式因此不再压缩.
func Register(r gin.IRouter, opts Options) {
	gz := gzip.Gzip(gzip.DefaultCompression)
	limit := middleware.RateLimitMiddleware(opts.RateLimit)

	RegisterRepositoryRoutes(r.Group("", limit, gz))
	RegisterImportRoutes(r.Group("", limit, gz))
	RegisterImageRoutes(r.Group("", limit, gz), opts)
	RegisterTileRoutes(r, opts)
}

// RegisterRepositoryRoutes 注册仓库、授权、组与成员路由.
func RegisterRepositoryRoutes(r gin.IRouter) {
	repos := r.Group("/repository")
	{
		repos.GET("", handle.ListRepositories)
		repos.POST("", handle.CreateRepository)
		repos.GET("/:uuid", handle.GetRepository)
		repos.PUT("/:uuid", handle.UpdateRepository)
		repos.DELETE("/:uuid", handle.DeleteRepository)
		repos.GET("/:uuid/images", handle.ListRepositoryImages)
		repos.GET("/:uuid/imports", handle.ListRepositoryImports)
		repos.GET("/:uuid/grants", handle.ListRepositoryGrants)
		repos.GET("/:uuid/stats", handle.RepositoryStats)
	}

	grants := r.Group("/grant")
	{
		grants.POST("", handle.CreateGrant)
		grants.DELETE("/:repository_uuid/:subject_uuid", handle.DeleteGrant)
	}

	groups := r.Group("/group")
	{
		groups.GET("", handle.ListGroups)
		groups.POST("", handle.CreateGroup)
		groups.GET("/:uuid", handle.GetGroup)
	}

	memberships := r.Group("/membership/:group_uuid/:subject_uuid")
	{
		memberships.POST("", handle.CreateMembership)
		memberships.GET("", handle.GetMembership)
		memberships.PUT("", handle.UpdateMembership)
		memberships.DELETE("", handle.DeleteMembership)
	}
}

// RegisterImportRoutes 注册导入与 fileset 路由.
func RegisterImportRoutes(r gin.IRouter) {
	imports := r.Group("/import")
	{
		imports.POST("", handle.CreateImport)
		imports.GET("/:uuid", handle.GetImport)
		imports.PUT("/:uuid", handle.UpdateImport)
		imports.GET("/:uuid/credentials", handle.ImportCredentials)
		imports.GET("/:uuid/filesets", handle.ListImportFilesets)
		imports.GET("/:uuid/keys", handle.ListImportKeys)
	}

	filesets := r.Group("/fileset")
	{
		filesets.GET("/:uuid", handle.GetFileset)
		filesets.GET("/:uuid/images", handle.ListFilesetImages)
		filesets.GET("/:uuid/keys", handle.ListFilesetKeys)
	}
}

// RegisterImageRoutes 注册图像、元数据与渲染设置路由.
func RegisterImageRoutes(r gin.IRouter, opts Options) {
	// 删除与恢复会改变元数据的可见性，成功后清理该图像的缓存响应.
	invalidate := middleware.CacheInvalidateMiddleware(opts.ResponseCache)

	images := r.Group("/image")
	{
		images.POST("", handle.CreateImage)
		images.GET("/:uuid", handle.GetImage)
		images.GET("/:uuid/credentials", handle.ImageCredentials)
		images.DELETE("/:uuid", invalidate, handle.DeleteImage)
		images.POST("/:uuid/restore", invalidate, handle.RestoreImage)
		images.GET("/:uuid/rendering_settings", handle.ListRenderingSettings)
		images.POST("/:uuid/rendering_settings", handle.SaveRenderingSettings)
		images.GET("/:uuid/autosettings/:channels", handle.AutoSettings)
	}

	// OME-XML 在导入后不再变化，按主体缓存；命中缓存前仍检查权限，撤销授权立即生效.
	described := images.Group("", handle.RequireImage(model.PermissionRead))
	if opts.ResponseCache != nil {
		cfg := middleware.DefaultCacheConfig(opts.ResponseCache)
		if opts.CacheTTL > 0 {
			cfg.TTL = opts.CacheTTL
		}

		described.Use(middleware.CacheMiddleware(cfg))
	}

	described.GET("/:uuid/metadata", handle.ImageMetadata)
	described.GET("/:uuid/dimensions", handle.ImageDimensions)
}

// RegisterTileRoutes 注册瓦片路由，channels 为通配段以容纳多组通道参数.
func RegisterTileRoutes(r gin.IRouter, opts Options) {
	tiles := r.Group("/image/:uuid",
		middleware.RateLimitMiddleware(opts.RateLimit.ForTiles()),
		middleware.CircuitBreakerMiddleware("render", opts.CircuitBreaker),
	)
	{
		tiles.GET("/render-tile/:x/:y/:z/:t/:level/*channels", handle.RenderTile)
		tiles.GET("/prerendered-tile/:x/:y/:z/:t/:level/:rs_uuid", handle.PrerenderedTile)
		tiles.GET("/raw-tile/:x/:y/:z/:t/:level/:channel", handle.RawTile)
		tiles.GET("/omero-render-tile/:z/:t", handle.OmeroRenderTile)
		tiles.GET("/render-region/:x/:y/:width/:height/:z/:t/*channels", handle.RenderRegion)
	}
}
