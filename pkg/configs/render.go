package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultJPEGQuality          = 85               // JPEG 输出质量
	DefaultTileSize             = 1024             // 新建图像的默认瓦片边长
	DefaultFetchTimeout         = 10 * time.Second // 单次原始瓦片读取超时
	DefaultFetchRetries         = 3                // 原始瓦片读取重试次数
	DefaultRawCacheTTL          = 10 * time.Minute // 原始瓦片缓存时长
	DefaultPrerenderedCacheTTL  = 0                // 预渲染瓦片缓存时长，0 表示不过期
	DefaultMaxRegionOutputPixel = 4096             // 区域渲染的最大输出边长
	DefaultPermissionCacheTTL   = 300 * time.Second
)

// RenderConfig 瓦片渲染配置.
type RenderConfig struct {
	JPEGQuality         int           `mapstructure:"jpeg_quality"          rule:"min=1,max=100"`
	DefaultTileSize     int           `mapstructure:"default_tile_size"     rule:"min=16,max=8192"`
	FetchTimeout        time.Duration `mapstructure:"fetch_timeout"`
	FetchRetries        uint          `mapstructure:"fetch_retries"         rule:"min=1,max=10"`
	RawCacheTTL         time.Duration `mapstructure:"raw_cache_ttl"`
	PrerenderedCacheTTL time.Duration `mapstructure:"prerendered_cache_ttl"`
	CacheInlineRenders  bool          `mapstructure:"cache_inline_renders"` // 同时缓存 render-tile 的结果
	MaxRegionOutput     int           `mapstructure:"max_region_output"     rule:"min=1"`
	PermissionCacheTTL  time.Duration `mapstructure:"permission_cache_ttl"`
}

func (c *RenderConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("render.jpeg_quality", DefaultJPEGQuality)
	v.SetDefault("render.default_tile_size", DefaultTileSize)
	v.SetDefault("render.fetch_timeout", DefaultFetchTimeout)
	v.SetDefault("render.fetch_retries", DefaultFetchRetries)
	v.SetDefault("render.raw_cache_ttl", DefaultRawCacheTTL)
	v.SetDefault("render.prerendered_cache_ttl", DefaultPrerenderedCacheTTL)
	v.SetDefault("render.cache_inline_renders", true)
	v.SetDefault("render.max_region_output", DefaultMaxRegionOutputPixel)
	v.SetDefault("render.permission_cache_ttl", DefaultPermissionCacheTTL)
}
