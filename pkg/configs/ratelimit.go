package configs

import "github.com/spf13/viper"

const (
	DefaultRateLimitEnabled = false
	DefaultRateLimitRPS     = 50.0
	DefaultRateLimitBurst   = 100
	DefaultRateLimitKey     = "subject"

	// 查看器平移缩放时一次会请求数十个瓦片.
	DefaultTileRateLimitRPS   = 400.0
	DefaultTileRateLimitBurst = 800
)

// RateLimitConfig 令牌桶限流配置，瓦片路由与其余 API 各用一组桶.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"   rule:"min=0"` // 每秒允许的请求数
	Burst   int     `mapstructure:"burst" rule:"min=0"` // 突发容量
	// Key 选择限流维度：global、ip、subject（匿名退回 IP）、header:Header-Name
	Key string `mapstructure:"key"`

	TileRPS   float64 `mapstructure:"tile_rps"   rule:"min=0"` // 瓦片路由的速率，0 表示沿用 rps
	TileBurst int     `mapstructure:"tile_burst" rule:"min=0"` // 瓦片路由的突发容量，0 表示沿用 burst
}

// ForTiles 返回瓦片路由使用的限流配置.
func (c RateLimitConfig) ForTiles() RateLimitConfig {
	if c.TileRPS > 0 {
		c.RPS = c.TileRPS
	}

	if c.TileBurst > 0 {
		c.Burst = c.TileBurst
	}

	return c
}

func (c *RateLimitConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("rate_limit.enabled", DefaultRateLimitEnabled)
	v.SetDefault("rate_limit.rps", DefaultRateLimitRPS)
	v.SetDefault("rate_limit.burst", DefaultRateLimitBurst)
	v.SetDefault("rate_limit.key", DefaultRateLimitKey)
	v.SetDefault("rate_limit.tile_rps", DefaultTileRateLimitRPS)
	v.SetDefault("rate_limit.tile_burst", DefaultTileRateLimitBurst)
}
