package configs

import (
	"net"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPort = 8080
	DefaultHost = "0.0.0.0"

	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 2 * time.Minute
	DefaultShutdownTimeout   = 15 * time.Second
	// 元数据在导入后不变，短 TTL 只用于吸收查看器打开图像时的并发请求.
	DefaultResponseCacheTTL = 30 * time.Second
)

// ServerConfig HTTP 服务配置.
type ServerConfig struct {
	Port         int    `mapstructure:"port"          rule:"min=1,max=65535"`
	Host         string `mapstructure:"host"          rule:"ip"`
	ReloadConfig bool   `mapstructure:"reload_config"`
	Debug        bool   `mapstructure:"debug"` // gin 调试模式与 Swagger

	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	// WriteTimeout 为 0 表示不限制，大区域渲染可能持续数十秒
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	CORSOrigins []string `mapstructure:"cors_origins"`
	// ResponseCacheTTL 为 0 时关闭元数据响应缓存
	ResponseCacheTTL time.Duration `mapstructure:"response_cache_ttl" rule:"min=0,max=1h"`
}

// GetResponseCacheTTL 返回元数据响应缓存时间.
func (s *ServerConfig) GetResponseCacheTTL() time.Duration {
	return s.ResponseCacheTTL
}

// GetShutdownTimeout 返回优雅退出的等待时间.
func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	if s.ShutdownTimeout <= 0 {
		return DefaultShutdownTimeout
	}

	return s.ShutdownTimeout
}

// Addr 返回监听地址，IPv6 地址带方括号.
func (s *ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s *ServerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.reload_config", true)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.read_header_timeout", DefaultReadHeaderTimeout)
	v.SetDefault("server.idle_timeout", DefaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.response_cache_ttl", DefaultResponseCacheTTL)
}
