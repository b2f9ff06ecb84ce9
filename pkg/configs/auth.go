package configs

import "github.com/spf13/viper"

// AuthConfig 控制请求身份的提取.
// 支持 Authorization: Bearer <jwt>（HS256 共享密钥校验，subject 取自 sub 声明），
// 也兼容 oauth2-proxy 注入的 X-Forwarded-User 请求头.
type AuthConfig struct {
	Enabled          bool     `mapstructure:"enabled"`            // 开启认证校验，关闭时所有请求均无主体
	JWTSecret        string   `mapstructure:"jwt_secret"`         // HS256 共享密钥
	Issuer           string   `mapstructure:"issuer"`             // 期望的 iss，为空时不校验
	Audience         string   `mapstructure:"audience"`           // 期望的 aud，为空时不校验
	TrustProxyHeader bool     `mapstructure:"trust_proxy_header"` // 信任 oauth2-proxy 请求头
	SkipPaths        []string `mapstructure:"skip_paths"`         // 跳过认证的路径前缀
	DevAllowQuery    bool     `mapstructure:"dev_allow_query"`    // 调试模式允许用 ?user= 指定主体
}

func (c *AuthConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.trust_proxy_header", false)
	v.SetDefault("auth.dev_allow_query", false)
	v.SetDefault("auth.skip_paths", []string{
		"/metrics",
		"/debug/pprof",
		"/api/v1/health",
		"/swagger",
	})
}
