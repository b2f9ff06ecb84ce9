// Package configs 管理 Minerva 服务配置，包括数据库、对象存储、KV、消息队列与渲染参数.
// configs 包支持多种配置格式（YAML、JSON、TOML、dotenv）并启用热重载.
//
// Example:
//
//	if err := configs.InitConfig("./"); err != nil {
//		log.Fatal(err)
//	}
//
//	cfg := configs.GetConfig()
//	fmt.Println(cfg.Server.Port, cfg.Render.JPEGQuality)
//
// Example accessing S3 config:
//
//	s3Config := configs.GetConfig().S3
//	fmt.Println("tile bucket:", s3Config.TileBucket)
package configs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AppVersion 应用版本，构建时可通过 -ldflags 覆盖.
var AppVersion = "0.1.0"

// EnvPrefix 环境变量前缀，例如 MINERVA_SERVER_PORT.
const EnvPrefix = "MINERVA"

type (
	// AppConfig 全局应用程序配置.
	AppConfig struct {
		Server         ServerConfig         `mapstructure:"server"`          // ServerConfig 服务器端口、调试模式等
		Log            LogConfig            `mapstructure:"log"`             // LogConfig 日志相关配置
		DB             DBConfig             `mapstructure:"db"`              // DBConfig 注册表数据库配置
		S3             S3Config             `mapstructure:"s3"`              // S3Config 原始瓦片与导入对象存储配置
		KV             KVConfig             `mapstructure:"kv"`              // KVConfig 瓦片与权限缓存配置
		MQ             MQConfig             `mapstructure:"mq"`              // MQConfig 导入流水线事件配置
		Auth           AuthConfig           `mapstructure:"auth"`            // AuthConfig Bearer 认证配置
		Render         RenderConfig         `mapstructure:"render"`          // RenderConfig 瓦片渲染配置
		Events         EventsConfig         `mapstructure:"events"`          // EventsConfig 事件开关
		Jobs           JobsConfig           `mapstructure:"jobs"`            // JobsConfig 后台任务
		Metrics        MetricsConfig        `mapstructure:"metrics"`         // MetricsConfig 监控指标配置
		Tracing        TracingConfig        `mapstructure:"tracing"`         // TracingConfig 链路追踪配置
		RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`      // RateLimitConfig 限流配置
		CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"` // CircuitBreakerConfig 熔断配置
	}
)

var (
	// globalConfig 全局配置实例.
	globalConfig AppConfig
	// appViper 全局 Viper 实例.
	appViper *viper.Viper
	// configMu 保护热重载期间的并发读写.
	configMu sync.RWMutex
)

// InitConfig 加载应用程序配置，支持多种格式(yaml、json、toml、dotenv)并启用热重载.
// path 可以是配置文件，也可以是包含 config.* 的目录；找不到配置文件时仅使用默认值与环境变量.
func InitConfig(path string) error {
	v := viper.New()
	setAllDefaults(v)

	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(path)
		v.AddConfigPath(filepath.Join(path, "configs"))

		exts := []string{"yaml", "yml", "json", "toml", "env", "dotenv"}

		for _, ext := range exts {
			cfg := filepath.Join(path, "config."+ext)
			if _, err := os.Stat(cfg); err == nil {
				v.SetConfigFile(cfg)

				break
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	configMu.Lock()
	globalConfig = cfg
	appViper = v
	configMu.Unlock()

	reloadConfigs(v, cfg.Server.ReloadConfig)

	return nil
}

// setAllDefaults 设置所有配置的默认值.
func setAllDefaults(v *viper.Viper) {
	var c AppConfig

	c.Server.setDefaults(v)
	c.Log.setDefaults(v)
	c.DB.setDefaults(v)
	c.S3.setDefaults(v)
	c.KV.setDefaults(v)
	c.MQ.setDefaults(v)
	c.Auth.setDefaults(v)
	c.Render.setDefaults(v)
	c.Events.setDefaults(v)
	c.Jobs.setDefaults(v)
	c.Metrics.setDefaults(v)
	c.Tracing.setDefaults(v)
	c.RateLimit.setDefaults(v)
	c.CircuitBreaker.setDefaults(v)
}

// Defaults 返回只包含默认值的配置，测试与 CLI 在未加载配置文件时使用.
func Defaults() AppConfig {
	v := viper.New()
	setAllDefaults(v)

	var cfg AppConfig
	_ = v.Unmarshal(&cfg)

	return cfg
}

func reloadConfigs(v *viper.Viper, isHotReload bool) {
	if !isHotReload || v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		fmt.Println("Config file changed:", e.Name)

		var cfg AppConfig
		if err := v.Unmarshal(&cfg); err != nil {
			fmt.Printf("Error reloading config: %v\n", err)

			return
		}

		if err := cfg.Validate(); err != nil {
			fmt.Printf("Rejected reloaded config: %v\n", err)

			return
		}

		configMu.Lock()
		globalConfig = cfg
		configMu.Unlock()
	})
	v.WatchConfig()
}

// GetConfig 返回全局配置实例.
func GetConfig() *AppConfig {
	configMu.RLock()
	defer configMu.RUnlock()

	return &globalConfig
}

// GetViper 返回当前使用的 viper 实例，未初始化时为 nil.
func GetViper() *viper.Viper {
	return appViper
}
