package configs

import (
	"time"

	"github.com/spf13/viper"
)

// CircuitBreakerConfig 熔断配置，同时作用于瓦片路由与对象存储读取.
// 瓦片路由把 5xx 计为失败；设置 slow_call 后超过该耗时的成功响应也计为失败.
type CircuitBreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	FailureRate float64       `mapstructure:"failure_rate" rule:"min=0,max=1"`
	MinRequests uint32        `mapstructure:"min_requests"`
	Interval    time.Duration `mapstructure:"interval"` // 闭合时计数清零周期，0 表示不清零
	OpenFor     time.Duration `mapstructure:"open_for"` // 打开状态持续时间，之后进入半开
	HalfOpenMax uint32        `mapstructure:"half_open_max"`
	SlowCall    time.Duration `mapstructure:"slow_call"`
}

// Trips 判断窗口内的计数是否达到熔断条件，关闭时永不熔断.
func (c CircuitBreakerConfig) Trips(requests, failures uint32) bool {
	if !c.Enabled || requests == 0 || requests < c.MinRequests {
		return false
	}

	return float64(failures)/float64(requests) >= c.FailureRate
}

// RetryAfterSeconds 返回打开状态下建议客户端等待的秒数，至少为 1.
func (c CircuitBreakerConfig) RetryAfterSeconds() int {
	return max(int(c.OpenFor.Round(time.Second)/time.Second), 1)
}

func (c *CircuitBreakerConfig) setDefaults(v *viper.Viper) {
	for k, val := range map[string]any{
		"enabled":       false,
		"failure_rate":  0.5,
		"min_requests":  20,
		"interval":      time.Minute,
		"open_for":      30 * time.Second,
		"half_open_max": 5,
		"slow_call":     time.Duration(0),
	} {
		v.SetDefault("circuit_breaker."+k, val)
	}
}
