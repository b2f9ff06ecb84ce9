package configs

import (
	"time"

	"github.com/spf13/viper"
)

// Exporter 追踪数据导出方式.
type Exporter string

const (
	ExporterOTLPHTTP Exporter = "otlp-http"
	ExporterOTLPGRPC Exporter = "otlp-grpc"
	ExporterZipkin   Exporter = "zipkin"
)

// TracingConfig OpenTelemetry 追踪配置.
// 未启用时仍按 W3C traceparent 传播上下文，只是不导出 span.
type TracingConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	ServiceName    string   `mapstructure:"service_name"    rule:"required_if=Enabled true"`
	ServiceVersion string   `mapstructure:"service_version"` // 为空时使用构建版本
	ExporterType   Exporter `mapstructure:"exporter_type"   rule:"omitempty,oneof=otlp-http otlp-grpc zipkin"`
	Endpoint       string   `mapstructure:"endpoint"`
	// Insecure 只对 otlp-grpc 生效，otlp-http 以 endpoint 的 scheme 为准
	Insecure bool              `mapstructure:"insecure"`
	Headers  map[string]string `mapstructure:"headers"` // OTLP 请求头，如鉴权 token

	// SampleRate 根 span 采样率，上游已采样的请求沿用上游决定
	SampleRate     float64           `mapstructure:"sample_rate"    rule:"min=0,max=1"`
	BatchTimeout   time.Duration     `mapstructure:"batch_timeout"`
	MaxBatchSize   int               `mapstructure:"max_batch_size" rule:"min=0"`
	MaxQueueSize   int               `mapstructure:"max_queue_size" rule:"min=0"`
	ResourceLabels map[string]string `mapstructure:"resource_labels"`
}

func (c *TracingConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "minerva")
	v.SetDefault("tracing.exporter_type", string(ExporterOTLPHTTP))
	v.SetDefault("tracing.endpoint", "http://localhost:4318")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.batch_timeout", 5*time.Second)
	v.SetDefault("tracing.max_batch_size", 512)
	v.SetDefault("tracing.max_queue_size", 2048)
}
