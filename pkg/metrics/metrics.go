// Package metrics 提供 Prometheus 指标：HTTP 请求、瓦片渲染、对象存储读取、导入积压与后台任务.
//
// Example:
//
//	if err := metrics.InitMetrics(config.Metrics); err != nil {
//		log.Fatal(err)
//	}
//
//	metrics.TileRequests.WithLabelValues("render", "ok").Inc()
package metrics

import (
	"errors"
	"net/http"
	_ "net/http/pprof" // 注册 pprof 端点到 DefaultServeMux

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeisme/minerva/pkg/configs"
)

const namespace = "minerva"

var (
	// RequestCounter HTTP 请求计数，endpoint 为路由模板.
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration HTTP 请求耗时.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// RequestsInFlight 正在处理的请求数.
	RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served",
		},
	)

	// ResponseSize 响应体字节数，瓦片与区域渲染的大小差异很大.
	ResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response body size in bytes",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"endpoint"},
	)

	// TileRequests 瓦片请求计数，kind 为 render/prerendered/raw/omero/region，result 为 hit/miss/error.
	TileRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_requests_total",
			Help:      "Tile requests by kind and cache result",
		},
		[]string{"kind", "result"},
	)

	// ObjectReads 对象存储读取计数，result 为 ok/not_found/error.
	ObjectReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "object_reads_total",
			Help:      "Object store reads by result",
		},
		[]string{"result"},
	)

	// IncompleteImports 超过阈值仍未完成的导入数.
	IncompleteImports = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "incomplete_imports",
			Help:      "Imports left incomplete past the report threshold",
		},
	)

	// JobRuns 后台任务执行次数，result 为 ok 或 error.
	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Background job executions by outcome",
		},
		[]string{"job", "result"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Background job execution time",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"job"},
	)

	registry = prometheus.NewRegistry()
)

// InitMetrics 注册指标，未启用时不做任何事.
// 常量标签通过包装注册器附加，不改变指标定义.
func InitMetrics(config configs.MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	reg := prometheus.WrapRegistererWith(prometheus.Labels(config.Labels), registry)

	// 运行时与进程指标由默认注册表提供，StartMetricsServer 会合并输出
	if !config.RuntimeMetrics {
		prometheus.Unregister(collectors.NewGoCollector())
		prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	for _, c := range []prometheus.Collector{RequestCounter, RequestDuration, RequestsInFlight, ResponseSize, TileRequests, ObjectReads, IncompleteImports, JobRuns, JobDuration} {
		if err := register(reg, c); err != nil {
			return err
		}
	}

	return nil
}

// register 忽略重复注册，便于测试与重复初始化.
func register(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}

		return err
	}

	return nil
}

// StartMetricsServer 在给定引擎上暴露指标与可选的 pprof.
// 运行时指标与 GORM 插件注册在默认注册表，这里一并输出.
func StartMetricsServer(config configs.MetricsConfig, debugEngine *gin.Engine) error {
	if !config.Enabled {
		return nil
	}

	path := config.Path
	if path == "" {
		path = "/metrics"
	}

	gatherers := prometheus.Gatherers{registry, prometheus.DefaultGatherer}
	debugEngine.GET(path, gin.WrapH(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})))

	if config.Pprof {
		debugEngine.GET("/debug/pprof/*any", gin.WrapH(http.DefaultServeMux))
	}

	return nil
}

// GetRegistry 获取 Prometheus 注册表.
func GetRegistry() *prometheus.Registry {
	return registry
}
