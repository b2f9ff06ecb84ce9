// Package tracing 提供基于 OpenTelemetry 的分布式追踪.
// 支持 OTLP(HTTP/gRPC) 与 Zipkin 导出，使用 W3C traceparent 在 HTTP 请求头与事件元数据之间传播上下文.
//
// Example:
//
//	if err := tracing.InitTracer(cfg.Tracing); err != nil {
//		log.Fatal(err)
//	}
//	defer tracing.ShutdownTracer(ctx)
//
//	ctx, span := tracing.StartSpan(ctx, "render_tile")
//	defer span.End()
//
//	// 发布事件前写入元数据，消费端再取出
//	tracing.Inject(ctx, msg.Metadata)
//	ctx = tracing.Extract(msg.Context(), msg.Metadata)
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/minerva/pkg/configs"
)

const instrumentationName = "github.com/yeisme/minerva"

// tracerProvider 全局TracerProvider.
var tracerProvider *sdktrace.TracerProvider

func init() {
	// 未启用导出时同样传播上下文，上游的 trace id 仍能进入日志与事件
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// InitTracer 初始化Tracer，未启用时只保留上下文传播.
func InitTracer(config configs.TracingConfig) error {
	if !config.Enabled {
		return nil
	}

	version := config.ServiceVersion
	if version == "" {
		version = configs.AppVersion
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(config.ServiceName),
		semconv.ServiceVersionKey.String(version),
	}
	for k, v := range config.ResourceLabels {
		attrs = append(attrs, attribute.String(k, v))
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := newExporter(config)
	if err != nil {
		return err
	}

	var batch []sdktrace.BatchSpanProcessorOption
	if config.BatchTimeout > 0 {
		batch = append(batch, sdktrace.WithBatchTimeout(config.BatchTimeout))
	}

	if config.MaxBatchSize > 0 {
		batch = append(batch, sdktrace.WithMaxExportBatchSize(config.MaxBatchSize))
	}

	if config.MaxQueueSize > 0 {
		batch = append(batch, sdktrace.WithMaxQueueSize(config.MaxQueueSize))
	}

	// 上游已采样的请求保持采样，根 span 按比例采样
	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batch...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SampleRate))),
	)

	otel.SetTracerProvider(tracerProvider)

	return nil
}

func newExporter(config configs.TracingConfig) (sdktrace.SpanExporter, error) {
	ctx := context.Background()

	var (
		exp sdktrace.SpanExporter
		err error
	)

	switch config.ExporterType {
	case configs.ExporterOTLPHTTP:
		exp, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(config.Endpoint),
			otlptracehttp.WithHeaders(config.Headers),
		)
	case configs.ExporterOTLPGRPC:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(config.Endpoint),
			otlptracegrpc.WithHeaders(config.Headers),
		}
		if config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}

		exp, err = otlptracegrpc.New(ctx, opts...)
	case configs.ExporterZipkin:
		exp, err = zipkin.New(config.Endpoint)
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", config.ExporterType)
	}

	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", config.ExporterType, err)
	}

	return exp, nil
}

// ShutdownTracer 刷新并关闭Tracer.
func ShutdownTracer(ctx context.Context) error {
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}

	return nil
}

// StartSpan 开始一个新的Span
// 关闭时调用 span.End().
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, spanName, opts...)
}

// GetTracer 获取Tracer.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// TraceID 返回 ctx 中的 trace id，没有有效 span 时为空.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}

	return sc.TraceID().String()
}

// Inject 把 ctx 中的追踪上下文写入 carrier，watermill 的 message.Metadata 可直接传入.
func Inject(ctx context.Context, carrier map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(carrier))
}

// Extract 从 carrier 取出追踪上下文并挂到 ctx 上.
func Extract(ctx context.Context, carrier map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(carrier))
}

// ExtractHTTP 从 HTTP 请求头取出上游的追踪上下文.
func ExtractHTTP(ctx context.Context, header map[string][]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
}
