// Package context 在 context.Context 上携带请求主体、请求 id 与存储管理器，
// 并据此生成带关联字段的 logger.
package context

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/minerva/pkg/internal/storage"
	dbc "github.com/yeisme/minerva/pkg/internal/storage/db"
	kvc "github.com/yeisme/minerva/pkg/internal/storage/kv"
	mqc "github.com/yeisme/minerva/pkg/internal/storage/mq"
	s3c "github.com/yeisme/minerva/pkg/internal/storage/s3"
)

type ctxKey int

const (
	managerKey ctxKey = iota
	subjectKey
	requestIDKey
)

// SubjectKey 是主体在 gin.Context 上的键，供模板与其他中间件读取.
const SubjectKey = "subject"

// WithSubject 将已认证的主体 uuid 存入 context.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// GetSubject 返回已认证的主体，匿名请求为空字符串.
func GetSubject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey).(string)

	return s
}

// WithRequestID 将请求 id 存入 context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID 返回请求 id.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)

	return id
}

// WithStorageManager 将 Manager 存储到 context 中.
func WithStorageManager(ctx context.Context, mgr *storage.Manager) context.Context {
	return context.WithValue(ctx, managerKey, mgr)
}

func fromManager[T any](ctx context.Context, get func(*storage.Manager) T) T {
	if mgr, ok := ctx.Value(managerKey).(*storage.Manager); ok && mgr != nil {
		return get(mgr)
	}

	var zero T

	return zero
}

// GetS3Client 返回对象存储客户端，未注入时为 nil.
func GetS3Client(ctx context.Context) *s3c.Client {
	return fromManager(ctx, (*storage.Manager).GetS3Client)
}

// GetDBClient 返回注册表数据库客户端.
func GetDBClient(ctx context.Context) *dbc.Client {
	return fromManager(ctx, (*storage.Manager).GetDBClient)
}

// GetMQClient 返回消息队列客户端.
func GetMQClient(ctx context.Context) *mqc.Client {
	return fromManager(ctx, (*storage.Manager).GetMQClient)
}

// GetTileKVClient 返回瓦片缓存.
func GetTileKVClient(ctx context.Context) *kvc.Client {
	return fromManager(ctx, (*storage.Manager).GetTileKVClient)
}

// GetKVClient 返回通用缓存.
func GetKVClient(ctx context.Context) *kvc.Client {
	return fromManager(ctx, (*storage.Manager).GetKVClient)
}

// Logger 在 base 上附加 request_id、subject 与 trace_id/span_id.
// 上游传入但本地未采样的 span 同样记录 trace_id，便于与调用方日志对照.
func Logger(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	lc := base.With()

	if id := GetRequestID(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}

	if sub := GetSubject(ctx); sub != "" {
		lc = lc.Str("subject", sub)
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		lc = lc.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}

	return lc.Logger()
}
