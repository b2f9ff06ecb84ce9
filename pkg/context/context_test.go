package context_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	ctxPkg "github.com/yeisme/minerva/pkg/context"
)

// TestLoggerFields 测试 logger 带上请求关联字段.
func TestLoggerFields(t *testing.T) {
	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")

	// 未采样的远端 span 也要记录
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid, SpanID: sid, Remote: true,
	}))
	ctx = ctxPkg.WithRequestID(ctx, "req-1")
	ctx = ctxPkg.WithSubject(ctx, "user-1")

	var buf bytes.Buffer

	l := ctxPkg.Logger(ctx, zerolog.New(&buf))
	l.Info().Msg("x")

	for _, want := range []string{`"request_id":"req-1"`, `"subject":"user-1"`, `"trace_id":"` + tid.String() + `"`, `"span_id":"00f067aa0ba902b7"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("missing %s in %s", want, buf.String())
		}
	}
}

// TestEmptyContext 测试空 context 不附加字段且存储客户端为 nil.
func TestEmptyContext(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer

	l := ctxPkg.Logger(ctx, zerolog.New(&buf))
	l.Info().Msg("x")

	if buf.String() != `{"level":"info","message":"x"}`+"\n" {
		t.Fatalf("output = %s", buf.String())
	}

	if ctxPkg.GetDBClient(ctx) != nil || ctxPkg.GetTileKVClient(ctx) != nil || ctxPkg.GetSubject(ctx) != "" {
		t.Fatal("expected zero values")
	}

	if ctxPkg.GetS3Client(ctxPkg.WithStorageManager(ctx, nil)) != nil {
		t.Fatal("nil manager should yield nil client")
	}
}
