package queue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/minerva/pkg/queue"
)

type recordingPublisher struct {
	topics []string
	msgs   []*message.Message
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	for _, m := range msgs {
		r.topics = append(r.topics, topic)
		r.msgs = append(r.msgs, m)
	}

	return nil
}

// TestPublishImportCompleted 测试导入完成事件的信封与元数据.
func TestPublishImportCompleted(t *testing.T) {
	pub := &recordingPublisher{}

	payload := queue.ImportCompletedPayload{ImportUUID: "imp-1", RepositoryUUID: "repo-1", Name: "batch"}
	if err := queue.PublishImportCompleted(context.Background(), pub, payload, queue.WithTraceID("trace-1")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(pub.msgs) != 1 || pub.topics[0] != queue.TopicImportCompleted {
		t.Fatalf("published %v", pub.topics)
	}

	msg := pub.msgs[0]
	if msg.Metadata.Get("trace_id") != "trace-1" || msg.Metadata.Get("topic") != queue.TopicImportCompleted {
		t.Fatalf("metadata = %v", msg.Metadata)
	}

	env, err := queue.ParseImportCompleted(msg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if env.Payload != payload || env.Header.Version != queue.PayloadVersionV1 {
		t.Fatalf("envelope = %+v", env)
	}
}

// TestParseFilesetBuiltRejectsGarbage 测试无法解析的负载.
func TestParseFilesetBuiltRejectsGarbage(t *testing.T) {
	msg := message.NewMessage("id", []byte("not json"))
	if _, err := queue.ParseFilesetBuilt(msg); err == nil {
		t.Fatal("expected decode error")
	}
}

// TestPublishPropagatesTrace 测试发布时把当前 span 写入元数据.
func TestPublishPropagatesTrace(t *testing.T) {
	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled,
	}))

	pub := &recordingPublisher{}
	payload := queue.FilesetBuiltPayload{FilesetUUID: "fs-1", ImportUUID: "imp-1"}

	if err := queue.PublishFilesetBuilt(ctx, pub, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	md := pub.msgs[0].Metadata
	if md.Get("trace_id") != tid.String() {
		t.Fatalf("trace_id = %q", md.Get("trace_id"))
	}

	if md.Get("traceparent") != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Fatalf("traceparent = %q", md.Get("traceparent"))
	}
}

// TestMessageID 测试默认 ID 唯一且可被覆盖.
func TestMessageID(t *testing.T) {
	a, _ := queue.NewWatermillMessage(queue.TopicImportCompleted, queue.ImportCompletedPayload{ImportUUID: "imp-1"})
	b, _ := queue.NewWatermillMessage(queue.TopicImportCompleted, queue.ImportCompletedPayload{ImportUUID: "imp-1"})

	if a.UUID == "" || a.UUID == b.UUID {
		t.Fatalf("ids = %q %q", a.UUID, b.UUID)
	}

	fixed, _ := queue.NewWatermillMessage(queue.TopicImportCompleted, queue.ImportCompletedPayload{}, queue.WithMessageID("imp-1.completed"))
	if fixed.UUID != "imp-1.completed" {
		t.Fatalf("id = %q", fixed.UUID)
	}

	if fixed.Metadata.Get(queue.MetaProducer) != "" {
		t.Fatalf("empty producer should not be set: %v", fixed.Metadata)
	}
}

// TestParseRejectsNewerVersion 测试未知主版本被拒绝，同主版本的小版本可读.
func TestParseRejectsNewerVersion(t *testing.T) {
	v2 := message.NewMessage("id", []byte(`{"header":{"topic":"minerva.fileset.built","version":"v2"},"payload":{}}`))
	if _, err := queue.ParseFilesetBuilt(v2); !errors.Is(err, queue.ErrUnsupportedVersion) {
		t.Fatalf("err = %v", err)
	}

	minor := message.NewMessage("id", []byte(`{"header":{"version":"v1.1"},"payload":{"fileset_uuid":"fs-1","extra":true}}`))

	env, err := queue.ParseFilesetBuilt(minor)
	if err != nil || env.Payload.FilesetUUID != "fs-1" {
		t.Fatalf("env = %+v, %v", env, err)
	}
}
