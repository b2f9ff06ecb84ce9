package queue

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/minerva/pkg/tracing"
)

// Publisher 是发布事件所需的最小接口，mq.Client 满足该接口.
type Publisher interface {
	Publish(ctx context.Context, topic string, msgs ...*message.Message) error
}

// PublishImportCompleted 发布 minerva.import.completed 事件.
func PublishImportCompleted(ctx context.Context, pub Publisher, payload ImportCompletedPayload, opts ...Option) error {
	return publish(ctx, pub, TopicImportCompleted, payload, opts)
}

// PublishFilesetBuilt 发布 minerva.fileset.built 事件.
func PublishFilesetBuilt(ctx context.Context, pub Publisher, payload FilesetBuiltPayload, opts ...Option) error {
	return publish(ctx, pub, TopicFilesetBuilt, payload, opts)
}

// publish 封装信封并把 ctx 的追踪上下文写入消息元数据，调用方未指定 TraceID 时取当前 span.
func publish[T any](ctx context.Context, pub Publisher, topic string, payload T, opts []Option) error {
	if id := tracing.TraceID(ctx); id != "" {
		opts = append([]Option{WithTraceID(id)}, opts...)
	}

	msg, err := NewWatermillMessage(topic, payload, opts...)
	if err != nil {
		return err
	}

	tracing.Inject(ctx, msg.Metadata)

	return pub.Publish(ctx, topic, msg)
}

// ParseImportCompleted 将 Watermill 消息解析为强类型 Envelope.
func ParseImportCompleted(msg *message.Message) (Message[ImportCompletedPayload], error) {
	return ParseWatermillMessage[ImportCompletedPayload](msg)
}

// ParseFilesetBuilt 将 Watermill 消息解析为强类型 Envelope.
func ParseFilesetBuilt(msg *message.Message) (Message[FilesetBuiltPayload], error) {
	return ParseWatermillMessage[FilesetBuiltPayload](msg)
}
