// Package queue 定义导入流水线的事件信封、主题与负载.
//
// 每条事件是一个 JSON 信封：
//
//	{
//	  "header": {"topic": "minerva.fileset.built", "trace_id": "...", "producer": "minerva-build/1.4", "occurred_at": "...", "version": "v1"},
//	  "payload": {"fileset_uuid": "...", "import_uuid": "...", "images": [...]}
//	}
//
// header 的主要字段同时写入 watermill 元数据，W3C traceparent 也随元数据传递.
// 同一事件可能被重复投递，消费者按负载中的 uuid 幂等处理.
//
//	err := queue.PublishFilesetBuilt(ctx, client, payload, queue.WithProducer("minerva-build"))
//
//	client.AddHandler("fileset-built", queue.TopicFilesetBuilt, func(m *message.Message) error {
//		env, err := queue.ParseFilesetBuilt(m)
//		...
//	})
package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
)

// PayloadVersionV1 当前负载版本，同一主版本内只增加字段.
const PayloadVersionV1 = "v1"

// 信封头写入 watermill 元数据时使用的键.
const (
	MetaTopic      = "topic"
	MetaTraceID    = "trace_id"
	MetaProducer   = "producer"
	MetaOccurredAt = "occurred_at"
	MetaVersion    = "version"
)

// ErrUnsupportedVersion 信封版本的主版本号不是 v1.
var ErrUnsupportedVersion = errors.New("unsupported event version")

// Option 调整事件头或消息.
type Option func(*draft)

type draft struct {
	header EventHeader
	id     string
}

// WithTraceID 设置关联 ID，缺省取 ctx 中的 trace id.
func WithTraceID(id string) Option { return func(d *draft) { d.header.TraceID = id } }

// WithProducer 设置生产者标识.
func WithProducer(p string) Option { return func(d *draft) { d.header.Producer = p } }

// WithMessageID 指定消息 ID. JetStream 开启 track_msg_id 时，相同 ID 在去重窗口内只投递一次.
func WithMessageID(id string) Option { return func(d *draft) { d.id = id } }

// NewEventHeader 创建事件头.
func NewEventHeader(topic string, opts ...Option) EventHeader {
	return newDraft(topic, opts).header
}

func newDraft(topic string, opts []Option) draft {
	d := draft{header: EventHeader{
		Topic:      topic,
		OccurredAt: time.Now().UTC(),
		Version:    PayloadVersionV1,
	}}

	for _, opt := range opts {
		opt(&d)
	}

	if d.id == "" {
		d.id = watermill.NewULID()
	}

	return d
}

// Encode 编码信封.
func Encode[T any](msg Message[T]) ([]byte, error) { return sonic.Marshal(msg) }

// Decode 解码信封并检查版本.
func Decode[T any](b []byte) (Message[T], error) {
	var m Message[T]
	if err := sonic.Unmarshal(b, &m); err != nil {
		return m, err
	}

	if v := m.Header.Version; v != "" && v != PayloadVersionV1 && !strings.HasPrefix(v, PayloadVersionV1+".") {
		return m, fmt.Errorf("%w: %s", ErrUnsupportedVersion, v)
	}

	return m, nil
}

// NewWatermillMessage 构造 watermill 消息，信封头同时写入元数据.
func NewWatermillMessage[T any](topic string, payload T, opts ...Option) (*message.Message, error) {
	d := newDraft(topic, opts)

	data, err := Encode(Message[T]{Header: d.header, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", topic, err)
	}

	msg := message.NewMessage(d.id, data)

	h := d.header
	for k, v := range map[string]string{
		MetaTopic:      h.Topic,
		MetaTraceID:    h.TraceID,
		MetaProducer:   h.Producer,
		MetaOccurredAt: h.OccurredAt.Format(time.RFC3339Nano),
		MetaVersion:    h.Version,
	} {
		if v != "" {
			msg.Metadata.Set(k, v)
		}
	}

	return msg, nil
}

// ParseWatermillMessage 解出泛型负载.
func ParseWatermillMessage[T any](msg *message.Message) (Message[T], error) {
	m, err := Decode[T](msg.Payload)
	if err != nil {
		return m, fmt.Errorf("decode %s message %s: %w", msg.Metadata.Get(MetaTopic), msg.UUID, err)
	}

	return m, nil
}
