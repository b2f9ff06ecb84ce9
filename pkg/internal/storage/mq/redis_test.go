package mq

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

// TestStreamValues 测试消息写入 stream 字段后可还原.
func TestStreamValues(t *testing.T) {
	msg := message.NewMessage("msg-1", []byte(`{"fileset_uuid":"fs-1"}`))
	msg.Metadata.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	values, err := streamValues(msg)
	if err != nil {
		t.Fatal(err)
	}

	got := fromStream(redis.XMessage{ID: "1-0", Values: values})
	if got.UUID != "msg-1" || string(got.Payload) != string(msg.Payload) {
		t.Fatalf("message = %s %s", got.UUID, got.Payload)
	}

	if got.Metadata.Get("traceparent") != msg.Metadata.Get("traceparent") {
		t.Fatalf("metadata = %v", got.Metadata)
	}
}

// TestFromStreamForeignEntry 测试其他生产者写入的条目以 stream id 作为消息 ID.
func TestFromStreamForeignEntry(t *testing.T) {
	got := fromStream(redis.XMessage{ID: "1700000000000-3", Values: map[string]any{"payload": "raw", "metadata": "{bad"}})

	if got.UUID != "1700000000000-3" || string(got.Payload) != "raw" || len(got.Metadata) != 0 {
		t.Fatalf("message = %s %q %v", got.UUID, got.Payload, got.Metadata)
	}
}
