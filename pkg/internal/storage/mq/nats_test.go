package mq

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/yeisme/minerva/pkg/configs"
)

// TestJetStreamConfig 测试重投递参数转换为消费者选项.
func TestJetStreamConfig(t *testing.T) {
	n := configs.Defaults().MQ.NATS

	js := jetStreamConfig(n)
	if js.Disabled || !js.AutoProvision || js.DurablePrefix != "minerva" {
		t.Fatalf("config = %+v", js)
	}

	if len(js.SubscribeOptions) != 3 {
		t.Fatalf("subscribe options = %d", len(js.SubscribeOptions))
	}

	n.MaxDeliver = 0
	n.AckWait = 0
	if got := len(jetStreamConfig(n).SubscribeOptions); got != 1 {
		t.Fatalf("subscribe options = %d", got)
	}

	n.JetStreamEnabled = false
	if !jetStreamConfig(n).Disabled {
		t.Fatal("expected core nats")
	}
}

// TestNatsURL 测试集群地址优先于单地址.
func TestNatsURL(t *testing.T) {
	cfg := configs.Defaults().MQ
	if natsURL(&cfg) != configs.DefaultMQURL {
		t.Fatalf("url = %s", natsURL(&cfg))
	}

	cfg.NATS.ClusterURLs = []string{"nats://a:4222", "nats://b:4222"}
	if natsURL(&cfg) != "nats://a:4222,nats://b:4222" {
		t.Fatalf("url = %s", natsURL(&cfg))
	}

	if cfg.Common.ReconnectWait != 2*time.Second {
		t.Fatalf("reconnect wait = %s", cfg.Common.ReconnectWait)
	}
}

// TestWatermillLogger 测试日志降级与字段透传.
func TestWatermillLogger(t *testing.T) {
	var buf bytes.Buffer

	l := NewLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)).With(watermill.LogFields{"topic": "minerva.fileset.built"})

	l.Info("subscribed", watermill.LogFields{"consumer": "api"})
	l.Debug("dropped", nil)

	out := buf.String()
	if !strings.Contains(out, `"level":"debug"`) || !strings.Contains(out, `"topic":"minerva.fileset.built"`) || !strings.Contains(out, `"consumer":"api"`) {
		t.Fatalf("output = %s", out)
	}

	if strings.Contains(out, "dropped") {
		t.Fatalf("debug should map to trace: %s", out)
	}
}
