package mq

import (
	"context"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/yeisme/minerva/pkg/configs"
)

const (
	natsDrainTimeout   = 30 * time.Second
	natsFlusherTimeout = 10 * time.Second
)

func init() {
	RegisterFactory(configs.MQTypeNATS, natsFactory)
}

// natsFactory 创建 NATS Publisher 与 Subscriber，JetStream 开启时由 watermill-nats 按主题建流.
func natsFactory(_ context.Context, cfg *configs.MQConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	url := natsURL(cfg)
	opts := natsOptions(cfg)
	js := jetStreamConfig(cfg.NATS)
	marshaler := &nats.NATSMarshaler{}

	logger.Info("connecting to nats", watermill.LogFields{
		"url":       url,
		"jetstream": !js.Disabled,
		"durable":   js.DurablePrefix,
	})

	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         url,
		NatsOptions: opts,
		JetStream:   js,
		Marshaler:   marshaler,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	subCfg := nats.SubscriberConfig{
		URL:         url,
		NatsOptions: opts,
		JetStream:   js,
		Unmarshaler: marshaler,
	}

	// 多个 API 实例共享队列组，每个图集事件只登记一次
	if cfg.NATS.LoadBalance {
		subCfg.QueueGroupPrefix = cfg.Common.ClientID
	}

	sub, err := nats.NewSubscriber(subCfg, logger)
	if err != nil {
		_ = pub.Close()

		return nil, nil, err
	}

	return pub, sub, nil
}

func natsURL(cfg *configs.MQConfig) string {
	if len(cfg.NATS.ClusterURLs) > 0 {
		return strings.Join(cfg.NATS.ClusterURLs, ",")
	}

	return cfg.Common.URL
}

func natsOptions(cfg *configs.MQConfig) []nc.Option {
	c := cfg.Common

	opts := []nc.Option{
		nc.Name(c.ClientID),
		nc.MaxReconnects(c.MaxReconnects),
		nc.ReconnectWait(c.ReconnectWait),
		nc.PingInterval(c.PingInterval),
		nc.MaxPingsOutstanding(c.MaxPingsOut),
		nc.ReconnectBufSize(c.BufferSize),
		nc.DrainTimeout(natsDrainTimeout),
		nc.FlusherTimeout(natsFlusherTimeout),
		nc.RetryOnFailedConnect(!c.StrictConnect),
	}

	switch {
	case cfg.NATS.JWT != "":
		opts = append(opts, nc.UserJWTAndSeed(cfg.NATS.JWT, cfg.NATS.NKey))
	case c.User != "":
		opts = append(opts, nc.UserInfo(c.User, c.Password))
	}

	return opts
}

// jetStreamConfig 把重投递参数转成消费者选项，未确认的事件在 ack_wait 后重投，最多 max_deliver 次.
func jetStreamConfig(n configs.MQNATSConfig) nats.JetStreamConfig {
	if !n.JetStreamEnabled {
		return nats.JetStreamConfig{Disabled: true}
	}

	var sub []nc.SubOpt
	if n.AckWait > 0 {
		sub = append(sub, nc.AckWait(n.AckWait))
	}

	if n.MaxDeliver > 0 {
		sub = append(sub, nc.MaxDeliver(n.MaxDeliver))
	}

	if n.MaxAckPending > 0 {
		sub = append(sub, nc.MaxAckPending(n.MaxAckPending))
	}

	return nats.JetStreamConfig{
		AutoProvision:    n.AutoProvision,
		TrackMsgId:       n.TrackMsgID,
		AckAsync:         n.AckAsync,
		DurablePrefix:    n.DurablePrefix,
		SubscribeOptions: sub,
	}
}
