// Package mq 提供基于 Watermill 的统一消息队列客户端，承载导入流水线事件.
//
// 支持的 MQ 类型：
//   - NATS（支持 JetStream）
//   - Redis Streams（消费组，未确认的消息会被接管重投）
//   - memory（进程内 gochannel，单实例部署与测试使用）
//
// 使用示例：
//
//	client, err := mq.New(ctx, &cfg.MQ)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	msg := message.NewMessage(watermill.NewUUID(), payload)
//	err = client.Publish(ctx, "minerva.import.completed", msg)
//
//	client.AddHandler("fileset-built", "minerva.fileset.built", func(msg *message.Message) error {
//		return nil
//	})
//	go client.Run(ctx)
package mq

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yeisme/minerva/pkg/configs"
	nlog "github.com/yeisme/minerva/pkg/log"
)

// Factory 定义创建 Publisher + Subscriber 的工厂函数.
type Factory func(ctx context.Context, cfg *configs.MQConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error)

var (
	factories   = map[configs.MQType]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterFactory 注册指定 MQType 的工厂.
func RegisterFactory(t configs.MQType, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	factories[t] = f
}

// GetRegisteredTypes 返回已注册的 MQ 类型.
func GetRegisteredTypes() []configs.MQType {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	types := make([]configs.MQType, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// Client 封装 watermill Publisher、Subscriber 与消费 Router.
type Client struct {
	Type       configs.MQType
	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router
	closeOnce  sync.Once
}

// New 按配置创建消息队列客户端.
func New(ctx context.Context, cfg *configs.MQConfig) (*Client, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Type]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported mq type: %s", cfg.Type)
	}

	l := nlog.Component("mq")
	logger := NewLogger(l)

	pub, sub, err := factory(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init mq (%s): %w", cfg.Type, err)
	}

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)

	c := &Client{Type: cfg.Type, publisher: pub, subscriber: sub, router: router}

	// 指标注册到默认 registry，随 /metrics 一起暴露
	if cfg.Common.EnableMetrics {
		builder := metrics.NewPrometheusMetricsBuilder(prometheus.DefaultRegisterer, "minerva", "mq")
		builder.AddPrometheusRouterMetrics(router)

		if c.publisher, err = builder.DecoratePublisher(pub); err != nil {
			return nil, fmt.Errorf("decorate publisher with metrics: %w", err)
		}

		if c.subscriber, err = builder.DecorateSubscriber(sub); err != nil {
			return nil, fmt.Errorf("decorate subscriber with metrics: %w", err)
		}
	}

	l.Info().Str("type", string(cfg.Type)).Bool("metrics", cfg.Common.EnableMetrics).Msg("MQ 客户端已初始化")

	return c, nil
}

// Publish 发布消息.
func (c *Client) Publish(ctx context.Context, topic string, msgs ...*message.Message) error {
	if c == nil || c.publisher == nil {
		return errors.New("mq publisher not initialized")
	}

	for _, m := range msgs {
		m.SetContext(ctx)
	}

	return c.publisher.Publish(topic, msgs...)
}

// Subscribe 订阅主题，返回的通道在 ctx 取消或客户端关闭时关闭.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if c == nil || c.subscriber == nil {
		return nil, errors.New("mq subscriber not initialized")
	}

	return c.subscriber.Subscribe(ctx, topic)
}

// AddHandler 在 Router 上注册只消费不转发的处理器，需在 Run 之前调用.
func (c *Client) AddHandler(name, topic string, h message.NoPublishHandlerFunc) {
	c.router.AddNoPublisherHandler(name, topic, c.subscriber, h)
}

// Run 运行 Router 直到 ctx 取消，阻塞调用.
func (c *Client) Run(ctx context.Context) error {
	return c.router.Run(ctx)
}

// Running 返回 Router 启动完成后关闭的通道.
func (c *Client) Running() chan struct{} {
	return c.router.Running()
}

// Close 关闭资源.
func (c *Client) Close() error {
	var errs []error

	c.closeOnce.Do(func() {
		if c.router != nil {
			errs = append(errs, c.router.Close())
		}

		if c.publisher != nil {
			errs = append(errs, c.publisher.Close())
		}

		if c.subscriber != nil {
			errs = append(errs, c.subscriber.Close())
		}
	})

	return errors.Join(errs...)
}
