package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/yeisme/minerva/pkg/configs"
)

const (
	fieldUUID     = "uuid"
	fieldMetadata = "metadata"
	fieldPayload  = "payload"

	redisClaimBatch = 16
)

func init() {
	RegisterFactory(configs.MQTypeRedis, redisFactory)
}

// redisFactory 基于 Redis Streams 创建 Publisher 与 Subscriber，两者共用一个连接池.
func redisFactory(ctx context.Context, cfg *configs.MQConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	rc := cfg.Redis

	client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	group := rc.ConsumerGroup
	if group == "" {
		group = cfg.Common.ClientID
	}

	sub := &streamSubscriber{
		client:   client,
		group:    group,
		consumer: group + "-" + watermill.NewShortUUID(),
		block:    rc.Block,
		idle:     rc.ClaimIdle,
		nack:     rc.NackDelay,
		logger:   logger.With(watermill.LogFields{"group": group}),
		closing:  make(chan struct{}),
	}

	return &streamPublisher{client: client, maxLen: rc.MaxLen}, sub, nil
}

// streamPublisher 以 XADD 写入与主题同名的 stream.
type streamPublisher struct {
	client *redis.Client
	maxLen int64
}

func (p *streamPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		values, err := streamValues(msg)
		if err != nil {
			return err
		}

		args := &redis.XAddArgs{Stream: topic, Values: values}
		if p.maxLen > 0 {
			args.MaxLen, args.Approx = p.maxLen, true
		}

		if err := p.client.XAdd(msg.Context(), args).Err(); err != nil {
			return fmt.Errorf("xadd %s: %w", topic, err)
		}
	}

	return nil
}

// Close 不关闭连接，连接池由 Subscriber 持有.
func (p *streamPublisher) Close() error { return nil }

func streamValues(msg *message.Message) (map[string]any, error) {
	md, err := sonic.Marshal(msg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	return map[string]any{
		fieldUUID:     msg.UUID,
		fieldMetadata: string(md),
		fieldPayload:  string(msg.Payload),
	}, nil
}

// fromStream 把 stream 条目还原为消息，缺少 uuid 的条目以 stream id 代替.
func fromStream(x redis.XMessage) *message.Message {
	str := func(k string) string {
		s, _ := x.Values[k].(string)
		return s
	}

	id := str(fieldUUID)
	if id == "" {
		id = x.ID
	}

	msg := message.NewMessage(id, []byte(str(fieldPayload)))

	if md := str(fieldMetadata); md != "" {
		var m map[string]string
		if err := sonic.UnmarshalString(md, &m); err == nil {
			for k, v := range m {
				msg.Metadata.Set(k, v)
			}
		}
	}

	return msg
}

// streamSubscriber 以消费组读取 stream. 每条消息在处理器确认后 XACK；
// Nack 的消息在 nack_delay 后原地重投，消费者崩溃留下的待确认消息由其他实例 XAUTOCLAIM 接管.
type streamSubscriber struct {
	client   *redis.Client
	group    string
	consumer string
	block    time.Duration
	idle     time.Duration
	nack     time.Duration
	logger   watermill.LoggerAdapter

	wg        sync.WaitGroup
	closing   chan struct{}
	closeOnce sync.Once
}

func (s *streamSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	select {
	case <-s.closing:
		return nil, errors.New("redis subscriber closed")
	default:
	}

	err := s.client.XGroupCreateMkStream(ctx, topic, s.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create group %s on %s: %w", s.group, topic, err)
	}

	out := make(chan *message.Message)

	ctx, cancel := context.WithCancel(ctx)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer close(out)
		defer cancel()

		go func() {
			select {
			case <-s.closing:
				cancel()
			case <-ctx.Done():
			}
		}()

		s.consume(ctx, topic, out)
	}()

	return out, nil
}

func (s *streamSubscriber) consume(ctx context.Context, topic string, out chan<- *message.Message) {
	var lastClaim time.Time

	for ctx.Err() == nil {
		var batch []redis.XMessage

		if s.idle > 0 && time.Since(lastClaim) >= s.idle {
			lastClaim = time.Now()

			claimed, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream: topic, Group: s.group, Consumer: s.consumer,
				MinIdle: s.idle, Start: "0-0", Count: redisClaimBatch,
			}).Result()
			if err != nil && ctx.Err() == nil {
				s.logger.Error("xautoclaim failed", err, watermill.LogFields{"topic": topic})
			}

			batch = claimed
		}

		if len(batch) == 0 {
			streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group: s.group, Consumer: s.consumer,
				Streams: []string{topic, ">"}, Count: 1, Block: s.block,
			}).Result()

			switch {
			case errors.Is(err, redis.Nil):
				continue
			case err != nil:
				if ctx.Err() == nil {
					s.logger.Error("xreadgroup failed", err, watermill.LogFields{"topic": topic})
					s.sleep(ctx, time.Second)
				}

				continue
			}

			for _, st := range streams {
				batch = append(batch, st.Messages...)
			}
		}

		for _, x := range batch {
			if !s.deliver(ctx, topic, x, out) {
				return
			}
		}
	}
}

// deliver 投递直到确认，返回 false 表示订阅已结束.
func (s *streamSubscriber) deliver(ctx context.Context, topic string, x redis.XMessage, out chan<- *message.Message) bool {
	for {
		msg := fromStream(x)
		msg.SetContext(ctx)

		select {
		case out <- msg:
		case <-ctx.Done():
			return false
		}

		select {
		case <-msg.Acked():
			if err := s.client.XAck(context.WithoutCancel(ctx), topic, s.group, x.ID).Err(); err != nil {
				s.logger.Error("xack failed", err, watermill.LogFields{"topic": topic, "id": x.ID})
			}

			return true
		case <-msg.Nacked():
			if !s.sleep(ctx, s.nack) {
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
}

func (s *streamSubscriber) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *streamSubscriber) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.closing)
		s.wg.Wait()
		err = s.client.Close()
	})

	return err
}
