// Package mq 注册本进程消费的流水线事件.
//
// 当前只有 minerva.fileset.built：构建流水线完成一个 fileset 后，
// 消费者把 fileset 与其图像写入注册表. 处理是幂等的，重复投递不会改变结果.
//
//	client := mgr.GetMQClient()
//	mq.RegisterConsumers(client, svc)
//	go client.Run(ctx)
package mq

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/internal/service"
	nlog "github.com/yeisme/minerva/pkg/log"
	"github.com/yeisme/minerva/pkg/queue"
	"github.com/yeisme/minerva/pkg/tracing"
)

const filesetBuiltHandler = "registry.fileset_built"

// HandlerRegistry 可注册消费处理器的路由，*mqc.Client 满足该接口.
type HandlerRegistry interface {
	AddHandler(name, topic string, h message.NoPublishHandlerFunc)
}

// RegisterConsumers 注册全部事件消费者，需在路由 Run 之前调用.
func RegisterConsumers(r HandlerRegistry, svc *service.Service) {
	r.AddHandler(filesetBuiltHandler, queue.TopicFilesetBuilt, FilesetBuiltHandler(svc))
}

// FilesetBuiltHandler 返回 minerva.fileset.built 的处理函数.
// 无法解析或校验失败的消息记录后确认丢弃，其余错误返回以便重投.
func FilesetBuiltHandler(svc *service.Service) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		l := nlog.Logger().With().Str("handler", filesetBuiltHandler).Str("message_uuid", msg.UUID).Logger()

		env, err := queue.ParseFilesetBuilt(msg)
		if err != nil {
			l.Error().Err(err).Msg("drop malformed fileset event")
			return nil
		}

		ctx, span := tracing.StartSpan(tracing.Extract(msg.Context(), msg.Metadata), "consume "+queue.TopicFilesetBuilt,
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.message.id", msg.UUID),
				attribute.String("minerva.fileset", env.Payload.FilesetUUID),
			),
		)
		defer span.End()

		err = svc.RecordFilesetBuilt(ctx, &env.Payload)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}

		if err == nil {
			l.Info().
				Str("fileset", env.Payload.FilesetUUID).
				Str("import", env.Payload.ImportUUID).
				Int("images", len(env.Payload.Images)).
				Msg("fileset recorded")

			return nil
		}

		switch apperr.KindOf(err) {
		case apperr.KindValidation, apperr.KindNotFound:
			l.Error().Err(err).Str("fileset", env.Payload.FilesetUUID).Msg("drop invalid fileset event")
			return nil
		default:
			return err
		}
	}
}
