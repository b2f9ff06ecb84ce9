package mq

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// watermillLogger 把 watermill 的日志写入 zerolog.
// watermill 在每条消息上都会打 Info，这里整体降一级，Info 记为 Debug，Debug 与 Trace 记为 Trace.
type watermillLogger struct {
	l zerolog.Logger
}

// NewLogger 创建 watermill 日志适配器.
func NewLogger(l zerolog.Logger) watermill.LoggerAdapter {
	return watermillLogger{l: l}
}

func withFields(ev *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	if len(fields) == 0 {
		return ev
	}

	return ev.Fields(map[string]any(fields))
}

func (w watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	withFields(w.l.Error().Err(err), fields).Msg(msg)
}

func (w watermillLogger) Info(msg string, fields watermill.LogFields) {
	withFields(w.l.Debug(), fields).Msg(msg)
}

func (w watermillLogger) Debug(msg string, fields watermill.LogFields) {
	withFields(w.l.Trace(), fields).Msg(msg)
}

func (w watermillLogger) Trace(msg string, fields watermill.LogFields) {
	withFields(w.l.Trace(), fields).Msg(msg)
}

func (w watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{l: w.l.With().Fields(map[string]any(fields)).Logger()}
}
