// Package log 提供基于 zerolog 的全局日志.
//
// 控制台输出支持人类可读与 JSON 两种格式，文件输出经 lumberjack 轮转.
// 每条日志都带有 service 与 version 字段，组件日志再附加 component.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yeisme/minerva/pkg/configs"
)

const serviceName = "minerva"

var (
	logger   zerolog.Logger
	initOnce sync.Once
)

// Init 按全局配置初始化 logger，只执行一次.
func Init() {
	initOnce.Do(func() {
		cfg := configs.GetConfig()
		logger = New(cfg.Log, cfg.Server.Debug)
		log.Logger = logger
	})
}

// New 按配置构造 logger，extra 追加额外的输出.
// 级别非法时退回 info.
func New(cfg configs.LogConfig, debug bool, extra ...io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		if cfg.Level != "" {
			fmt.Fprintf(os.Stderr, "invalid log level %q, defaulting to info\n", cfg.Level)
		}

		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)

	writers := []io.Writer{consoleWriter(cfg.Format)}

	if cfg.EnableFile {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}

	writers = append(writers, extra...)

	ctx := zerolog.New(io.MultiWriter(writers...)).With().
		Timestamp().
		Str("service", serviceName).
		Str("version", configs.AppVersion)

	if debug {
		ctx = ctx.Caller().Stack()
	}

	return ctx.Logger().Level(lvl)
}

func consoleWriter(format string) io.Writer {
	if format == configs.LogFormatJSON {
		return os.Stderr
	}

	return zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
		w.TimeFormat = time.Kitchen
	})
}

// Logger 返回全局 logger，首次使用时初始化.
func Logger() *zerolog.Logger {
	Init()

	return &logger
}

// Component 返回带 component 字段的子 logger.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// GinWriter 把 Gin 文本行转发为 zerolog 事件.
// Gin 的调试输出带有 [GIN-debug] 与 [WARNING] 前缀，据此调整级别.
type GinWriter struct {
	logger *zerolog.Logger
	level  zerolog.Level
}

// NewGinWriter 创建 GinWriter，level 为没有前缀可识别时使用的级别.
func NewGinWriter(logger *zerolog.Logger, level zerolog.Level) *GinWriter {
	return &GinWriter{logger: logger, level: level}
}

func (w *GinWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	lvl := w.level

	switch {
	case strings.Contains(msg, "[ERROR]"):
		lvl = zerolog.ErrorLevel
	case strings.Contains(msg, "[WARNING]"):
		lvl = zerolog.WarnLevel
	case strings.HasPrefix(msg, "[GIN-debug]") && lvl < zerolog.ErrorLevel:
		lvl = zerolog.DebugLevel
	}

	msg = strings.TrimSpace(strings.TrimPrefix(msg, "[GIN-debug]"))
	w.logger.WithLevel(lvl).Str("source", "gin").Msg(msg)

	return len(p), nil
}
