// Package app 组装 Minerva 服务：配置、存储、业务服务、事件消费、后台任务与 HTTP 引擎.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yeisme/minerva/pkg/api"
	appcache "github.com/yeisme/minerva/pkg/cache"
	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/internal/jobs"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/mq"
	"github.com/yeisme/minerva/pkg/internal/router"
	"github.com/yeisme/minerva/pkg/internal/service"
	"github.com/yeisme/minerva/pkg/internal/storage"
	"github.com/yeisme/minerva/pkg/log"
	"github.com/yeisme/minerva/pkg/metrics"
	"github.com/yeisme/minerva/pkg/middleware"
	"github.com/yeisme/minerva/pkg/scheduler"
	"github.com/yeisme/minerva/pkg/tracing"
)

// App 持有一个运行中的 Minerva 实例的全部组件.
type App struct {
	Engine    *gin.Engine
	Service   *service.Service
	Scheduler *scheduler.Scheduler

	config  *configs.AppConfig
	manager *storage.Manager
	log     zerolog.Logger
}

// NewApp 加载配置并初始化全部组件，任一步骤失败都返回错误.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	if err := configs.InitConfig(configPath); err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}

	cfg := configs.GetConfig()

	log.Init()
	l := log.Logger()

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	if err := tracing.InitTracer(cfg.Tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if err := metrics.InitMetrics(cfg.Metrics); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	manager, err := storage.Init(ctx)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	if cfg.DB.AutoMigrate {
		if err := manager.DB.Migrate(ctx, model.All()...); err != nil {
			_ = manager.Close()
			return nil, err
		}
	}

	a := &App{
		Service: service.NewFromManager(manager, cfg),
		config:  cfg,
		manager: manager,
		log:     log.Component("app"),
	}

	if cfg.Events.Enabled && cfg.Events.ConsumeFilesetBuilt {
		mq.RegisterConsumers(manager.MQ, a.Service)
	}

	if cfg.Jobs.Enabled {
		if a.Scheduler, err = scheduler.NewScheduler(); err != nil {
			_ = manager.Close()
			return nil, fmt.Errorf("init scheduler: %w", err)
		}

		if err := jobs.Register(a.Scheduler, a.Service, manager.TileKV, cfg.Jobs); err != nil {
			_ = a.Scheduler.Stop()
			_ = manager.Close()

			return nil, fmt.Errorf("register jobs: %w", err)
		}
	}

	a.Engine = a.newEngine()

	return a, nil
}

// newEngine 按固定顺序挂载中间件并注册路由.
func (a *App) newEngine() *gin.Engine {
	cfg := a.config
	engine := gin.New()

	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.GinLoggerMiddleware(cfg.Log.QuietPaths...),
		middleware.CORSMiddleware(cfg.Server),
		middleware.TracingMiddleware(),
		middleware.PrometheusMiddleware(cfg.Metrics.Path),
		middleware.AuthMiddleware(cfg.Auth),
		middleware.StorageMiddleware(a.manager),
		middleware.ServiceMiddleware(a.Service),
		middleware.SchedulerMiddleware(a.Scheduler),
	)

	opts := router.Options{CircuitBreaker: cfg.CircuitBreaker, RateLimit: cfg.RateLimit}
	if ttl := cfg.Server.GetResponseCacheTTL(); ttl > 0 {
		opts.ResponseCache = appcache.NewCache(a.manager.KV, appcache.WithNamespace("rc:"))
		opts.CacheTTL = ttl
	}

	api.RegisterGroup(engine, cfg.Server, opts)

	if err := metrics.StartMetricsServer(cfg.Metrics, engine); err != nil {
		a.log.Warn().Err(err).Msg("metrics endpoint not registered")
	}

	return engine
}

// Run 启动事件路由、后台任务与 HTTP 服务，ctx 取消后优雅退出.
func (a *App) Run(ctx context.Context) error {
	if a.config.Events.Enabled && a.config.Events.ConsumeFilesetBuilt {
		go func() {
			if err := a.manager.MQ.Run(ctx); err != nil {
				a.log.Error().Err(err).Msg("event router stopped")
			}
		}()
	}

	if a.Scheduler != nil {
		a.Scheduler.Start()
	}

	srv := &http.Server{
		Addr:              a.config.Server.Addr(),
		Handler:           a.Engine,
		ReadHeaderTimeout: a.config.Server.ReadHeaderTimeout,
		WriteTimeout:      a.config.Server.WriteTimeout,
		IdleTimeout:       a.config.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", srv.Addr).Str("version", configs.AppVersion).Msg("minerva listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		a.shutdown()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.Server.GetShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("could not stop server gracefully")
		_ = srv.Close()
	}

	a.shutdown()

	return nil
}

// shutdown 依次停止后台任务、追踪与存储.
func (a *App) shutdown() {
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.log.Warn().Err(err).Msg("stop scheduler")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.GetShutdownTimeout())
	defer cancel()

	if err := tracing.ShutdownTracer(ctx); err != nil {
		a.log.Warn().Err(err).Msg("shutdown tracer")
	}

	if err := a.manager.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close storage")
	}

	a.log.Info().Msg("minerva stopped")
}
