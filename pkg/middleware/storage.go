package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	ctxPkg "github.com/yeisme/minerva/pkg/context"
	"github.com/yeisme/minerva/pkg/internal/service"
	"github.com/yeisme/minerva/pkg/internal/storage"
	"github.com/yeisme/minerva/pkg/scheduler"
)

type (
	serviceKey   struct{}
	schedulerKey struct{}
)

// inject 返回把 v 挂到 request context 上的中间件.
// v 为 nil 指针时不写入，读取方拿到零值即视为组件未启用.
func inject[T comparable](key any, v T) gin.HandlerFunc {
	var zero T
	if v == zero {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), key, v))
		c.Next()
	}
}

func lookup[T any](c *gin.Context, key any) T {
	v, _ := c.Request.Context().Value(key).(T)

	return v
}

// StorageMiddleware 将存储管理器注入 request context，供健康检查使用.
func StorageMiddleware(manager *storage.Manager) gin.HandlerFunc {
	if manager == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(ctxPkg.WithStorageManager(c.Request.Context(), manager))
		c.Next()
	}
}

// ServiceMiddleware 将业务服务注入 request context.
func ServiceMiddleware(svc *service.Service) gin.HandlerFunc {
	return inject(serviceKey{}, svc)
}

// GetService 从 context 中获取业务服务，未注入时为 nil.
func GetService(c *gin.Context) *service.Service {
	return lookup[*service.Service](c, serviceKey{})
}

// SchedulerMiddleware 注入后台任务调度器，jobs.enabled 关闭时 sched 为 nil.
func SchedulerMiddleware(sched *scheduler.Scheduler) gin.HandlerFunc {
	return inject(schedulerKey{}, sched)
}

// GetScheduler 从 context 中获取调度器，未启用时为 nil.
func GetScheduler(c *gin.Context) *scheduler.Scheduler {
	return lookup[*scheduler.Scheduler](c, schedulerKey{})
}
