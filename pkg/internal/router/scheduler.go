package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/internal/handle"
)

// RegisterSchedulerRoutes 注册后台任务查看与控制路由.
func RegisterSchedulerRoutes(g *gin.RouterGroup) {
	jobs := g.Group("/scheduler")
	{
		jobs.GET("/jobs", handle.SchedulerJobs)
		jobs.POST("/jobs/stop", handle.SchedulerStopJobs)
		jobs.DELETE("/jobs/:job", handle.SchedulerRemoveJob)
		jobs.POST("/jobs/:job/run", handle.SchedulerRunJob)
		jobs.GET("/queue", handle.SchedulerQueueWaiting)
	}
}
