package handle

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/middleware"
	"github.com/yeisme/minerva/pkg/scheduler"
)

func schedulerOf(c *gin.Context) (*scheduler.Scheduler, bool) {
	sched := middleware.GetScheduler(c)
	if sched == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "scheduler not running"})
		return nil, false
	}

	return sched, true
}

// SchedulerJobs 返回全部后台任务的状态.
//
//	@Summary	任务列表
//	@Tags		调度器
//	@Produce	json
//	@Success	200	{object}	map[string][]scheduler.JobInfo
//	@Router		/api/v1/scheduler/jobs [get]
func SchedulerJobs(c *gin.Context) {
	sched, ok := schedulerOf(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": sched.GetJobInfos()})
}

// SchedulerStopJobs 停止全部任务的调度.
//
//	@Summary	停止任务
//	@Tags		调度器
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/v1/scheduler/jobs/stop [post]
func SchedulerStopJobs(c *gin.Context) {
	sched, ok := schedulerOf(c)
	if !ok {
		return
	}

	if err := sched.StopJobs(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "jobs stopped"})
}

// schedulerError 任务不存在返回 404，其余为 500.
func schedulerError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, scheduler.ErrJobNotFound) {
		status = http.StatusNotFound
	}

	c.JSON(status, ErrorResponse{Error: err.Error()})
}

// SchedulerRemoveJob 按名称或 id 删除任务.
//
//	@Summary	删除任务
//	@Tags		调度器
//	@Produce	json
//	@Param		job	path		string	true	"任务名称或 id"
//	@Success	200	{object}	map[string]string
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/v1/scheduler/jobs/{job} [delete]
func SchedulerRemoveJob(c *gin.Context) {
	sched, ok := schedulerOf(c)
	if !ok {
		return
	}

	if err := sched.RemoveJob(c.Param("job")); err != nil {
		schedulerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job removed"})
}

// SchedulerRunJob 立即触发一次任务.
//
//	@Summary	立即执行
//	@Tags		调度器
//	@Produce	json
//	@Param		job	path		string	true	"任务名称或 id"
//	@Success	202	{object}	map[string]string
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/v1/scheduler/jobs/{job}/run [post]
func SchedulerRunJob(c *gin.Context) {
	sched, ok := schedulerOf(c)
	if !ok {
		return
	}

	if err := sched.RunNow(c.Param("job")); err != nil {
		schedulerError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "job triggered"})
}

// SchedulerQueueWaiting 返回等待执行的任务数.
//
//	@Summary	等待队列
//	@Tags		调度器
//	@Produce	json
//	@Success	200	{object}	map[string]int
//	@Router		/api/v1/scheduler/queue [get]
func SchedulerQueueWaiting(c *gin.Context) {
	sched, ok := schedulerOf(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"waiting": sched.JobsWaitingInQueue()})
}
