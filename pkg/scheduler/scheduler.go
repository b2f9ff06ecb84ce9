// Package scheduler 封装 gocron/v2，为后台任务记录运行状态供 HTTP 查询.
//
// 任务按名称注册，同名任务同时只有一个实例在执行. 每次执行的结果与耗时写入
// metrics.JobRuns 与 metrics.JobDuration.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yeisme/minerva/pkg/log"
	"github.com/yeisme/minerva/pkg/metrics"
)

// JobStatus 任务状态.
type JobStatus string

const (
	StatusScheduled JobStatus = "scheduled"
	StatusRunning   JobStatus = "running"
	StatusError     JobStatus = "error"
)

// ErrJobNotFound 名称或 id 对应的任务不存在.
var ErrJobNotFound = errors.New("job not found")

// JobInfo 任务的可观测信息.
type JobInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Schedule     string    `json:"schedule"`
	Status       JobStatus `json:"status"`
	NextRun      time.Time `json:"next_run"`
	LastRun      time.Time `json:"last_run"`
	LastSuccess  time.Time `json:"last_success"`
	LastDuration string    `json:"last_duration,omitempty"`
	Runs         int       `json:"runs"`
	Failures     int       `json:"failures"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Task 任务体，返回的错误记录在 JobInfo 中.
type Task func(ctx context.Context) error

// Scheduler 定时任务调度器，同名任务只能注册一次，单个任务不会并发执行.
type Scheduler struct {
	scheduler gocron.Scheduler
	mu        sync.RWMutex
	jobs      map[string]gocron.Job
	infos     map[string]*JobInfo
	ids       map[uuid.UUID]string
	logger    zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScheduler 创建调度器，任务 context 在 Stop 时取消.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		scheduler: s,
		jobs:      make(map[string]gocron.Job),
		infos:     make(map[string]*JobInfo),
		ids:       make(map[uuid.UUID]string),
		logger:    log.Component("scheduler"),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// AddCron 注册 cron 表达式任务.
func (s *Scheduler) AddCron(name, cronExpr string, task Task) error {
	return s.add(name, cronExpr, gocron.CronJob(cronExpr, false), task)
}

// AddInterval 注册固定间隔任务.
func (s *Scheduler) AddInterval(name string, every time.Duration, task Task) error {
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	return s.add(name, "@every "+every.String(), gocron.DurationJob(every), task)
}

func (s *Scheduler) add(name, schedule string, def gocron.JobDefinition, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	j, err := s.scheduler.NewJob(
		def,
		gocron.NewTask(func() { s.run(name, task) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	now := time.Now()
	next, _ := j.NextRun()

	s.jobs[name] = j
	s.ids[j.ID()] = name
	s.infos[name] = &JobInfo{
		ID:        j.ID().String(),
		Name:      name,
		Schedule:  schedule,
		NextRun:   next,
		Status:    StatusScheduled,
		CreatedAt: now,
	}

	s.logger.Info().Str("job", name).Str("schedule", schedule).Msg("job added")

	return nil
}

// run 执行任务并记录状态，任务内的 panic 记为错误.
func (s *Scheduler) run(name string, task Task) {
	start := time.Now()

	s.update(name, func(info *JobInfo) {
		info.Status = StatusRunning
		info.LastRun = start
	})

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in job: %v", r)
			}
		}()

		return task(s.ctx)
	}()

	elapsed := time.Since(start)
	result := "ok"

	if err != nil {
		result = "error"
	}

	metrics.JobRuns.WithLabelValues(name, result).Inc()
	metrics.JobDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	s.update(name, func(info *JobInfo) {
		info.Runs++
		info.LastDuration = elapsed.Round(time.Millisecond).String()

		if err != nil {
			info.Status = StatusError
			info.Failures++
			info.Error = err.Error()

			return
		}

		info.Status = StatusScheduled
		info.Error = ""
		info.LastSuccess = time.Now()
	})

	if err != nil {
		s.logger.Error().Err(err).Str("job", name).Dur("elapsed", elapsed).Msg("job failed")
	} else {
		s.logger.Debug().Str("job", name).Dur("elapsed", elapsed).Msg("job finished")
	}
}

func (s *Scheduler) update(name string, fn func(*JobInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.infos[name]
	if !ok {
		return
	}

	fn(info)

	if j, ok := s.jobs[name]; ok {
		if next, err := j.NextRun(); err == nil {
			info.NextRun = next
		}
	}
}

// lookup 按名称或 id 字符串查找任务.
func (s *Scheduler) lookup(ref string) (string, gocron.Job, bool) {
	if j, ok := s.jobs[ref]; ok {
		return ref, j, true
	}

	if id, err := uuid.Parse(ref); err == nil {
		if name, ok := s.ids[id]; ok {
			return name, s.jobs[name], true
		}
	}

	return "", nil, false
}

// RunNow 立即执行一次任务，不影响原有调度. 任务正在执行时这次触发会被跳过.
func (s *Scheduler) RunNow(ref string) error {
	s.mu.RLock()
	name, j, ok := s.lookup(ref)
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, ref)
	}

	if err := j.RunNow(); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}

	return nil
}

// GetJobInfoByName 通过名称获取任务信息.
func (s *Scheduler) GetJobInfoByName(name string) (JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, exists := s.infos[name]
	if !exists {
		return JobInfo{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	return *info, nil
}

// GetJobInfos 返回按名称排序的全部任务信息.
func (s *Scheduler) GetJobInfos() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]JobInfo, 0, len(s.infos))
	for _, info := range s.infos {
		jobs = append(jobs, *info)
	}

	slices.SortFunc(jobs, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })

	return jobs
}

// RemoveJob 按名称或 id 移除任务.
func (s *Scheduler) RemoveJob(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, j, ok := s.lookup(ref)
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, ref)
	}

	delete(s.jobs, name)
	delete(s.infos, name)
	delete(s.ids, j.ID())

	s.logger.Info().Str("job", name).Msg("job removed")

	return s.scheduler.RemoveJob(j.ID())
}

// StopJobs 停止所有任务的调度，已在执行的任务继续运行.
func (s *Scheduler) StopJobs() error {
	return s.scheduler.StopJobs()
}

// JobsWaitingInQueue 等待执行的任务数.
func (s *Scheduler) JobsWaitingInQueue() int {
	return s.scheduler.JobsWaitingInQueue()
}

// Start 启动调度器.
func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.GetJobInfos())).Msg("scheduler started")
	s.scheduler.Start()
}

// Stop 取消任务 context 并关闭调度器.
func (s *Scheduler) Stop() error {
	s.cancel()

	return s.scheduler.Shutdown()
}
