package handle

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	ctxPkg "github.com/yeisme/minerva/pkg/context"
	kvc "github.com/yeisme/minerva/pkg/internal/storage/kv"
)

const (
	healthTimeout  = 2 * time.Second
	healthProbeKey = "health/probe"

	healthOK        = "ok"
	healthUnhealthy = "unhealthy"
)

// HealthStatus 组件健康状态.
type HealthStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// ReadinessStatus 全部组件的汇总状态.
type ReadinessStatus struct {
	Status     string         `json:"status"`
	Components []HealthStatus `json:"components"`
}

type healthCheck func(ctx context.Context) error

// 就绪检查依次列出的组件.
var readinessComponents = []string{"db", "s3", "kv", "mq"}

func checkFor(ctx context.Context, component string) healthCheck {
	switch component {
	case "db":
		if db := ctxPkg.GetDBClient(ctx); db != nil {
			return db.Ping
		}
	case "s3":
		if s3 := ctxPkg.GetS3Client(ctx); s3 != nil && s3.Client != nil {
			return s3.HealthCheck
		}
	case "mq":
		// watermill 没有探活接口，客户端存在即视为可用
		if ctxPkg.GetMQClient(ctx) != nil {
			return func(context.Context) error { return nil }
		}
	case "kv":
		return kvCheck(ctx)
	}

	return nil
}

// kvCheck 向瓦片缓存与响应缓存各写入并读回一个短期键.
func kvCheck(ctx context.Context) healthCheck {
	tiles := ctxPkg.GetTileKVClient(ctx)
	if tiles == nil {
		return nil
	}

	clients := []*kvc.Client{tiles}
	if resp := ctxPkg.GetKVClient(ctx); resp != nil && resp != tiles {
		clients = append(clients, resp)
	}

	return func(ctx context.Context) error {
		for _, kv := range clients {
			if err := kv.Set(ctx, healthProbeKey, []byte(healthOK), time.Minute); err != nil {
				return err
			}

			if _, err := kv.Get(ctx, healthProbeKey); err != nil {
				return err
			}
		}

		return nil
	}
}

func runCheck(ctx context.Context, component string) HealthStatus {
	st := HealthStatus{Component: component, Status: healthOK}

	check := checkFor(ctx, component)
	if check == nil {
		st.Status, st.Error = healthUnhealthy, component+" client not initialized"
		return st
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	start := time.Now()
	err := check(ctx)
	st.LatencyMS = time.Since(start).Milliseconds()

	if err != nil {
		st.Status, st.Error = healthUnhealthy, err.Error()
	}

	return st
}

func healthHandler(component string) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := runCheck(c.Request.Context(), component)

		code := http.StatusOK
		if st.Status != healthOK {
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, st)
	}
}

// HealthDB 注册表数据库健康检查.
//
//	@Summary	数据库健康检查
//	@Tags		健康检查
//	@Produce	json
//	@Success	200	{object}	HealthStatus
//	@Failure	503	{object}	HealthStatus
//	@Router		/api/v1/health/db [get]
func HealthDB(c *gin.Context) { healthHandler("db")(c) }

// HealthS3 对象存储健康检查，确认瓦片桶可访问.
//
//	@Summary	对象存储健康检查
//	@Tags		健康检查
//	@Produce	json
//	@Success	200	{object}	HealthStatus
//	@Failure	503	{object}	HealthStatus
//	@Router		/api/v1/health/s3 [get]
func HealthS3(c *gin.Context) { healthHandler("s3")(c) }

// HealthMQ 消息队列健康检查.
//
//	@Summary	消息队列健康检查
//	@Tags		健康检查
//	@Produce	json
//	@Success	200	{object}	HealthStatus
//	@Failure	503	{object}	HealthStatus
//	@Router		/api/v1/health/mq [get]
func HealthMQ(c *gin.Context) { healthHandler("mq")(c) }

// HealthKV 瓦片缓存与响应缓存健康检查.
//
//	@Summary	缓存健康检查
//	@Tags		健康检查
//	@Produce	json
//	@Success	200	{object}	HealthStatus
//	@Failure	503	{object}	HealthStatus
//	@Router		/api/v1/health/kv [get]
func HealthKV(c *gin.Context) { healthHandler("kv")(c) }

// HealthLive 进程存活检查，不访问任何依赖.
//
//	@Summary	存活检查
//	@Tags		健康检查
//	@Produce	json
//	@Success	200	{object}	HealthStatus
//	@Router		/api/v1/health/live [get]
func HealthLive(c *gin.Context) {
	c.JSON(http.StatusOK, HealthStatus{Component: "minerva", Status: healthOK})
}

// HealthReady 并发检查全部依赖，任一不可用时返回 503.
//
//	@Summary	就绪检查
//	@Tags		健康检查
//	@Produce	json
//	@Success	200	{object}	ReadinessStatus
//	@Failure	503	{object}	ReadinessStatus
//	@Router		/api/v1/health/ready [get]
func HealthReady(c *gin.Context) {
	ctx := c.Request.Context()
	out := ReadinessStatus{Status: healthOK, Components: make([]HealthStatus, len(readinessComponents))}

	var g errgroup.Group
	for i, component := range readinessComponents {
		g.Go(func() error {
			out.Components[i] = runCheck(ctx, component)
			return nil
		})
	}

	_ = g.Wait()

	code := http.StatusOK
	if slices.ContainsFunc(out.Components, func(st HealthStatus) bool { return st.Status != healthOK }) {
		out.Status, code = healthUnhealthy, http.StatusServiceUnavailable
	}

	c.JSON(code, out)
}
