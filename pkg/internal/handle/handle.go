// Package handle 实现 HTTP 处理器：参数解析、调用 service、把错误映射为状态码.
package handle

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/apperr"
	ctxPkg "github.com/yeisme/minerva/pkg/context"
	"github.com/yeisme/minerva/pkg/internal/service"
	"github.com/yeisme/minerva/pkg/log"
	"github.com/yeisme/minerva/pkg/middleware"
	"github.com/yeisme/minerva/pkg/rule"
	"github.com/yeisme/minerva/pkg/tile"
)

var errServiceUnavailable = errors.New("service not initialized")

// ErrorResponse 错误响应体.
type ErrorResponse struct {
	Error string `json:"error"`
}

// fail 按错误类别写出 {"error": msg}，5xx 记 error 日志，其余记 debug.
func fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)

	l := ctxPkg.Logger(c.Request.Context(), *log.Logger())
	event := l.Debug()

	if status >= http.StatusInternalServerError {
		event = l.Error()
		_ = c.Error(err)
	}

	event.Err(err).
		Str("path", c.FullPath()).
		Int("status", status).
		Msg("request failed")

	msg := err.Error()
	if status >= http.StatusInternalServerError && apperr.KindOf(err) == apperr.KindInternal {
		msg = http.StatusText(status)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}

// serviceOf 返回注入的业务服务，缺失时写出 500.
func serviceOf(c *gin.Context) (*service.Service, bool) {
	svc := middleware.GetService(c)
	if svc == nil {
		fail(c, apperr.Upstream(errServiceUnavailable, "registry"))
		return nil, false
	}

	return svc, true
}

// bindJSON 解析并按 rule 标签校验请求体.
func bindJSON(c *gin.Context, req any) bool {
	return checkBound(c, c.ShouldBindJSON(req), req, "invalid request body")
}

// bindQuery 解析并校验查询参数.
func bindQuery(c *gin.Context, q any) bool {
	return checkBound(c, c.ShouldBindQuery(q), q, "invalid query")
}

// checkBound 处理绑定结果，校验错误按字段展开为可读信息.
func checkBound(c *gin.Context, err error, v any, msg string) bool {
	if err == nil {
		err = rule.ValidateStruct(v)
	}

	if err == nil {
		return true
	}

	if verrs := rule.Errors(err); verrs != nil {
		err = verrs
	}

	fail(c, apperr.Wrap(apperr.KindValidation, err, msg))

	return false
}

// intParams 按顺序解析路径中的整数参数.
func intParams(c *gin.Context, names ...string) ([]int, error) {
	out := make([]int, len(names))

	for i, name := range names {
		v, err := strconv.Atoi(c.Param(name))
		if err != nil {
			return nil, apperr.Validation("path parameter %s must be an integer", name)
		}

		out[i] = v
	}

	return out, nil
}

// tileCoord 解析 /{x}/{y}/{z}/{t}/{level}.
func tileCoord(c *gin.Context) (tile.Coord, error) {
	v, err := intParams(c, "x", "y", "z", "t", "level")
	if err != nil {
		return tile.Coord{}, err
	}

	return tile.Coord{X: v[0], Y: v[1], Z: v[2], T: v[3], Level: v[4]}, nil
}

// isWarmup 判断预热请求：带 warmup 参数时不做任何渲染.
func isWarmup(c *gin.Context) bool {
	_, ok := c.GetQuery("warmup")
	return ok
}
