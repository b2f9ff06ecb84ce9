package middleware_test

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/middleware"
)

func limitedEngine(cfg configs.RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)

	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	r := gin.New()
	r.GET("/repository", middleware.RateLimitMiddleware(cfg), ok)
	r.GET("/tile", middleware.RateLimitMiddleware(cfg.ForTiles()), ok)

	return r
}

func drain(r *gin.Engine, path string, header map[string]string) int {
	for n := 0; n < 100; n++ {
		if call(r, path, header).Code == http.StatusTooManyRequests {
			return n
		}
	}

	return -1
}

// TestRateLimitTiers 测试瓦片路由与其余 API 使用各自的令牌桶.
func TestRateLimitTiers(t *testing.T) {
	r := limitedEngine(configs.RateLimitConfig{
		Enabled: true, RPS: 0.001, Burst: 2, Key: "header:X-Client",
		TileRPS: 0.001, TileBurst: 5,
	})

	alice := map[string]string{"X-Client": "alice"}

	if n := drain(r, "/repository", alice); n != 2 {
		t.Fatalf("api allowed %d", n)
	}

	// API 桶耗尽不影响瓦片
	if n := drain(r, "/tile", alice); n != 5 {
		t.Fatalf("tiles allowed %d", n)
	}

	if n := drain(r, "/repository", map[string]string{"X-Client": "bob"}); n != 2 {
		t.Fatalf("bob allowed %d", n)
	}
}

// TestRateLimitDisabled 测试关闭或速率为零时直接放行.
func TestRateLimitDisabled(t *testing.T) {
	for _, cfg := range []configs.RateLimitConfig{
		{Enabled: false, RPS: 0.001, Burst: 1},
		{Enabled: true, RPS: 0, Burst: 1},
	} {
		if n := drain(limitedEngine(cfg), "/repository", nil); n != -1 {
			t.Fatalf("%+v limited after %d", cfg, n)
		}
	}
}
