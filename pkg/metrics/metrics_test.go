package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/metrics"
)

// TestMetricsEndpoint 测试常量标签与抓取路径.
func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := configs.MetricsConfig{
		Enabled:        true,
		Path:           "/internal/metrics",
		RuntimeMetrics: true,
		Labels:         map[string]string{"deployment": "test"},
	}

	if err := metrics.InitMetrics(cfg); err != nil {
		t.Fatalf("init: %v", err)
	}

	// 重复初始化不报错
	if err := metrics.InitMetrics(cfg); err != nil {
		t.Fatalf("second init: %v", err)
	}

	r := gin.New()
	if err := metrics.StartMetricsServer(cfg, r); err != nil {
		t.Fatal(err)
	}

	metrics.TileRequests.WithLabelValues("render", "hit").Inc()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	body := w.Body.String()
	for _, want := range []string{
		`minerva_tile_requests_total{deployment="test",kind="render",result="hit"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in scrape", want)
		}
	}
}

// TestMetricsDisabled 测试未启用时不注册路由.
func TestMetricsDisabled(t *testing.T) {
	r := gin.New()
	if err := metrics.StartMetricsServer(configs.MetricsConfig{}, r); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}
