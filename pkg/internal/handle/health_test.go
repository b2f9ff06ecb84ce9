package handle_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/internal/handle"
	"github.com/yeisme/minerva/pkg/internal/router"
)

// TestHealthWithoutStorage 测试未注入存储时存活检查通过而就绪检查失败.
func TestHealthWithoutStorage(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	router.RegisterHealthCheckRoute(r.Group("/api/v1"))

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		return w
	}

	if w := get("/api/v1/health/live"); w.Code != http.StatusOK {
		t.Fatalf("live = %d", w.Code)
	}

	w := get("/api/v1/health/ready")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready = %d", w.Code)
	}

	var ready handle.ReadinessStatus
	if err := json.Unmarshal(w.Body.Bytes(), &ready); err != nil {
		t.Fatal(err)
	}

	if ready.Status != "unhealthy" || len(ready.Components) != 4 || ready.Components[0].Component != "db" {
		t.Fatalf("ready = %+v", ready)
	}

	if w := get("/api/v1/health/kv"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("kv = %d", w.Code)
	}
}
