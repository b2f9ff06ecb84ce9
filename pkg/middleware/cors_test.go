package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/middleware"
)

func preflight(r *gin.Engine, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/image/img-1/dimensions", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

// TestCORSOrigins 测试显式来源、通配子域与未列出的来源.
func TestCORSOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(middleware.CORSMiddleware(configs.ServerConfig{
		CORSOrigins: []string{"https://viewer.example.org", "https://*.lab.example.org"},
	}))
	r.GET("/image/:uuid/dimensions", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, origin := range []string{"https://viewer.example.org", "https://a.lab.example.org"} {
		w := preflight(r, origin)
		if w.Header().Get("Access-Control-Allow-Origin") != origin || w.Header().Get("Access-Control-Allow-Credentials") != "true" {
			t.Fatalf("%s: headers = %v", origin, w.Header())
		}
	}

	if w := preflight(r, "https://evil.example.com"); w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unlisted origin allowed: %v", w.Header())
	}
}

// TestCORSAllowAll 测试未配置来源时放开全部.
func TestCORSAllowAll(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(middleware.CORSMiddleware(configs.ServerConfig{}))
	r.GET("/image/:uuid/dimensions", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := preflight(r, "https://anywhere.test"); w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("headers = %v", w.Header())
	}
}
