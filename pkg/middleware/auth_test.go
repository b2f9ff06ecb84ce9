package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/middleware"
)

const testSecret = "s3cret"

func authEngine(conf configs.AuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(middleware.AuthMiddleware(conf))
	r.GET("/*path", func(c *gin.Context) {
		c.String(http.StatusOK, middleware.GetSubject(c))
	})

	return r
}

func signed(t *testing.T, method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
	t.Helper()

	raw, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	return raw
}

func call(r *gin.Engine, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

// TestAuthBearer 测试 HS256 令牌的主体提取与拒绝路径.
func TestAuthBearer(t *testing.T) {
	r := authEngine(configs.AuthConfig{Enabled: true, JWTSecret: testSecret, Issuer: "minerva"})

	valid := jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "minerva",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExp := valid
	noExp.ExpiresAt = nil

	wrongIssuer := valid
	wrongIssuer.Issuer = "elsewhere"

	noSubject := valid
	noSubject.Subject = ""

	tests := []struct {
		name   string
		token  string
		status int
		body   string
	}{
		{"valid", signed(t, jwt.SigningMethodHS256, valid), http.StatusOK, "alice"},
		{"hs512", signed(t, jwt.SigningMethodHS512, valid), http.StatusOK, "alice"},
		{"expired", signed(t, jwt.SigningMethodHS256, expired), http.StatusForbidden, ""},
		{"missing exp", signed(t, jwt.SigningMethodHS256, noExp), http.StatusForbidden, ""},
		{"wrong issuer", signed(t, jwt.SigningMethodHS256, wrongIssuer), http.StatusForbidden, ""},
		{"no subject", signed(t, jwt.SigningMethodHS256, noSubject), http.StatusForbidden, ""},
		{"garbage", "not-a-jwt", http.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(r, "/api/v1/repository", map[string]string{"Authorization": "Bearer " + tt.token})
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}

			if tt.status == http.StatusOK && w.Body.String() != tt.body {
				t.Fatalf("subject = %q, want %q", w.Body.String(), tt.body)
			}
		})
	}
}

// TestAuthAnonymous 测试没有凭证的请求继续执行且不带主体.
func TestAuthAnonymous(t *testing.T) {
	r := authEngine(configs.AuthConfig{Enabled: true, JWTSecret: testSecret})

	w := call(r, "/api/v1/repository", nil)
	if w.Code != http.StatusOK || w.Body.String() != "" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
}

// TestAuthWithoutSecret 测试未配置密钥时拒绝 Bearer 令牌.
func TestAuthWithoutSecret(t *testing.T) {
	r := authEngine(configs.AuthConfig{Enabled: true})

	w := call(r, "/x", map[string]string{"Authorization": "Bearer abc"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
}

// TestAuthProxyHeader 测试 oauth2-proxy 请求头与跳过路径.
func TestAuthProxyHeader(t *testing.T) {
	r := authEngine(configs.AuthConfig{
		Enabled:          true,
		TrustProxyHeader: true,
		SkipPaths:        []string{"/api/v1/health"},
	})

	if w := call(r, "/api/v1/repository", map[string]string{"X-Forwarded-Email": "bob@example.org"}); w.Body.String() != "bob@example.org" {
		t.Fatalf("subject = %q", w.Body.String())
	}

	// X-Auth-Request-User 优先
	hdr := map[string]string{"X-Forwarded-User": "carol", "X-Auth-Request-User": "dave"}
	if w := call(r, "/api/v1/repository", hdr); w.Body.String() != "dave" {
		t.Fatalf("subject = %q", w.Body.String())
	}

	if w := call(r, "/api/v1/health/db", hdr); w.Body.String() != "" {
		t.Fatalf("skipped path got subject %q", w.Body.String())
	}
}

// TestAuthDevQuery 测试调试模式下的 ?user= 兜底.
func TestAuthDevQuery(t *testing.T) {
	r := authEngine(configs.AuthConfig{Enabled: true, DevAllowQuery: true})

	if w := call(r, "/api/v1/repository?user=erin", nil); w.Body.String() != "erin" {
		t.Fatalf("subject = %q", w.Body.String())
	}

	r = authEngine(configs.AuthConfig{Enabled: false, DevAllowQuery: true})
	if w := call(r, "/api/v1/repository?user=erin", nil); w.Body.String() != "" {
		t.Fatalf("disabled auth got subject %q", w.Body.String())
	}
}
