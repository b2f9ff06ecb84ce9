package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	appcache "github.com/yeisme/minerva/pkg/cache"
	"github.com/yeisme/minerva/pkg/internal/storage/kv"
	"github.com/yeisme/minerva/pkg/middleware"
)

func cacheEngine(t *testing.T) (*gin.Engine, *int) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := kv.NewMemoryKV(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	c := appcache.NewCache(store, appcache.WithNamespace("rc:"))
	calls := 0

	r := gin.New()
	cached := r.Group("/image", middleware.CacheMiddleware(middleware.CacheConfig{Cache: c, TTL: time.Minute}))
	cached.GET("/:uuid/metadata", func(c *gin.Context) {
		calls++
		c.Data(http.StatusOK, "application/xml", []byte("<OME n=\""+strconv.Itoa(calls)+"\"/>"))
	})
	cached.GET("/:uuid/missing", func(c *gin.Context) {
		calls++
		c.Status(http.StatusNotFound)
	})

	r.DELETE("/image/:uuid", middleware.CacheInvalidateMiddleware(c), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	return r, &calls
}

// TestCacheMiddleware 测试命中、ETag 与删除后的失效.
func TestCacheMiddleware(t *testing.T) {
	r, calls := cacheEngine(t)

	first := call(r, "/image/img-1/metadata", nil)
	if first.Code != http.StatusOK || first.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first = %d %q", first.Code, first.Header().Get("X-Cache"))
	}

	second := call(r, "/image/img-1/metadata", nil)
	if second.Header().Get("X-Cache") != "HIT" || second.Body.String() != first.Body.String() || *calls != 1 {
		t.Fatalf("second = %q %q calls=%d", second.Header().Get("X-Cache"), second.Body.String(), *calls)
	}

	etag := second.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	if w := call(r, "/image/img-1/metadata", map[string]string{"If-None-Match": etag}); w.Code != http.StatusNotModified {
		t.Fatalf("conditional = %d", w.Code)
	}

	if w := call(r, "/image/img-1/metadata", map[string]string{"X-Cache-Bypass": "1"}); w.Body.String() == first.Body.String() {
		t.Fatal("bypass served cached body")
	}

	// 其他图像不受删除影响
	call(r, "/image/img-2/metadata", nil)
	before := *calls

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/image/img-1", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}

	if w := call(r, "/image/img-1/metadata", nil); w.Header().Get("X-Cache") != "MISS" || *calls != before+1 {
		t.Fatalf("after purge = %q calls=%d", w.Header().Get("X-Cache"), *calls)
	}

	if w := call(r, "/image/img-2/metadata", nil); w.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("img-2 = %q", w.Header().Get("X-Cache"))
	}
}

// TestCacheMiddlewareSkipsErrors 测试非 200 响应不进入缓存.
func TestCacheMiddlewareSkipsErrors(t *testing.T) {
	r, calls := cacheEngine(t)

	call(r, "/image/img-1/missing", nil)
	call(r, "/image/img-1/missing", nil)

	if *calls != 2 {
		t.Fatalf("calls = %d", *calls)
	}
}
