package middleware

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"

	appcache "github.com/yeisme/minerva/pkg/cache"
	nlog "github.com/yeisme/minerva/pkg/log"
)

const (
	// DefaultMaxBodyBytes 可缓存响应体的上限.
	DefaultMaxBodyBytes = 4 << 20
	defaultTTL          = 30 * time.Second
	bypassHeader        = "X-Cache-Bypass"
)

// CacheConfig 响应缓存配置.
type CacheConfig struct {
	Cache        *appcache.Cache
	TTL          time.Duration
	MaxBodyBytes int // 0 表示不限制

	// Skipper 返回 true 时跳过缓存.
	Skipper func(*gin.Context) bool
}

// DefaultCacheConfig 返回默认的响应缓存配置.
func DefaultCacheConfig(c *appcache.Cache) CacheConfig {
	return CacheConfig{Cache: c, TTL: defaultTTL, MaxBodyBytes: DefaultMaxBodyBytes}
}

// CacheMiddleware 缓存 GET 请求的 200 响应，键包含请求主体与完整路径.
// 命中时写回 ETag，If-None-Match 匹配返回 304；缓存失败不影响请求本身.
// 命中时不再经过后续处理器，授权检查需放在本中间件之前.
func CacheMiddleware(cfg CacheConfig) gin.HandlerFunc {
	if cfg.Cache == nil {
		panic("CacheMiddleware: Cache cannot be nil")
	}

	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet || c.GetHeader(bypassHeader) != "" ||
			(cfg.Skipper != nil && cfg.Skipper(c)) {
			c.Next()
			return
		}

		key := responseKey(c)
		if serveCached(c, cfg.Cache, key) {
			return
		}

		bw := &bodyCaptureWriter{ResponseWriter: c.Writer, max: cfg.MaxBodyBytes}
		c.Writer = bw
		c.Next()

		storeResponse(c, cfg, key, bw)
	}
}

// cachedResponse 存入 KV 的响应.
type cachedResponse struct {
	ContentType string `json:"ct"`
	Body        []byte `json:"b"`
	ETag        string `json:"e"`
	StoredAt    int64  `json:"t"`
}

// responseKey 由主体、路径与查询串生成缓存键，以路由中的 uuid 开头以便按资源清理.
func responseKey(c *gin.Context) string {
	var b strings.Builder

	b.WriteString(GetSubject(c))
	b.WriteByte('|')
	b.WriteString(c.Request.URL.Path)

	if q := c.Request.URL.Query(); len(q) > 0 {
		b.WriteByte('?')
		b.WriteString(q.Encode())
	}

	return fmt.Sprintf("%s:%x", c.Param("uuid"), xxhash.Sum64String(b.String()))
}

// CacheInvalidateMiddleware 在修改类请求成功后清理路由 uuid 对应的全部缓存响应.
// cache 为 nil 时直接放行.
func CacheInvalidateMiddleware(cache *appcache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		id := c.Param("uuid")
		if cache == nil || id == "" || c.Writer.Status() >= http.StatusMultipleChoices {
			return
		}

		n, err := cache.Purge(context.WithoutCancel(c.Request.Context()), id+":")
		if err != nil {
			nlog.Logger().Warn().Err(err).Str("uuid", id).Msg("response cache purge failed")
			return
		}

		if n > 0 {
			nlog.Logger().Debug().Str("uuid", id).Int("entries", n).Msg("response cache purged")
		}
	}
}

func serveCached(c *gin.Context, cache *appcache.Cache, key string) bool {
	entry, err := appcache.Get[cachedResponse](c.Request.Context(), cache, key)
	if err != nil {
		return false
	}

	h := c.Writer.Header()
	h.Set("ETag", entry.ETag)
	h.Set("Age", fmt.Sprintf("%.0f", time.Since(time.Unix(0, entry.StoredAt)).Seconds()))
	h.Set("X-Cache", "HIT")

	if c.GetHeader("If-None-Match") == entry.ETag {
		c.AbortWithStatus(http.StatusNotModified)
		return true
	}

	c.Data(http.StatusOK, entry.ContentType, entry.Body)
	c.Abort()

	return true
}

func storeResponse(c *gin.Context, cfg CacheConfig, key string, bw *bodyCaptureWriter) {
	if c.Writer.Status() != http.StatusOK || bw.truncated {
		return
	}

	body := bytes.Clone(bw.buf.Bytes())
	entry := cachedResponse{
		ContentType: c.Writer.Header().Get("Content-Type"),
		Body:        body,
		ETag:        fmt.Sprintf("%q", fmt.Sprintf("%x", xxhash.Sum64(body))),
		StoredAt:    time.Now().UnixNano(),
	}

	// 请求结束后 context 会被取消.
	ctx := context.WithoutCancel(c.Request.Context())
	if err := appcache.Set(ctx, cfg.Cache, key, entry, cfg.TTL); err != nil {
		nlog.Logger().Debug().Err(err).Str("path", c.Request.URL.Path).Msg("response cache store failed")
	}
}

// bodyCaptureWriter 在写出响应的同时截取响应体，超过上限时放弃缓存.
type bodyCaptureWriter struct {
	gin.ResponseWriter

	buf       bytes.Buffer
	max       int
	truncated bool
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	if !w.truncated {
		if w.max > 0 && w.buf.Len()+len(b) > w.max {
			w.truncated = true
			w.buf.Reset()
		} else {
			w.buf.Write(b)
		}
	}

	if w.Header().Get("X-Cache") == "" {
		w.Header().Set("X-Cache", "MISS")
	}

	return w.ResponseWriter.Write(b)
}
