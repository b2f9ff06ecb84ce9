package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yeisme/minerva/pkg/configs"
	ctxPkg "github.com/yeisme/minerva/pkg/context"
)

// 代理注入的身份请求头，按顺序取第一个非空值.
var proxySubjectHeaders = []string{
	"X-Auth-Request-User",
	"X-Forwarded-User",
	"X-Auth-Request-Email",
	"X-Forwarded-Email",
}

// AuthMiddleware 解析请求主体并写入 request context.
//   - Authorization: Bearer <jwt>，HS 系列签名，主体取 sub 声明
//   - trust_proxy_header 时接受 oauth2-proxy 注入的请求头
//   - dev_allow_query 且调试模式时允许 ?user= 兜底
//
// 没有任何凭证的请求继续执行但不带主体，由业务层按需拒绝；凭证无效时返回 403.
func AuthMiddleware(conf configs.AuthConfig) gin.HandlerFunc {
	parser := newTokenParser(conf)

	return func(c *gin.Context) {
		if !conf.Enabled || isSkippedPath(c.Request.URL.Path, conf.SkipPaths) {
			c.Next()
			return
		}

		subject, err := resolveSubject(c, conf, parser)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}

		if subject != "" {
			c.Set(ctxPkg.SubjectKey, subject)
			c.Request = c.Request.WithContext(ctxPkg.WithSubject(c.Request.Context(), subject))
		}

		c.Next()
	}
}

// GetSubject 返回当前请求的主体，未认证时为空字符串.
func GetSubject(c *gin.Context) string {
	return ctxPkg.GetSubject(c.Request.Context())
}

func newTokenParser(conf configs.AuthConfig) *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}

	if conf.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(conf.Issuer))
	}

	if conf.Audience != "" {
		opts = append(opts, jwt.WithAudience(conf.Audience))
	}

	return jwt.NewParser(opts...)
}

func resolveSubject(c *gin.Context, conf configs.AuthConfig, parser *jwt.Parser) (string, error) {
	if raw, ok := bearerToken(c.GetHeader("Authorization")); ok {
		return parseSubject(parser, conf.JWTSecret, raw)
	}

	if conf.TrustProxyHeader {
		for _, h := range proxySubjectHeaders {
			if v := strings.TrimSpace(c.GetHeader(h)); v != "" {
				return v, nil
			}
		}
	}

	if conf.DevAllowQuery && gin.Mode() != gin.ReleaseMode {
		return strings.TrimSpace(c.Query("user")), nil
	}

	return "", nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}

// parseSubject 校验 HS 签名的令牌并返回 sub 声明.
func parseSubject(parser *jwt.Parser, secret, raw string) (string, error) {
	if secret == "" {
		return "", errTokensDisabled
	}

	claims := &jwt.RegisteredClaims{}

	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", errInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errInvalidToken
	}

	return sub, nil
}

func isSkippedPath(path string, skips []string) bool {
	if path == "" || len(skips) == 0 {
		return false
	}

	for _, p := range skips {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if strings.HasPrefix(path, p) {
			return true
		}
	}

	return false
}
