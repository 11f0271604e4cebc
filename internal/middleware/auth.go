package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"party-game/internal/domain"
	"party-game/internal/service"
)

// Authenticator 校验身份令牌并返回（已同步的）用户资料
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// Auth 返回一个 Gin 中间件，用于校验身份令牌。
// 令牌从 Authorization: Bearer 头读取，WebSocket 握手无法设置头时可以用 ?token= 查询参数。
// 成功后在上下文中设置 "user_id" (string) 和 "user" (*domain.User)。
func Auth(auth Authenticator) gin.HandlerFunc {
	// 在创建中间件时就进行检查，避免运行时 panic
	if auth == nil {
		panic("Authenticator cannot be nil for Auth middleware")
	}

	return func(c *gin.Context) {
		// 1. 提取 Token
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingAuthHeader) {
				logrus.Warn("Auth middleware: Missing Authorization header")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			} else {
				logrus.WithError(err).Warn("Auth middleware: Error extracting token")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			}
			c.Abort() // 终止请求处理链
			return
		}

		// 2. 验证 Token 并同步用户资料
		user, err := auth.Authenticate(c.Request.Context(), tokenStr)
		if err != nil {
			// 只有令牌本身无效才返回 401，资料存储故障不能让客户端丢弃有效凭证
			switch service.KindOf(err) {
			case service.KindUnauthenticated:
				logrus.WithError(err).Warn("Auth middleware: Invalid token")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			case service.KindUnavailable:
				logrus.WithError(err).Error("Auth middleware: Authentication backend unavailable")
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Authentication service unavailable"})
			default:
				logrus.WithError(err).Error("Auth middleware: Authentication failed")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication service error"})
			}
			c.Abort()
			return
		}

		// 3. 将用户信息存储在 Gin 上下文中，供后续处理程序使用
		c.Set("user_id", user.ID)
		c.Set("user", user)
		logrus.WithField("user_id", user.ID).Debug("Auth middleware: User authenticated")

		c.Next()
	}
}

// ErrMissingAuthHeader 表示请求中既没有 Authorization 头也没有 token 参数
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// ErrMalformedAuthHeader 表示 Authorization 头不是 "Bearer <token>" 格式
var ErrMalformedAuthHeader = errors.New("malformed Authorization header")

// extractToken 从 Authorization 头或 token 查询参数中提取令牌
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", ErrMissingAuthHeader
	}
	// Authorization header 格式应为 "Bearer <token>"
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMalformedAuthHeader
	}
	return parts[1], nil
}

// CurrentUser 返回 Auth 中间件设置的用户，不存在时返回 nil
func CurrentUser(c *gin.Context) *domain.User {
	v, ok := c.Get("user")
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}
