package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"party-game/internal/repository"
)

// RateLimit 返回一个 Gin 中间件，在 scope 范围内按调用方做固定窗口限流。
// 已通过 Auth 的请求按 user_id 计数，否则按客户端 IP 计数。
// 计数存放在 StateRepository（Redis）中，多个实例共享同一个窗口。
func RateLimit(state repository.StateRepository, scope string, maxRequests int, window time.Duration) gin.HandlerFunc {
	// 启动时检查依赖
	if state == nil {
		panic("StateRepository cannot be nil for RateLimit middleware")
	}
	if scope == "" {
		panic("scope cannot be empty for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}
	retryAfter := strconv.Itoa(int((window + time.Second - 1) / time.Second))

	return func(c *gin.Context) {
		key := limiterKey(c, scope)
		logCtx := logrus.WithFields(logrus.Fields{"scope": scope, "key": key})

		exceeded, err := state.CheckRateLimit(c.Request.Context(), key, maxRequests, window)
		if err != nil {
			logCtx.WithError(err).Error("RateLimit: state store check failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limiting error"})
			c.Abort()
			return
		}
		if exceeded {
			logCtx.Debug("RateLimit: limit exceeded")
			c.Header("Retry-After", retryAfter)
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// limiterKey 优先使用认证后的用户 ID。
// 注意：如果服务在反向代理后面，需要配置 gin 的 TrustedProxies 才能拿到真实 IP
func limiterKey(c *gin.Context, scope string) string {
	if userID := c.GetString("user_id"); userID != "" {
		return scope + ":user:" + userID
	}
	return scope + ":ip:" + c.ClientIP()
}
