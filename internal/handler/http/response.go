package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"party-game/internal/service"
)

func ErrorResponse(c *gin.Context, code int, kind service.Kind, message string) {
	c.JSON(code, gin.H{"error": message, "code": kind})
}

func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, data)
}

// currentUserID 读取 Auth 中间件设置的用户 ID，缺失时写出 401 并返回 false
func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		ErrorResponse(c, http.StatusUnauthorized, service.KindUnauthenticated, "User not authenticated")
		return "", false
	}
	return userID, true
}

// bindJSON 绑定请求体，失败时写出 400 并返回 false
func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error(), "code": service.KindValidation})
		return false
	}
	return true
}
