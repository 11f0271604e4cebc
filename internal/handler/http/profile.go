package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"party-game/internal/middleware"
	"party-game/internal/service"
)

// ProfileHandler 返回当前登录用户的资料（由 Auth 中间件在校验令牌时同步）
type ProfileHandler struct{}

func NewProfileHandler() *ProfileHandler {
	return &ProfileHandler{}
}

func (h *ProfileHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		ErrorResponse(c, http.StatusUnauthorized, service.KindUnauthenticated, "User not authenticated")
		return
	}
	SuccessResponse(c, http.StatusOK, user)
}
