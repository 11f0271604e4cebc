package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"party-game/internal/service"
)

// statusForKind 把业务错误分类映射为 HTTP 状态码
func statusForKind(kind service.Kind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindUnauthenticated:
		return http.StatusUnauthorized
	case service.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleServiceError 根据错误分类写出响应，内部错误不向客户端暴露细节
func HandleServiceError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Unhandled internal server error")
		ErrorResponse(c, status, kind, "An unexpected error occurred")
		return
	}
	ErrorResponse(c, status, kind, err.Error())
}
