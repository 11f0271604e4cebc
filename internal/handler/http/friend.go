package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"party-game/internal/domain"
	"party-game/internal/service"
)

// FriendHandler 处理好友关系相关的请求
type FriendHandler struct {
	friends *service.FriendshipService
}

func NewFriendHandler(friends *service.FriendshipService) *FriendHandler {
	return &FriendHandler{friends: friends}
}

// FriendRequest 发起好友请求
type FriendRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// ListFriends 列出当前用户的好友关系，可用 ?status= 过滤
func (h *FriendHandler) ListFriends(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	status := domain.FriendshipStatus(c.Query("status"))
	switch status {
	case "", domain.FriendshipPending, domain.FriendshipAccepted, domain.FriendshipBlocked:
	default:
		HandleServiceError(c, service.ErrInvalidInput)
		return
	}
	friends, err := h.friends.ListFriends(c.Request.Context(), userID, status)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"friends": friends})
}

func (h *FriendHandler) SendRequest(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req FriendRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.friends.SendRequest(c.Request.Context(), userID, req.UserID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, f)
}

func (h *FriendHandler) Accept(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	f, err := h.friends.Accept(c.Request.Context(), userID, c.Param("userId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, f)
}

func (h *FriendHandler) Block(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	f, err := h.friends.Block(c.Request.Context(), userID, c.Param("userId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, f)
}
