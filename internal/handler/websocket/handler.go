package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"party-game/internal/dto"
	"party-game/internal/hub"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader websocket.Upgrader // WebSocket 升级器
	hub      *hub.Hub
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。allowedOrigin 为空或 "*" 时允许所有来源。
func NewWebSocketHandler(h *hub.Hub, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}
	return &WebSocketHandler{upgrader: upgrader, hub: h}
}

// HandleConnection 处理 WebSocket 连接请求
// URL 预期格式: /ws?token=...&roomId=...（roomId 可选，提供时连接后自动加入该房间）
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	// 1. 获取认证用户 ID (由 Auth 中间件设置)，身份只在握手时校验一次
	userID := c.GetString("user_id")
	if userID == "" {
		logrus.Warn("WS Handler: User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	logCtx := logrus.WithField("user_id", userID)
	roomID := c.Query("roomId")

	// 2. 升级 HTTP 连接到 WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 方法会自动发送 HTTP 错误响应，所以这里只需要记录日志
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	// 3. 创建 Client 并注册到 Hub
	client := hub.NewClient(h.hub, conn, userID)
	if !h.hub.QueueMessage(hub.HubMessage{Type: "register", Client: client}) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		conn.Close()
		return
	}

	// 4. 可选的自动加入，失败时只通知该连接
	if roomID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := h.hub.JoinRoom(ctx, client, roomID); err != nil {
			logCtx.WithField("room_id", roomID).WithError(err).Warn("WS Handler: Auto join failed")
			h.hub.NotifyError(client, dto.TypeJoinRoom, err)
		}
		cancel()
	}

	client.Run()
	logCtx.Info("WS Handler: Client read/write pumps started")
}
