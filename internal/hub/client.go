package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"party-game/internal/domain"
	"party-game/internal/dto"
	"party-game/internal/service"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
// 身份在握手时校验一次，之后每条消息都要重新校验房间成员资格。
type Client struct {
	hub     *Hub            // 指向其所属的 Hub
	conn    *websocket.Conn // WebSocket 连接
	userID  string          // 客户端的用户 ID
	send    chan []byte     // 用于向此客户端发送消息的缓冲通道
	limiter *rate.Limiter   // 入站消息限流

	// 以下字段由 hub.mu 保护
	roomID string // 当前订阅的房间，空表示未加入
	closed bool   // send 是否已关闭
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, 256),
		limiter: rate.NewLimiter(rate.Limit(messageRate), messageBurst),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) UserID() string { return c.userID }

// RoomID 返回连接当前订阅的房间
func (c *Client) RoomID() string { return c.hub.currentRoom(c) }

// ReadPump 读取客户端消息并按到达顺序同步处理，保证同一连接的消息不会乱序。
// 它在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	logCtx := logrus.WithField("user_id", c.userID)
	defer func() {
		// 清理操作：请求 Hub 注销此客户端
		select {
		case c.hub.messageChan <- HubMessage{Type: "unregister", Client: c}:
		case <-c.hub.done:
		case <-time.After(1 * time.Second):
			logCtx.Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logCtx.Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	// 设置初始读取超时和 Pong 处理程序
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break
		}
		if messageType != websocket.TextMessage {
			logCtx.Debugf("Received non-text message type: %d", messageType)
			continue
		}
		c.hub.dispatch(c, message)
	}
}

// WritePump 将消息从 Client 的 send 通道泵送到 WebSocket 连接。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	logCtx := logrus.WithField("user_id", c.userID)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logCtx.Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭了（注销或停机）
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

// dispatch 解析一条客户端消息并调用对应的服务。错误只回给该连接。
func (h *Hub) dispatch(c *Client, raw []byte) {
	logCtx := logrus.WithField("user_id", c.userID)

	var msg dto.InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		h.sendError(c, "", service.ErrInvalidInput)
		return
	}
	if !c.limiter.Allow() {
		logCtx.WithField("type", msg.Type).Warn("Client message rate exceeded")
		h.sendError(c, msg.Type, service.ErrTooManyRequests)
		return
	}

	roomID := msg.RoomID
	if roomID == "" {
		roomID = h.currentRoom(c)
	}
	if roomID == "" {
		h.sendError(c, msg.Type, service.ErrNotARoomMember)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch msg.Type {
	case dto.TypeLeaveRoom:
		// 先离开房间，player-left 也会发给自己，然后再退订
		if _, err := h.roomOps.LeaveRoom(ctx, roomID, c.userID); err != nil {
			h.sendError(c, msg.Type, err)
			return
		}
		if h.currentRoom(c) == roomID {
			h.unsubscribe(c)
		}
		return
	case dto.TypeJoinRoom:
		if err := h.JoinRoom(ctx, c, roomID); err != nil {
			h.sendError(c, msg.Type, err)
		}
		return
	}

	// 每条消息都从存储重新读取成员资格，不使用缓存
	if _, err := h.roomOps.EnsureMember(ctx, roomID, c.userID); err != nil {
		h.sendError(c, msg.Type, err)
		return
	}

	var err error
	switch msg.Type {
	case dto.TypeSubmitAnswer:
		var data dto.AnswerData
		if err = decodeData(msg.Data, &data); err == nil {
			_, err = h.voteOps.SubmitAnswer(ctx, roomID, c.userID, data.Answer, data.QuestionID)
		}
	case dto.TypeSubmitVote:
		var data dto.QuestionData
		if err = decodeData(msg.Data, &data); err == nil {
			_, err = h.voteOps.SubmitVote(ctx, roomID, c.userID, data.QuestionID)
		}
	case dto.TypeSetQuestion:
		var data dto.QuestionData
		if err = decodeData(msg.Data, &data); err == nil {
			_, err = h.turnOps.SetQuestion(ctx, roomID, c.userID, data.QuestionID)
		}
	case dto.TypeSetPlayerTurn:
		var data dto.PlayerTurnData
		if err = decodeData(msg.Data, &data); err == nil {
			_, err = h.turnOps.SetPlayerTurn(ctx, roomID, c.userID, data.PlayerID)
		}
	case dto.TypeShareAnswer:
		_, err = h.voteOps.ShareAnswer(ctx, roomID, c.userID)
	case dto.TypeNextTurn:
		_, _, err = h.turnOps.NextTurn(ctx, roomID, c.userID)
	default:
		err = service.ErrInvalidInput
	}
	if err != nil {
		logCtx.WithFields(logrus.Fields{"room_id": roomID, "type": msg.Type}).WithError(err).Debug("Client message rejected")
		h.sendError(c, msg.Type, err)
	}
}

// JoinRoom 校验成员资格后把连接订阅到房间，并单独向它推送当前房间状态。
// 订阅和快照入队都在房间锁内完成，连接不会漏掉快照之后提交的事件。
func (h *Hub) JoinRoom(ctx context.Context, c *Client, roomID string) error {
	_, err := h.roomOps.Subscribe(ctx, roomID, c.userID, func(room *domain.Room) {
		h.subscribe(c, roomID)
		h.sendTo(c, dto.OutboundEvent{Type: domain.EventRoomState, RoomID: roomID, UserID: c.userID, Room: room})
	})
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_id": roomID}).Info("Client joined room channel")
	return nil
}

func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return service.ErrInvalidInput
	}
	if err := json.Unmarshal(data, v); err != nil {
		return service.ErrInvalidInput
	}
	return nil
}
