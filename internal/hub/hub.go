package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"party-game/internal/domain"
	"party-game/internal/dto"
	"party-game/internal/repository"
	"party-game/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 包内使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// 单条客户端消息的处理超时
	requestTimeout = 10 * time.Second

	// 每个连接每秒允许的消息数和突发量
	messageRate  = 10
	messageBurst = 20
)

// RoomOps 是 Hub 需要的房间生命周期操作
type RoomOps interface {
	EnsureMember(ctx context.Context, roomID, userID string) (*domain.Room, error)
	// Subscribe 在房间临界区内校验成员资格并调用 attach，保证快照与后续事件有序
	Subscribe(ctx context.Context, roomID, userID string, attach func(room *domain.Room)) (*domain.Room, error)
	LeaveRoom(ctx context.Context, roomID, userID string) (*domain.Room, error)
}

// TurnOps 是 Hub 需要的回合操作
type TurnOps interface {
	SetQuestion(ctx context.Context, roomID, userID, questionID string) (*domain.Room, error)
	SetPlayerTurn(ctx context.Context, roomID, hostID, playerID string) (*domain.Room, error)
	NextTurn(ctx context.Context, roomID, userID string) (*domain.Room, bool, error)
}

// VoteOps 是 Hub 需要的投票和答题操作
type VoteOps interface {
	SubmitVote(ctx context.Context, roomID, userID, questionID string) (*service.VoteResult, error)
	SubmitAnswer(ctx context.Context, roomID, userID, content, questionID string) (*domain.Room, error)
	ShareAnswer(ctx context.Context, roomID, userID string) (*domain.Room, error)
}

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type   string // "register", "unregister"
	Client *Client
}

// Hub 维护进程内的连接注册表，并把房间事件推送给订阅该房间的连接。
// 注册表只存在于内存中：进程重启后客户端需要重新 join-room，从存储重新同步状态。
type Hub struct {
	// 内部通道，处理注册和注销
	messageChan chan HubMessage
	done        chan struct{}
	stopOnce    sync.Once

	// clientsByUser: 每个用户最多跟踪一个连接，新连接取代旧连接（不强制关闭旧连接）
	// rooms: map[roomID]map[*Client]bool
	// 两个 map 以及 Client 的 roomID / closed 字段都由 mu 保护
	mu            sync.RWMutex
	clientsByUser map[string]*Client
	rooms         map[string]map[*Client]bool

	roomOps RoomOps
	turnOps TurnOps
	voteOps VoteOps

	// 可选：把房间事件额外发布到 Redis，供外部订阅者使用
	state       repository.StateRepository
	publishChan chan domain.RoomEvent
}

// NewHub 创建并返回一个新的 Hub 实例。state 可以为 nil。
func NewHub(roomOps RoomOps, turnOps TurnOps, voteOps VoteOps, state repository.StateRepository) *Hub {
	// 启动时检查依赖注入是否有效
	if roomOps == nil || turnOps == nil || voteOps == nil {
		panic("room, turn and vote services cannot be nil for Hub")
	}
	return &Hub{
		// 创建带缓冲区的通道，大小可根据预期负载调整
		messageChan:   make(chan HubMessage, 512),
		done:          make(chan struct{}),
		clientsByUser: make(map[string]*Client),
		rooms:         make(map[string]map[*Client]bool),
		roomOps:       roomOps,
		turnOps:       turnOps,
		voteOps:       voteOps,
		state:         state,
		publishChan:   make(chan domain.RoomEvent, 1024),
	}
}

// Run 启动 Hub 的主事件处理循环，直到 Stop 被调用。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	if h.state != nil {
		go h.runPublisher()
	}

	for {
		select {
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			default:
				log.Warnf("Hub: Received unknown message type: %s", msg.Type)
			}
		case <-h.done:
			h.closeAll()
			log.Info("Hub is shutting down...")
			return
		}
	}
}

// Stop 停止 Run 循环并关闭所有连接。可以重复调用。
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// registerClient 处理客户端注册逻辑
func (h *Hub) registerClient(client *Client) {
	// 防御性编程：检查 client 是否为 nil
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": client.userID, "action": "registerClient"})

	h.mu.Lock()
	if prev, ok := h.clientsByUser[client.userID]; ok && prev != client {
		logCtx.Info("New connection supersedes previous one for this user")
	}
	h.clientsByUser[client.userID] = client
	h.mu.Unlock()
	logCtx.Info("Client registered to Hub")
}

// unregisterClient 处理客户端注销逻辑：退出订阅的房间并关闭 send 通道
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": client.userID, "action": "unregisterClient"})

	h.mu.Lock()
	h.unsubscribeLocked(client)
	if h.clientsByUser[client.userID] == client {
		delete(h.clientsByUser, client.userID)
	}
	if !client.closed {
		client.closed = true
		close(client.send)
	}
	h.mu.Unlock()
	logCtx.Info("Client unregistered from Hub")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.rooms {
		for c := range clients {
			if !c.closed {
				c.closed = true
				close(c.send)
			}
		}
	}
	for _, c := range h.clientsByUser {
		if !c.closed {
			c.closed = true
			close(c.send)
		}
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.clientsByUser = make(map[string]*Client)
}

// subscribe 把连接移入 roomID 的订阅集合（一个连接同一时间只在一个房间）
func (h *Hub) subscribe(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.closed {
		return
	}
	h.unsubscribeLocked(client)
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.roomID = roomID
}

func (h *Hub) unsubscribe(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(client)
}

func (h *Hub) unsubscribeLocked(client *Client) {
	if client.roomID == "" {
		return
	}
	if roomClients, ok := h.rooms[client.roomID]; ok {
		delete(roomClients, client)
		// 如果房间变空，则从 Hub 中删除该房间记录
		if len(roomClients) == 0 {
			delete(h.rooms, client.roomID)
		}
	}
	client.roomID = ""
}

// currentRoom 返回连接当前订阅的房间
func (h *Hub) currentRoom(client *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return client.roomID
}

// RoomClientCount 返回订阅某个房间的连接数
func (h *Hub) RoomClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// ClientForUser 返回当前跟踪的该用户连接
func (h *Hub) ClientForUser(userID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clientsByUser[userID]
	return c, ok
}

// NotifyRoom 实现 service.Notifier：把事件推送给房间内所有连接。
// 调用方处于房间临界区内，因此同一房间的事件按变更顺序入队；发送是非阻塞的。
func (h *Hub) NotifyRoom(event domain.RoomEvent) {
	message, err := json.Marshal(dto.NewOutboundEvent(event))
	if err != nil {
		logrus.WithFields(logrus.Fields{"room_id": event.RoomID, "event_type": event.Type}).WithError(err).Error("Failed to marshal room event")
		return
	}
	h.broadcast(event.RoomID, message)

	if h.state != nil {
		select {
		case h.publishChan <- event:
		default:
			logrus.WithField("room_id", event.RoomID).Warn("Publish queue full, dropping room event")
		}
	}
}

// broadcast 将消息发送给指定房间的所有客户端
func (h *Hub) broadcast(roomID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	roomClients, ok := h.rooms[roomID]
	if !ok || len(roomClients) == 0 {
		return
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":         roomID,
		"message_size":    len(message),
		"recipient_count": len(roomClients),
	})
	logCtx.Debug("Broadcasting message to clients")

	// 持有读锁发送，保证 send 通道不会在发送期间被关闭
	for client := range roomClients {
		// 使用非阻塞发送，避免单个慢客户端阻塞广播
		select {
		case client.send <- message:
		default:
			logCtx.WithField("receiver_user_id", client.userID).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// sendTo 只发送给一个连接
func (h *Hub) sendTo(client *Client, v interface{}) {
	message, err := json.Marshal(v)
	if err != nil {
		logrus.WithField("user_id", client.userID).WithError(err).Error("Failed to marshal direct message")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client.closed {
		return
	}
	select {
	case client.send <- message:
	default:
		logrus.WithField("user_id", client.userID).Warn("Client send channel full, direct message dropped")
	}
}

// sendError 把错误只发送给出错的连接，从不广播
func (h *Hub) sendError(client *Client, request string, err error) {
	h.sendTo(client, dto.ErrorMessage{
		Type:    domain.EventError,
		Code:    string(service.KindOf(err)),
		Message: err.Error(),
		Request: request,
	})
}

// NotifyError 把错误只发送给指定连接
func (h *Hub) NotifyError(client *Client, request string, err error) {
	h.sendError(client, request, err)
}

// runPublisher 按入队顺序把事件发布到 Redis
func (h *Hub) runPublisher() {
	for {
		select {
		case event := <-h.publishChan:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := h.state.PublishRoomEvent(ctx, event); err != nil {
				logrus.WithField("room_id", event.RoomID).WithError(err).Warn("Failed to publish room event")
			}
			cancel()
		case <-h.done:
			return
		}
	}
}

// --- 公共方法 ---

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 返回 true 如果消息成功入队，false 如果队列已满或 Hub 已停止。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}
