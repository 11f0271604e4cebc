package dto

import (
	"encoding/json"

	"party-game/internal/domain"
)

// 客户端发往服务端的实时消息类型
const (
	TypeJoinRoom      = "join-room"
	TypeLeaveRoom     = "leave-room"
	TypeSubmitAnswer  = "submit-answer"
	TypeSubmitVote    = "submit-vote"
	TypeSetQuestion   = "set-question"
	TypeSetPlayerTurn = "set-player-turn"
	TypeShareAnswer   = "share-answer"
	TypeNextTurn      = "next-turn"
)

// InboundMessage 是客户端 WebSocket 消息的外层结构。roomId 为空时使用连接当前所在的房间。
type InboundMessage struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// AnswerData 是 submit-answer 的数据
type AnswerData struct {
	Answer     string `json:"answer"`
	QuestionID string `json:"questionId,omitempty"`
}

// QuestionData 是 submit-vote / set-question 的数据
type QuestionData struct {
	QuestionID string `json:"questionId"`
}

// PlayerTurnData 是 set-player-turn 的数据
type PlayerTurnData struct {
	PlayerID string `json:"playerId"`
}

// OutboundEvent 是推送给房间内所有连接的事件
type OutboundEvent struct {
	Type   domain.EventType `json:"type"`
	RoomID string           `json:"roomId"`
	UserID string           `json:"userId,omitempty"`
	Room   *domain.Room     `json:"room,omitempty"`
	Data   interface{}      `json:"data,omitempty"`
}

// NewOutboundEvent 把房间事件转换为线上格式
func NewOutboundEvent(e domain.RoomEvent) OutboundEvent {
	return OutboundEvent{
		Type:   e.Type,
		RoomID: e.RoomID,
		UserID: e.UserID,
		Room:   e.Room,
		Data:   e.Payload,
	}
}

// ErrorMessage 只发送给出错的那个连接
type ErrorMessage struct {
	Type    domain.EventType `json:"type"`
	Code    string           `json:"code"`
	Message string           `json:"message"`
	Request string           `json:"request,omitempty"` // 触发错误的消息类型
}
