package domain

// EventType 是实时通道推送的事件类型。
type EventType string

const (
	EventRoomState         EventType = "room-state"
	EventPlayerJoined      EventType = "player-joined"
	EventPlayerLeft        EventType = "player-left"
	EventAnswerSubmitted   EventType = "answer-submitted"
	EventVoteUpdate        EventType = "vote-update"
	EventQuestionSet       EventType = "question-set"
	EventQuestionSelected  EventType = "question-selected"
	EventPlayerTurnChanged EventType = "player-turn-changed"
	EventTurnRotated       EventType = "turn-rotated"
	EventGameStarted       EventType = "game-started"
	EventGameEnded         EventType = "game-ended"
	EventError             EventType = "error"
)

// RoomEvent 是一次已提交的房间状态变更，携带读回后的完整房间状态。
type RoomEvent struct {
	Type    EventType   `json:"type"`
	RoomID  string      `json:"roomId"`
	UserID  string      `json:"userId,omitempty"` // 触发事件的用户
	Room    *Room       `json:"room,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// PlayerPayload 随 player-joined / player-left 发送。
type PlayerPayload struct {
	UserID string `json:"userId"`
	HostID string `json:"hostId"`
}

// AnswerPayload 随 answer-submitted 发送。
type AnswerPayload struct {
	UserID string `json:"userId"`
	Answer Answer `json:"answer"`
	Shared bool   `json:"shared,omitempty"`
}

// VotePayload 随 vote-update 发送。
type VotePayload struct {
	Counts            map[string]int `json:"counts"`
	TotalVotes        int            `json:"totalVotes"`
	EligibleVoters    int            `json:"eligibleVoters"`
	Complete          bool           `json:"complete"`
	WinningQuestionID string         `json:"winningQuestionId,omitempty"`
}

// QuestionPayload 随 question-set / question-selected 发送。
type QuestionPayload struct {
	QuestionID string `json:"questionId"`
}

// TurnPayload 随 game-started / turn-rotated / player-turn-changed / game-ended 发送。
type TurnPayload struct {
	CurrentPlayerTurn string `json:"currentPlayerTurn,omitempty"`
	Round             int    `json:"round"`
	GameEnded         bool   `json:"gameEnded,omitempty"`
}
